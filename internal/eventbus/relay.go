package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
)

// Envelope событие в обменнике ретрансляции.
type Envelope struct {
	Origin string          `json:"origin"`
	Scope  Scope           `json:"scope"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Relay пересылает события шины между экземплярами через fanout-обменник.
// Каждый экземпляр читает свою эксклюзивную очередь и пропускает события,
// которые опубликовал сам.
type Relay struct {
	log      *slog.Logger
	bus      *Bus
	origin   string
	exchange string
	workers  int

	conn  *amqp.Connection
	pub   *rabbitmq.Publisher
	sub   *amqp.Channel
	queue string
}

// relayTTL время жизни события в очереди другого экземпляра. Событие,
// не доставленное за это время, теряет смысл.
const relayTTL = 30 * time.Second

func NewRelay(log *slog.Logger, cfg config.RabbitMQ, bus *Bus) (*Relay, error) {
	const op = "eventbus.NewRelay"

	conn, err := rabbitmq.Connect(cfg.URL, cfg.DialRetries, cfg.DialDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub, queue, err := rabbitmq.SetupFanout(conn, cfg.Exchange, cfg.PrefetchSize)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	origin := uuid.NewString()
	return &Relay{
		log:      log,
		bus:      bus,
		origin:   origin,
		exchange: cfg.Exchange,
		workers:  cfg.PrefetchSize,
		conn:     conn,
		pub:      rabbitmq.NewPublisher(pubCh, cfg.Exchange, origin, relayTTL),
		sub:      sub,
		queue:    queue,
	}, nil
}

func (r *Relay) Origin() string {
	return r.origin
}

func (r *Relay) Forward(ctx context.Context, scope Scope, event string, data json.RawMessage) error {
	return r.pub.Publish(ctx, "", Envelope{
		Origin: r.origin,
		Scope:  scope,
		Event:  event,
		Data:   data,
	})
}

// Run читает очередь экземпляра до отмены ctx.
func (r *Relay) Run(ctx context.Context) error {
	const op = "eventbus.Relay.Run"

	done, err := rabbitmq.Consume(ctx, r.log, r.sub, r.queue, r.workers, r.handle)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.log.Info("event relay started", slog.String("exchange", r.exchange), slog.String("origin", r.origin))

	closed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-ctx.Done():
		<-done
		return nil
	case amqpErr, ok := <-closed:
		if !ok || amqpErr == nil {
			return nil
		}
		return fmt.Errorf("%s: %w", op, amqpErr)
	}
}

func (r *Relay) handle(_ context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("eventbus.Relay.handle: %w", err)
	}
	if env.Origin == r.origin {
		return nil
	}
	n := r.bus.Deliver(env.Scope, env.Event, env.Data)
	r.log.Debug("relayed event delivered",
		slog.String("event", env.Event),
		slog.String("scope", env.Scope.String()),
		slog.Int("recipients", n),
	)
	return nil
}

func (r *Relay) Close() error {
	if err := r.conn.Close(); err != nil && err != amqp.ErrClosed {
		r.log.Warn("failed to close relay connection", sl.Err(err))
		return err
	}
	return nil
}
