package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Publisher отправляет JSON-сообщения в один обменник.
// Публикации через общий канал сериализуются.
type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	appID    string
	ttl      time.Duration
}

// NewPublisher создаёт издателя. Непустой ttl ограничивает время жизни
// сообщения в очередях получателей.
func NewPublisher(ch *amqp.Channel, exchange, appID string, ttl time.Duration) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		appID:    appID,
		ttl:      ttl,
	}
}

// Publish сериализует message и публикует его с ключом routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, message any) error {
	const op = "rabbitmq.Publish"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		AppId:        p.appID,
		Timestamp:    time.Now().UTC(),
	}
	if p.ttl > 0 {
		msg.Expiration = strconv.FormatInt(p.ttl.Milliseconds(), 10)
	}

	p.mu.Lock()
	err = p.ch.Publish(p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
