package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
	"golang.org/x/sync/semaphore"

	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
)

// Handler обрабатывает тело одного сообщения. Сообщение, на котором
// обработчик вернул ошибку, отбрасывается без повторной доставки.
type Handler func(ctx context.Context, body []byte) error

// Consume читает очередь queue в фоне до отмены ctx или закрытия канала.
// Одновременно обрабатывается не более workers сообщений. Возвращаемый
// канал закрывается, когда чтение остановлено и все обработчики вернулись.
func Consume(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queue string, workers int, handle Handler) (<-chan struct{}, error) {
	const op = "rabbitmq.Consume"

	deliveries, err := ch.Consume(queue, "", false, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	done := make(chan struct{})

	go func() {
		defer close(done)
		// ожидание всех слотов означает, что обработчики завершились
		defer func() { _ = sem.Acquire(context.Background(), int64(workers)) }()

		for {
			var d amqp.Delivery
			var ok bool
			select {
			case d, ok = <-deliveries:
				if !ok {
					log.Info("delivery channel closed", slog.String("queue", queue))
					return
				}
			case <-ctx.Done():
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				// остановка до обработки: сообщение вернётся брокеру с закрытием канала
				return
			}
			go func(d amqp.Delivery) {
				defer sem.Release(1)
				if err := handle(ctx, d.Body); err != nil {
					log.Warn("message dropped", slog.String("queue", queue), slog.String("message_id", d.MessageId), sl.Err(err))
					if nackErr := d.Nack(false, false); nackErr != nil {
						log.Error("failed to nack message", sl.Err(nackErr))
					}
					return
				}
				if ackErr := d.Ack(false); ackErr != nil {
					log.Error("failed to ack message", sl.Err(ackErr))
				}
			}(d)
		}
	}()
	return done, nil
}
