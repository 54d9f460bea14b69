// Package rabbitmq содержит обвязку над amqp: подключение с повторами,
// объявление fanout-обменника, публикацию и потребление сообщений.
package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	var conn *amqp.Connection
	var err error

	if retries < 1 {
		retries = 1
	}
	for i := range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		if i < retries-1 {
			time.Sleep(delay)
		}
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupFanout открывает канал, объявляет fanout-обменник exchange и
// привязывает к нему эксклюзивную автоудаляемую очередь экземпляра.
// Возвращает канал и имя очереди.
func SetupFanout(conn *amqp.Connection, exchange string, prefetch int) (*amqp.Channel, string, error) {
	const op = "rabbitmq.SetupFanout"

	ch, err := conn.Channel()
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, "", fmt.Errorf("%s: failed to set QoS: %w", op, err)
		}
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, "", fmt.Errorf("%s: failed to declare queue: %w", op, err)
	}

	if err = ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, "", fmt.Errorf("%s: failed to bind queue %s to %s: %w", op, q.Name, exchange, err)
	}

	return ch, q.Name, nil
}
