package alert

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// DefaultExchange is the topic exchange alerts are published to.
const DefaultExchange = "accessgate.alerts"

// channel is the part of *amqp.Channel the notifier uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes alerts as JSON to a RabbitMQ topic exchange with
// routing key "alert.<level>".
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	enabled  bool
}

// NewAMQPNotifier connects to uri and declares the exchange. An empty uri
// returns a disabled notifier that accepts and discards alerts.
func NewAMQPNotifier(uri, exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	if uri == "" {
		log.Warn().Msg("alert broker uri is empty, alert publishing is disabled")

		return &AMQPNotifier{exchange: exchange}, nil
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to alert broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info().Str("exchange", exchange).Msg("alert publisher initialized")

	return &AMQPNotifier{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		enabled:  true,
	}, nil
}

// Enabled reports whether alerts are actually published.
func (n *AMQPNotifier) Enabled() bool {
	return n.enabled
}

// Notify implements Notifier.
func (n *AMQPNotifier) Notify(ctx context.Context, a Alert) error {
	if !n.enabled {
		return nil
	}

	msg, err := publishing(a)
	if err != nil {
		return err
	}

	if err = n.channel.PublishWithContext(ctx, n.exchange, a.RoutingKey(), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	return nil
}

// Close releases the broker channel and connection.
func (n *AMQPNotifier) Close() error {
	if !n.enabled {
		return nil
	}

	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close alert channel")
		}
	}

	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			return fmt.Errorf("failed to close alert broker connection: %w", err)
		}
	}

	return nil
}

func publishing(a Alert) (amqp.Publishing, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal alert: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    a.ID,
		Timestamp:    a.RaisedAt,
		Type:         "alert",
		Body:         body,
		Headers: amqp.Table{
			"level":     a.Level,
			"count":     int32(a.Count),
			"threshold": int32(a.Threshold),
		},
	}, nil
}
