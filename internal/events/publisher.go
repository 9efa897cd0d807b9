package events

import (
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	EventSessionCreated = "session.created"
	EventSessionSigned  = "session.signed"
)

// SessionEvent is the JSON body published for lifecycle transitions.
type SessionEvent struct {
	Type       string    `json:"type"`
	Token      string    `json:"token"`
	ClientName string    `json:"clientName"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits session lifecycle events. Publishing is best-effort:
// failures are logged by callers, never surfaced to the signer.
type Publisher interface {
	Publish(event SessionEvent) error
	Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(SessionEvent) error { return nil }
func (NopPublisher) Close()                     {}

type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewAMQPPublisher connects to RabbitMQ and declares a durable fanout
// exchange for session events.
func NewAMQPPublisher(amqpURL, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p := &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger.With(zap.String("component", "events")),
	}
	p.logger.Info("connected to event broker", zap.String("exchange", exchange))
	return p, nil
}

func (p *AMQPPublisher) Publish(event SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.channel.Publish(
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
