// Package event publishes grader corrections to a RabbitMQ topic exchange so
// downstream services can refresh their copies of a report.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pavelanni/examstats/internal/model"
)

// Exchange is the topic exchange correction events are sent to. The routing
// key is the event kind, e.g. "answer.corrected".
const Exchange = "examstats.corrections"

// Publisher sends correction events.
type Publisher interface {
	Publish(ctx context.Context, ev model.CorrectionEvent) error
	Close() error
}

// AMQPPublisher publishes to RabbitMQ. With an empty URI it is disabled and
// drops events after logging them at debug level.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
}

// NewPublisher dials uri and declares the exchange.
func NewPublisher(uri string) (*AMQPPublisher, error) {
	if uri == "" {
		slog.Info("rabbitmq uri is empty, correction events disabled")
		return &AMQPPublisher{exchange: Exchange}, nil
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	slog.Info("event publisher initialized", "exchange", Exchange)
	return &AMQPPublisher{conn: conn, channel: ch, exchange: Exchange, enabled: true}, nil
}

// Enabled reports whether events reach a broker.
func (p *AMQPPublisher) Enabled() bool { return p.enabled }

func (p *AMQPPublisher) Publish(ctx context.Context, ev model.CorrectionEvent) error {
	if !p.enabled {
		slog.Debug("event publishing disabled, skipping", "kind", ev.Kind, "exam", ev.ExamID)
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		string(ev.Kind), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			Headers: amqp.Table{
				"exam_id":     ev.ExamID,
				"response_id": ev.ResponseID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	slog.Debug("published event", "kind", ev.Kind, "exam", ev.ExamID, "response", ev.ResponseID)
	return nil
}

func (p *AMQPPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
