// Package events publishes import report summaries to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/infra/resilience"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/events")

const (
	serviceName = "rabbitmq"
	reportType  = "central.import.report"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements port.ReportPublisher on a durable queue.
type Publisher struct {
	conn    *amqp.Connection // nil when built from a bare channel
	ch      Channel
	queue   string
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Dial connects to the broker and declares the durable report queue.
func Dial(url, queue string, metrics *observability.Metrics, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	p := NewPublisher(ch, queue, metrics, logger)
	p.conn = conn
	logger.Info("import report publisher ready", zap.String("queue", queue))
	return p, nil
}

// NewPublisher wraps an already open channel.
func NewPublisher(ch Channel, queue string, metrics *observability.Metrics, logger *zap.Logger) *Publisher {
	return &Publisher{
		ch:      ch,
		queue:   queue,
		cb:      resilience.NewCircuitBreaker(serviceName, nil),
		metrics: metrics,
		logger:  logger,
	}
}

// PublishReport sends the event as a persistent JSON message.
func (p *Publisher) PublishReport(ctx context.Context, evt *domain.ImportEvent) error {
	ctx, span := tracer.Start(ctx, "Publisher.PublishReport")
	defer span.End()
	span.SetAttributes(
		attribute.String("import.id", evt.ImportID),
		attribute.String("import.state", string(evt.State)),
	)

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal import event: %w", err)
	}

	_, err = p.cb.Execute(func() (any, error) {
		return nil, p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.ImportID,
			Timestamp:    evt.Timestamp,
			Type:         reportType,
			Body:         body,
		})
	})
	if err != nil {
		p.metrics.IncrPublished("error")
		p.metrics.IncrExternalError(serviceName)
		if resilience.IsOpen(err) {
			return &domain.ErrCircuitOpen{Service: serviceName}
		}
		return &domain.ErrExternalService{Service: serviceName, Err: err}
	}

	p.metrics.IncrPublished("ok")
	p.logger.Debug("import report published",
		zap.String("import_id", evt.ImportID),
		zap.String("queue", p.queue),
	)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
