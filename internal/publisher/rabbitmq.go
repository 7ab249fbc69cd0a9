package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"listing_syncer/internal/domain"
)

// RabbitMQ publishes listing changes to a topic exchange. Every event is
// routed as "<routing key>.<event type>" and confirmed by the broker.
type RabbitMQ struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// Key returns the routing key an event of type t is published with.
func (c Config) Key(t domain.EventType) string {
	return c.RoutingKey + "." + string(t)
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		cfg:    cfg,
		logger: logger.With("component", "publisher"),
	}
	if err := r.connect(); err != nil {
		return nil, err
	}

	r.logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"binding", cfg.RoutingKey+".#",
	)
	return r, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, r.cfg); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	r.conn = conn
	r.channel = ch
	return nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey+".#", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ListingMessage is the body of every published listing change.
type ListingMessage struct {
	Event     domain.ListingEvent `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
}

func (r *RabbitMQ) Publish(ctx context.Context, event *domain.ListingEvent) error {
	now := time.Now().UTC()
	body, err := json.Marshal(ListingMessage{Event: *event, Timestamp: now})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel == nil || r.channel.IsClosed() {
		r.logger.Warn("rabbitmq channel closed, reconnecting")
		r.closeLocked()
		if err := r.connect(); err != nil {
			return err
		}
	}

	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		r.cfg.Exchange,
		r.cfg.Key(event.Type),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         string(event.Type),
			MessageId:    fmt.Sprintf("%s:%s:%d", event.UUID, event.Type, event.OccurredAt.UnixNano()),
			Body:         body,
			Timestamp:    now,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return errors.New("publish message: broker nacked")
	}

	r.logger.Debug("published listing event",
		"uuid", event.UUID,
		"type", event.Type,
		"record_id", event.RecordID,
	)
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *RabbitMQ) closeLocked() error {
	if r.channel != nil {
		_ = r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	return nil
}
