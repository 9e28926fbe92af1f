package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"carpool/internal/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher forwards lifecycle events to a topic exchange for external
// subscribers such as chat and notifications.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     func(url, exchange string) (amqpConn, amqpChannel, error)

	mu   sync.Mutex
	conn amqpConn
	ch   amqpChannel
}

type amqpConn interface {
	IsClosed() bool
	Close() error
}

type amqpChannel interface {
	IsClosed() bool
	Close() error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// NewAMQPPublisher dials the broker with a bounded retry and declares the exchange.
func NewAMQPPublisher(ctx context.Context, url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange, dial: dialExchange}

	maxRetries := 5
	retryDelay := time.Second
	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := p.channel()
		if err == nil {
			utils.LogEvent("", "amqp", "connect", fmt.Sprintf("connected exchange=%s attempt=%d", exchange, attempt))
			return p, nil
		}
		utils.LogEvent("", "amqp", "connect", fmt.Sprintf("attempt %d/%d failed: %v", attempt, maxRetries, err))
		if attempt == maxRetries {
			return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", maxRetries, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay *= 2
		}
	}
	return nil, fmt.Errorf("connect rabbitmq: retry loop ended")
}

func dialExchange(url, exchange string) (amqpConn, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

// channel returns an open channel, reconnecting at most once per outage:
// callers that find the channel closed queue on mu and reuse the first redial.
func (p *AMQPPublisher) channel() (amqpChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, ch, err := p.dial(p.url, p.exchange)
	if err != nil {
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// closeLocked drops the current connection. The caller holds mu.
func (p *AMQPPublisher) closeLocked() error {
	var err error
	if p.ch != nil && !p.ch.IsClosed() {
		if cerr := p.ch.Close(); cerr != nil {
			err = fmt.Errorf("close rabbitmq channel: %w", cerr)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rabbitmq connection: %w", cerr)
		}
	}
	p.conn, p.ch = nil, nil
	return err
}

// Handle implements Handler.
func (p *AMQPPublisher) Handle(ctx context.Context, ev Event) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	key, msg, err := buildPublishing(ev)
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(pubCtx, p.exchange, key, false, false, msg)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func buildPublishing(ev Event) (string, amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return string(ev.Type), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.BookingID + ":" + string(ev.Type),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}, nil
}
