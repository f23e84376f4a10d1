package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrNoBroker is returned when no broker URL is configured.
var ErrNoBroker = errors.New("message broker not configured")

// Publisher keeps one AMQP connection and channel open and re-dials
// lazily after a failure.  Errors are logged and returned so the caller
// can fall back without interrupting the request flow.
type Publisher struct {
	url string
	log logrus.FieldLogger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, log: log.WithField("component", "amqp-publisher")}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(EmailQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// PublishEmail enqueues job as a persistent message.
func (p *Publisher) PublishEmail(ctx context.Context, job EmailJob) error {
	if p == nil || p.url == "" {
		return ErrNoBroker
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel unavailable")
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",             // default exchange
		EmailQueueName, // routing key = queue name
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    job.QueuedAt,
			Body:         body,
		})
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: publish failed")
		_ = ch.Close()
		p.ch = nil
		return err
	}
	return nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
