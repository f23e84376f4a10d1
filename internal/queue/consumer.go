package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/mail"
)

// StartEmailConsumer connects to RabbitMQ, declares the email queue
// (durable) and delivers each job through sender.  It runs a reconnect
// loop with exponential backoff and returns only when ctx is cancelled.
func StartEmailConsumer(ctx context.Context, url string, sender mail.Sender, log logrus.FieldLogger) error {
	if url == "" {
		return ErrNoBroker
	}
	log = log.WithField("component", "email-consumer")
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, sender, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sender mail.Sender, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
	}
	if _, err := ch.QueueDeclare(EmailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(EmailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, sender); err != nil {
				log.WithError(err).Warn("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, sender mail.Sender) error {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return sender.Send(sendCtx, job.Email)
}
