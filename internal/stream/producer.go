// Package stream publishes ledger events to Kafka for downstream
// reconciliation and analytics.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// Ledger event names.
const (
	DepositCompleted    = "deposit.completed"
	DepositFailed       = "deposit.failed"
	WithdrawalRequested = "withdrawal.requested"
	PayoutApproved      = "payout.approved"
	PayoutPaid          = "payout.paid"
	PayoutFailed        = "payout.failed"
	PayoutRejected      = "payout.rejected"
	RefundApproved      = "refund.approved"
	RefundRejected      = "refund.rejected"
	TicketPurchased     = "ticket.purchased"
	BookingCompleted    = "booking.completed"
)

// LedgerEvent describes one money movement.  Reference keys the Kafka
// message so every event of one entity lands on the same partition.
type LedgerEvent struct {
	Type        string    `json:"type"`
	Reference   string    `json:"reference"`
	UserID      uint64    `json:"user_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency,omitempty"`
	ActorID     uint64    `json:"actor_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
}

// Producer publishes ledger events.  In mock mode it only logs.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	mockMode bool
	log      logrus.FieldLogger
}

// NewProducer connects to brokers.  An empty broker list yields a
// log-only producer.
func NewProducer(brokers []string, topic string, log logrus.FieldLogger) (*Producer, error) {
	log = log.WithFields(logrus.Fields{"component": "kafka", "topic": topic})
	if len(brokers) == 0 {
		log.Info("no brokers configured; ledger stream in log-only mode")
		return &Producer{topic: topic, mockMode: true, log: log}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	log.WithField("brokers", brokers).Info("connected to kafka")
	return NewWithSyncProducer(producer, topic, log), nil
}

// NewWithSyncProducer wraps an existing sarama producer.
func NewWithSyncProducer(p sarama.SyncProducer, topic string, log logrus.FieldLogger) *Producer {
	return &Producer{producer: p, topic: topic, log: log}
}

func (p *Producer) Publish(_ context.Context, ev LedgerEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if p.mockMode {
		p.log.WithFields(logrus.Fields{"type": ev.Type, "reference": ev.Reference}).Debug("ledger event (log only)")
		return nil
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Reference),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(ev.Type)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithField("type", ev.Type).Error("failed to send ledger event")
		return fmt.Errorf("failed to send message: %w", err)
	}
	p.log.WithFields(logrus.Fields{"type": ev.Type, "partition": partition, "offset": offset}).Debug("ledger event published")
	return nil
}

func (p *Producer) Close() error {
	if p.mockMode || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
