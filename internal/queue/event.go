// Package queue carries notification work over RabbitMQ.
package queue

import (
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/mail"
)

// EmailQueueName is the durable queue holding outbound emails.
const EmailQueueName = "notifications.email"

// EmailJob is published for every email the API wants delivered.  It is
// self-contained so the consumer never queries the primary database.
type EmailJob struct {
	Email       mail.Email `json:"email"`
	RequestedBy uint64     `json:"requested_by,omitempty"`
	Kind        string     `json:"kind"` // admin, payout, refund, booking
	QueuedAt    time.Time  `json:"queued_at"`
}
