package model

import "time"

// Payout request statuses.
const (
	PayoutPending  = "PENDING"
	PayoutApproved = "APPROVED"
	PayoutPaid     = "PAID"
	PayoutFailed   = "FAILED"
	PayoutRejected = "REJECTED"
)

// Refund request statuses.
const (
	RefundPending  = "PENDING"
	RefundApproved = "APPROVED"
	RefundRejected = "REJECTED"
)

// PayoutRequest is a withdrawal awaiting or past admin processing.
type PayoutRequest struct {
	ID            uint64     `json:"id"`
	UserID        uint64     `json:"user_id"`
	AmountMinor   int64      `json:"amount_minor"`
	BankCode      string     `json:"bank_code"`
	AccountNumber string     `json:"account_number"`
	AccountName   string     `json:"account_name"`
	Reference     string     `json:"reference"`
	Status        string     `json:"status"`
	TransferRef   *string    `json:"transfer_ref,omitempty"`
	AdminNotes    *string    `json:"admin_notes,omitempty"`
	ProcessedBy   *uint64    `json:"processed_by,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RefundRequest asks for a ticket's price back.
type RefundRequest struct {
	ID          uint64     `json:"id"`
	TicketID    uint64     `json:"ticket_id"`
	UserID      uint64     `json:"user_id"`
	AmountMinor int64      `json:"amount_minor"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	AdminNotes  *string    `json:"admin_notes,omitempty"`
	ProcessedBy *uint64    `json:"processed_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
