package model

import "time"

// Transaction types.
const (
	TxDeposit        = "DEPOSIT"
	TxWithdrawal     = "WITHDRAWAL"
	TxTicketPurchase = "TICKET_PURCHASE"
	TxSaleEarning    = "SALE_EARNING"
	TxRefund         = "REFUND"
	TxBookingPayment = "BOOKING_PAYMENT"
	TxBookingEarning = "BOOKING_EARNING"
)

// Transaction statuses.
const (
	TxPending   = "PENDING"
	TxCompleted = "COMPLETED"
	TxFailed    = "FAILED"
)

// Wallet holds a user's balance.  HeldMinor is reserved by pending
// withdrawals and is not spendable.
type Wallet struct {
	UserID       uint64    `json:"user_id"`
	BalanceMinor int64     `json:"balance_minor"`
	HeldMinor    int64     `json:"held_minor"`
	Currency     string    `json:"currency"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available returns the spendable part of the balance.
func (w Wallet) Available() int64 { return w.BalanceMinor - w.HeldMinor }

// Transaction is one ledger line.  AmountMinor is signed from the wallet
// owner's point of view.
type Transaction struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"user_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	AmountMinor int64     `json:"amount_minor"`
	Reference   string    `json:"reference"`
	ProviderRef *string   `json:"provider_ref,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
