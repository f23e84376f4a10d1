package config

import "time"

// PaymentConfig groups the money-movement settings: the card gateway used
// for deposits, the bank-transfer provider used for withdrawals and the
// platform's own rules (currency, fee, minimum withdrawal).
type PaymentConfig struct {
	Currency            string // ISO currency code, lower case (e.g. "ngn")
	PlatformFeeBPS      int64  // platform fee on ticket sales in basis points
	MinWithdrawalMinor  int64  // smallest payout request in minor units
	StripeSecretKey     string
	StripeWebhookSecret string
	BankAPIBaseURL      string
	BankAPISecret       string
	BankAPITimeout      time.Duration
	DepositExpiry       time.Duration // PENDING deposits older than this are failed by the sweeper
}

func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		Currency:            envStr("PAYMENT_CURRENCY", "ngn"),
		PlatformFeeBPS:      envInt64("PLATFORM_FEE_BPS", 500),
		MinWithdrawalMinor:  envInt64("MIN_WITHDRAWAL_MINOR", 100000),
		StripeSecretKey:     envStr("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: envStr("STRIPE_WEBHOOK_SECRET", ""),
		BankAPIBaseURL:      envStr("BANK_API_BASE_URL", "https://api.paystack.co"),
		BankAPISecret:       envStr("BANK_API_SECRET", ""),
		BankAPITimeout:      envDur("BANK_API_TIMEOUT", 15*time.Second),
		DepositExpiry:       envDur("DEPOSIT_EXPIRY", 24*time.Hour),
	}
}

// MailConfig configures outbound transactional email.
type MailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		APIKey:    envStr("MAILERSEND_API_KEY", ""),
		FromEmail: envStr("MAIL_FROM_EMAIL", "no-reply@example.com"),
		FromName:  envStr("MAIL_FROM_NAME", "Marketplace"),
	}
}

// BrokerConfig holds the RabbitMQ URL for the notification queue and the
// Kafka brokers for the ledger event stream.  An empty Kafka broker list
// puts the stream producer into log-only mode.
type BrokerConfig struct {
	RabbitURL    string
	KafkaBrokers []string
	KafkaTopic   string
}

func LoadBrokerConfig() BrokerConfig {
	url := envStr("RABBITMQ_URL", envStr("AMQP_URL", ""))
	return BrokerConfig{
		RabbitURL:    url,
		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envStr("KAFKA_TOPIC", "marketplace-ledger"),
	}
}

// JobsConfig toggles the cron-driven maintenance sweeps.
type JobsConfig struct {
	Enabled         bool
	DepositSweep    string
	EventCompletion string
	BookingExpiry   string
	PayoutReconcile string

	// PayoutStaleAfter is how long a payout may sit APPROVED before the
	// provider is asked what happened to its transfer.
	PayoutStaleAfter time.Duration
}

func LoadJobsConfig() JobsConfig {
	return JobsConfig{
		Enabled:          envBool("JOBS_ENABLED", true),
		DepositSweep:     envStr("JOBS_DEPOSIT_SWEEP", "@every 15m"),
		EventCompletion:  envStr("JOBS_EVENT_COMPLETION", "@hourly"),
		BookingExpiry:    envStr("JOBS_BOOKING_EXPIRY", "@hourly"),
		PayoutReconcile:  envStr("JOBS_PAYOUT_RECONCILE", "@every 10m"),
		PayoutStaleAfter: envDur("PAYOUT_RECONCILE_AFTER", 15*time.Minute),
	}
}
