package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/mail"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
)

// Stats is the admin dashboard summary.
type Stats struct {
	UsersByRole      map[string]int64 `json:"users_by_role"`
	EventsByStatus   map[string]int64 `json:"events_by_status"`
	PendingPayouts   PendingTotal     `json:"pending_payouts"`
	PendingRefunds   PendingTotal     `json:"pending_refunds"`
	OpenReports      int64            `json:"open_reports"`
	TotalWalletMinor int64            `json:"total_wallet_minor"`
}

// PendingTotal is a count with the sum of its amounts.
type PendingTotal struct {
	Count       int64 `json:"count"`
	AmountMinor int64 `json:"amount_minor"`
}

// AdminEmail is an admin-composed message.  Either To or UserID names the
// recipient.
type AdminEmail struct {
	To      string
	UserID  uint64
	Subject string
	HTML    string
	Text    string
}

// AdminService serves the dashboard and admin email.
type AdminService struct {
	Users    *repository.UserRepo
	Events   *repository.EventRepo
	Payouts  *repository.PayoutRepo
	Refunds  *repository.RefundRepo
	Reports  *repository.ReportRepo
	Wallets  *repository.WalletRepo
	Notifier *Notifier
	Log      logrus.FieldLogger
}

// Stats gathers the dashboard figures.
func (s *AdminService) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.UsersByRole, err = s.Users.CountByRole(ctx); err != nil {
		return st, err
	}
	if st.EventsByStatus, err = s.Events.CountByStatus(ctx); err != nil {
		return st, err
	}
	if st.PendingPayouts.Count, st.PendingPayouts.AmountMinor, err = s.Payouts.PendingTotals(ctx); err != nil {
		return st, err
	}
	if st.PendingRefunds.Count, st.PendingRefunds.AmountMinor, err = s.Refunds.PendingTotals(ctx); err != nil {
		return st, err
	}
	if st.OpenReports, err = s.Reports.OpenCount(ctx); err != nil {
		return st, err
	}
	st.TotalWalletMinor, err = s.Wallets.TotalBalance(ctx)
	return st, err
}

// SendEmail resolves the recipient and delivers the message through the
// notification queue, falling back to direct delivery.  It reports
// whether the message was queued.
func (s *AdminService) SendEmail(ctx context.Context, adminID uint64, in AdminEmail) (bool, error) {
	to := strings.TrimSpace(in.To)
	if to == "" && in.UserID != 0 {
		u, err := s.Users.GetByID(ctx, in.UserID)
		if err != nil {
			return false, err
		}
		to = u.Email
	}
	if to == "" {
		return false, invalid("to or user_id is required")
	}
	e := mail.Email{To: to, Subject: strings.TrimSpace(in.Subject), HTML: in.HTML, Text: in.Text}
	if err := e.Validate(); err != nil {
		return false, invalid(err.Error())
	}
	queued, err := s.Notifier.Send(ctx, e, "admin", adminID)
	if err != nil {
		return false, err
	}
	s.Log.WithFields(logrus.Fields{"admin_id": adminID, "to": to, "queued": queued}).Info("admin email accepted")
	return queued, nil
}
