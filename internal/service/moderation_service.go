package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
)

// actionTargets maps each resolve action to the report target it applies
// to.  NONE applies to any target.
var actionTargets = map[string]string{
	model.ActionSuspendUser:    model.TargetProfile,
	model.ActionUnpublishEvent: model.TargetEvent,
	model.ActionHideReview:     model.TargetReview,
	model.ActionHideMedia:      model.TargetMedia,
}

// ModerationService handles user reports and account suspension.
type ModerationService struct {
	DB      *sql.DB
	Reports *repository.ReportRepo
	Users   *repository.UserRepo
	Tokens  *repository.TokenRepo
	Events  *repository.EventRepo
	Reviews *repository.ReviewRepo
	Media   *repository.MediaRepo
	Audit   *repository.AuditRepo
	Log     logrus.FieldLogger
}

// Report files an OPEN report against a piece of content or a profile.
func (s *ModerationService) Report(ctx context.Context, reporterID uint64, targetType string, targetID uint64, reason string) (model.Report, error) {
	targetType = strings.ToUpper(strings.TrimSpace(targetType))
	reason = strings.TrimSpace(reason)
	switch targetType {
	case model.TargetProfile, model.TargetEvent, model.TargetReview, model.TargetMedia:
	default:
		return model.Report{}, invalid("target_type must be PROFILE, EVENT, REVIEW or MEDIA")
	}
	if targetID == 0 {
		return model.Report{}, invalid("target_id is required")
	}
	if reason == "" {
		return model.Report{}, invalid("reason is required")
	}
	if targetType == model.TargetProfile && targetID == reporterID {
		return model.Report{}, invalid("cannot report yourself")
	}
	rp := model.Report{ReporterID: reporterID, TargetType: targetType, TargetID: targetID, Reason: reason}
	if err := s.Reports.Create(ctx, &rp); err != nil {
		return model.Report{}, err
	}
	return rp, nil
}

// Resolve closes an OPEN report and applies action to its target in the
// same transaction.
func (s *ModerationService) Resolve(ctx context.Context, adminID, reportID uint64, action, notes string) error {
	action = strings.ToUpper(strings.TrimSpace(action))
	if action == "" {
		action = model.ActionNone
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ErrNotesRequired
	}
	if _, ok := actionTargets[action]; !ok && action != model.ActionNone {
		return invalid("unknown action " + action)
	}
	return repository.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		rp, err := s.Reports.GetForUpdateTx(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if rp.Status != model.ReportOpen {
			return repository.ErrInvalidState
		}
		if want, ok := actionTargets[action]; ok && want != rp.TargetType {
			return invalid(action + " does not apply to a " + rp.TargetType + " report")
		}
		if err := s.apply(ctx, tx, adminID, action, rp.TargetID, notes); err != nil {
			return err
		}
		if err := s.Reports.CloseTx(ctx, tx, rp.ID, model.ReportResolved, action, adminID, notes); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, adminID, "report.resolve", "report", rp.ID,
			map[string]any{"action": action, "target_type": rp.TargetType, "target_id": rp.TargetID})
	})
}

func (s *ModerationService) apply(ctx context.Context, tx *sql.Tx, adminID uint64, action string, targetID uint64, notes string) error {
	switch action {
	case model.ActionSuspendUser:
		return s.setActiveTx(ctx, tx, adminID, targetID, false)
	case model.ActionUnpublishEvent:
		return s.Events.Transition(ctx, tx, targetID,
			[]string{model.EventPublished, model.EventPendingReview}, model.EventRejected, &notes)
	case model.ActionHideReview:
		return s.Reviews.SetHidden(ctx, tx, targetID, true)
	case model.ActionHideMedia:
		return s.Media.Hide(ctx, tx, targetID)
	}
	return nil
}

// Dismiss closes an OPEN report without action.
func (s *ModerationService) Dismiss(ctx context.Context, adminID, reportID uint64, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ErrNotesRequired
	}
	return repository.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Reports.CloseTx(ctx, tx, reportID, model.ReportDismissed, "", adminID, notes); err != nil {
			return err
		}
		return s.Audit.Record(ctx, tx, adminID, "report.dismiss", "report", reportID, nil)
	})
}

// SetUserActive suspends or reinstates an account.  Suspension revokes
// every refresh token of the user.
func (s *ModerationService) SetUserActive(ctx context.Context, adminID, userID uint64, active bool) error {
	return repository.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return s.setActiveTx(ctx, tx, adminID, userID, active)
	})
}

func (s *ModerationService) setActiveTx(ctx context.Context, tx *sql.Tx, adminID, userID uint64, active bool) error {
	if userID == adminID {
		return invalid("admins cannot change their own status")
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role == model.RoleAdmin && !active {
		return repository.ErrForbidden
	}
	if u.IsActive != active {
		if err := s.Users.SetActive(ctx, tx, userID, active); err != nil {
			return err
		}
	}
	action := "user.reinstate"
	if !active {
		action = "user.suspend"
		if err := s.Tokens.RevokeAllForUser(ctx, tx, userID); err != nil {
			return err
		}
	}
	s.Log.WithFields(logrus.Fields{"user_id": userID, "admin_id": adminID, "active": active}).Info("user status changed")
	return s.Audit.Record(ctx, tx, adminID, action, "user", userID, nil)
}
