package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// ReviewRepo persists reviews and computes rating summaries.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

const reviewCols = "id, reviewer_id, subject_type, subject_id, booking_id, rating, comment, is_hidden, created_at"

func scanReview(sc interface{ Scan(...any) error }) (model.Review, error) {
	var rv model.Review
	var booking sql.NullInt64
	var comment sql.NullString
	err := sc.Scan(&rv.ID, &rv.ReviewerID, &rv.SubjectType, &rv.SubjectID, &booking, &rv.Rating, &comment, &rv.IsHidden, &rv.CreatedAt)
	if err != nil {
		return rv, err
	}
	rv.BookingID = uintPtr(booking)
	rv.Comment = comment.String
	return rv, nil
}

// Create inserts a review.  A second review for the same booking is
// ErrConflict.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reviews (reviewer_id, subject_type, subject_id, booking_id, rating, comment) VALUES (?,?,?,?,?,?)",
		rv.ReviewerID, rv.SubjectType, rv.SubjectID, rv.BookingID, rv.Rating, nullStr(rv.Comment))
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return nil
}

// Exists reports whether reviewerID already reviewed the subject.
func (r *ReviewRepo) Exists(ctx context.Context, reviewerID uint64, subjectType string, subjectID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reviews WHERE reviewer_id=? AND subject_type=? AND subject_id=?",
		reviewerID, subjectType, subjectID).Scan(&n)
	return n > 0, err
}

// ListVisible pages through the visible reviews of a subject, newest first.
func (r *ReviewRepo) ListVisible(ctx context.Context, subjectType string, subjectID uint64, pg utils.Page) ([]model.Review, int64, error) {
	const cond = " WHERE subject_type=? AND subject_id=? AND is_hidden=0"
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews"+cond, subjectType, subjectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+reviewCols+" FROM reviews"+cond+" ORDER BY id DESC LIMIT ? OFFSET ?",
		subjectType, subjectID, pg.Limit(), pg.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Review, 0, pg.Limit())
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rv)
	}
	return out, total, rows.Err()
}

// Summary aggregates the visible ratings of a subject.  The average is
// rounded to two decimals.
func (r *ReviewRepo) Summary(ctx context.Context, subjectType string, subjectID uint64) (model.RatingSummary, error) {
	var s model.RatingSummary
	rows, err := r.db.QueryContext(ctx,
		"SELECT rating, COUNT(*) FROM reviews WHERE subject_type=? AND subject_id=? AND is_hidden=0 GROUP BY rating",
		subjectType, subjectID)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	var sum int64
	for rows.Next() {
		var rating int
		var n int64
		if err := rows.Scan(&rating, &n); err != nil {
			return s, err
		}
		if rating < 1 || rating > 5 {
			continue
		}
		s.Histogram[rating-1] = n
		s.Count += n
		sum += int64(rating) * n
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	if s.Count > 0 {
		s.Average = math.Round(float64(sum)/float64(s.Count)*100) / 100
	}
	return s, nil
}

// SetHidden hides or unhides a review.
func (r *ReviewRepo) SetHidden(ctx context.Context, q Querier, id uint64, hidden bool) error {
	res, err := q.ExecContext(ctx, "UPDATE reviews SET is_hidden=? WHERE id=?", hidden, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows when the flag already had the value.
		var exists int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews WHERE id=?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// GetByID reads a review regardless of visibility.
func (r *ReviewRepo) GetByID(ctx context.Context, id uint64) (model.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, "SELECT "+reviewCols+" FROM reviews WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return rv, ErrNotFound
	}
	return rv, err
}
