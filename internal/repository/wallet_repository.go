package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// WalletRepo owns the wallets and transactions tables.  Every balance
// change goes through AdjustTx so the availability guard lives in one
// statement.
type WalletRepo struct{ db *sql.DB }

func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// DB exposes the handle services open transactions on.
func (r *WalletRepo) DB() *sql.DB { return r.db }

const walletCols = "user_id, balance_minor, held_minor, currency, updated_at"

func scanWallet(row *sql.Row) (model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(&w.UserID, &w.BalanceMinor, &w.HeldMinor, &w.Currency, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

// Get reads a wallet without locking.
func (r *WalletRepo) Get(ctx context.Context, userID uint64) (model.Wallet, error) {
	return scanWallet(r.db.QueryRowContext(ctx, "SELECT "+walletCols+" FROM wallets WHERE user_id=?", userID))
}

// GetForUpdateTx locks the wallet row for the rest of tx.
func (r *WalletRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, userID uint64) (model.Wallet, error) {
	return scanWallet(tx.QueryRowContext(ctx, "SELECT "+walletCols+" FROM wallets WHERE user_id=? FOR UPDATE", userID))
}

// AdjustTx adds the deltas to balance and held.  Unless allowNegative is
// set, the update only applies while the resulting available amount stays
// non-negative; held may never drop below zero.  A guard miss returns
// ErrInsufficientFunds.
func (r *WalletRepo) AdjustTx(ctx context.Context, tx *sql.Tx, userID uint64, balanceDelta, heldDelta int64, allowNegative bool) error {
	const q = `UPDATE wallets
	              SET balance_minor = balance_minor + ?, held_minor = held_minor + ?
	            WHERE user_id = ?
	              AND held_minor + ? >= 0
	              AND (? OR (balance_minor + ?) - (held_minor + ?) >= 0)`
	res, err := tx.ExecContext(ctx, q,
		balanceDelta, heldDelta, userID,
		heldDelta,
		allowNegative, balanceDelta, heldDelta)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInsufficientFunds)
}

// TotalBalance sums all wallet balances (admin dashboard).
func (r *WalletRepo) TotalBalance(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT SUM(balance_minor) FROM wallets").Scan(&n)
	return n.Int64, err
}

const txCols = "id, user_id, type, status, amount_minor, reference, provider_ref, description, created_at, updated_at"

func scanTransaction(sc interface{ Scan(...any) error }) (model.Transaction, error) {
	var t model.Transaction
	var providerRef, desc sql.NullString
	err := sc.Scan(&t.ID, &t.UserID, &t.Type, &t.Status, &t.AmountMinor, &t.Reference, &providerRef, &desc, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.ProviderRef = strPtr(providerRef)
	t.Description = desc.String
	return t, nil
}

// InsertTransaction writes a ledger line.  A reused reference is
// ErrConflict.
func (r *WalletRepo) InsertTransaction(ctx context.Context, q Querier, t *model.Transaction) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, status, amount_minor, reference, provider_ref, description)
		 VALUES (?,?,?,?,?,?,?)`,
		t.UserID, t.Type, t.Status, t.AmountMinor, t.Reference, t.ProviderRef, nullStr(t.Description))
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
	t.ID = uint64(id)
	return nil
}

// GetTransactionByReference reads a ledger line by its unique reference.
func (r *WalletRepo) GetTransactionByReference(ctx context.Context, reference string) (model.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, "SELECT "+txCols+" FROM transactions WHERE reference=?", reference))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// GetTransactionForUpdateTx locks a ledger line by reference.
func (r *WalletRepo) GetTransactionForUpdateTx(ctx context.Context, tx *sql.Tx, reference string) (model.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx, "SELECT "+txCols+" FROM transactions WHERE reference=? FOR UPDATE", reference))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// SetTransactionStatusTx moves a ledger line from one status to another.
// A line not in from yields ErrInvalidState.
func (r *WalletRepo) SetTransactionStatusTx(ctx context.Context, tx *sql.Tx, reference, from, to string, providerRef string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE transactions SET status=?, provider_ref=COALESCE(?, provider_ref) WHERE reference=? AND status=?",
		to, nullStr(providerRef), reference, from)
	if err != nil {
		return err
	}
	return mustAffect(res, ErrInvalidState)
}

// ListTransactions pages through a user's ledger, newest first.
func (r *WalletRepo) ListTransactions(ctx context.Context, userID uint64, txType string, pg utils.Page) ([]model.Transaction, int64, error) {
	cond := " WHERE user_id=?"
	args := []any{userID}
	if txType != "" {
		cond += " AND type=?"
		args = append(args, txType)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+txCols+" FROM transactions"+cond+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, pg.Limit(), pg.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Transaction, 0, pg.Limit())
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// StalePendingDeposits returns references of PENDING deposits created
// before cutoff.
func (r *WalletRepo) StalePendingDeposits(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT reference FROM transactions WHERE type='DEPOSIT' AND status='PENDING' AND created_at < ? ORDER BY id LIMIT ?",
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
