// Package repository holds the SQL data access layer.  The sentinel
// errors below let handlers and services tell failure scenarios apart
// without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with existing rows, such
// as a duplicate review or a second pending refund for the same ticket.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned by conditional updates whose status guard
// did not match, e.g. approving a payout that is no longer PENDING.
var ErrInvalidState = errors.New("invalid state transition")

// ErrInsufficientFunds is returned when a wallet debit would take the
// available balance below zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrEmailExists is returned on registration with a taken email.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports a MySQL unique-key violation (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "1062")
}
