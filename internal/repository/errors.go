// Package repository holds the MySQL persistence for trips,
// reservations, routes and buses together with the sentinel errors the
// service layer branches on. ErrConflict is the lost-update signal:
// every versioned write that matches zero rows returns it, and the
// reservation coordinator retries the whole unit of work.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row addressed by id or code is absent.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate it into an HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update lost a race: the stored version
// no longer matches the one the caller loaded. Handlers translate it
// into an HTTP 409 response once the retry budget is spent.
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

// isDuplicateKey reports a unique index violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return err != nil && strings.Contains(err.Error(), "1062")
}

// duplicateKeyOn reports a unique violation of the named index. MySQL
// names the index at the end of the message: "... for key 'name'" or,
// since 8.0, "... for key 'table.name'".
func duplicateKeyOn(err error, index string) bool {
	if !isDuplicateKey(err) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "'"+index+"'") || strings.Contains(msg, "."+index+"'")
}
