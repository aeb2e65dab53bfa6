package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrTransient marks a failure that is expected to go away on retry.
// Backends that are not database/sql based can wrap it.
var ErrTransient = errors.New("transient storage failure")

// transientPGClasses are SQLSTATE classes worth retrying: connection
// exceptions, insufficient resources and operator intervention.
var transientPGClasses = map[pq.ErrorClass]bool{
	"08": true,
	"53": true,
	"57": true,
}

// transientPGCodes are individual SQLSTATE codes worth retrying.
var transientPGCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// IsTransient reports whether err is a connection drop or lock contention
// that a later attempt may not hit.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientPGClasses[pqErr.Code.Class()] || transientPGCodes[pqErr.Code]
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
