package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// classifyFault maps a driver error onto the storage.Fault enum
func classifyFault(err error) storage.Fault {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return storage.FaultTimeout
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return storage.FaultUnavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return storage.FaultConflict
		case "57014": // query_canceled
			return storage.FaultTimeout
		case "57P01", "57P02", "57P03": // admin_shutdown, crash_shutdown, cannot_connect_now
			return storage.FaultUnavailable
		}
		switch pqErr.Code.Class() {
		case "23": // integrity_constraint_violation
			return storage.FaultConstraint
		case "08", "53": // connection_exception, insufficient_resources
			return storage.FaultUnavailable
		}
		return storage.FaultUnknown
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return storage.FaultConflict
		case sqlite3.ErrConstraint:
			return storage.FaultConstraint
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return storage.FaultUnavailable
		}
		return storage.FaultUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return storage.FaultTimeout
		}
		return storage.FaultUnavailable
	}

	return storage.FaultUnknown
}

// wrapFault converts a driver error for callers. sql.ErrNoRows becomes
// storage.ErrNotFound.
func (s *queries) wrapFault(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var fe *storage.FaultError
	if errors.As(err, &fe) {
		return err
	}
	fault := classifyFault(err)
	if s.onFault != nil {
		s.onFault(op, fault)
	}
	return &storage.FaultError{Fault: fault, Op: op, Err: err}
}
