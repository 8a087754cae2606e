// Package baglamaerr classifies the error kinds the pipeline needs to
// branch on (§7 of the spec): which ones are fatal, which ones are
// retriable at the gateway layer, and which ones mark-and-continue on a
// single row rather than failing the whole job.
package baglamaerr

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers classify with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConfig           = errors.New("invalid configuration")
	ErrDate             = errors.New("year/month out of range")
	ErrUnknownWiki      = errors.New("unknown wiki identifier")
	ErrUnknownServer    = errors.New("unknown server")
	ErrNamespaceUnknown = errors.New("namespace could not be resolved")
	ErrCategoryMissing  = errors.New("category no longer exists")
	ErrRowDecode        = errors.New("row does not match expected shape")
)

// Wrap attaches op context to err, converting sql.ErrNoRows to ErrNotFound
// so callers can use errors.Is uniformly regardless of backend.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryable reports whether err looks like a transient connection
// failure worth retrying at the gateway layer (§4.1: "a retriable failure
// drops the connection and retransmits"). Mirrors the teacher's
// isRetryableError classification for go-sql-driver/mysql.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "driver: bad connection"):
		return true
	case strings.Contains(s, "invalid connection"):
		return true
	case strings.Contains(s, "broken pipe"):
		return true
	case strings.Contains(s, "connection reset"):
		return true
	case strings.Contains(s, "connection refused"):
		return true
	case strings.Contains(s, "lost connection"):
		return true
	case strings.Contains(s, "gone away"):
		return true
	case strings.Contains(s, "i/o timeout"):
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
