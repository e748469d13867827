package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Sentinel errors returned by ChatRepository implementations. Callers
// branch on these with errors.Is rather than inspecting driver errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("store temporarily unavailable")
)

// storeErr translates driver-level failures into the repository's
// error taxonomy. Unknown errors pass through unchanged.
func storeErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case "foreign_key_violation":
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		switch pqErr.Code.Class() {
		case "08", "53", "57":
			// connection, resource and operator-intervention failures
			// are worth retrying with backoff
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return err
}
