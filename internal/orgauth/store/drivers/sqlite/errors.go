package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	sqlite3 "modernc.org/sqlite/lib"
)

// resultCoder is implemented by *sqlite.Error. Matching on the method rather
// than the concrete type keeps the mapping testable with fake driver errors.
type resultCoder interface {
	Code() int
}

// mapErr translates driver errors into store sentinels. The original error is
// kept in the chain for logging.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var rc resultCoder
	if !errors.As(err, &rc) {
		return err
	}

	code := rc.Code()
	switch {
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", store.ErrBusy, err)
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", store.ErrAlreadyExists, err)
	case code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE"):
		// Extended result codes disabled on this connection.
		return fmt.Errorf("%w: %w", store.ErrAlreadyExists, err)
	}
	return err
}
