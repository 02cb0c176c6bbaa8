package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxAttempts = 3

// IsBusy reports whether err is an SQLite lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs a statement, retrying BUSY errors with 100/200 ms pauses.
// The scheduler and the run log write from different goroutines.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil || !IsBusy(err) || attempt == maxAttempts {
			return res, err
		}
		t := time.NewTimer(time.Duration(100*attempt) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("dbopen: retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}
