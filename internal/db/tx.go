// Package db holds small database/sql helpers shared by the state layer.
package db

import (
	"database/sql"
)

// WithTx executes fn within a transaction.
// It handles Begin, Rollback on error, and Commit on success.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// NullableString returns nil for an empty string so the column stores NULL
// instead of "".
func NullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// StringValue returns the string value or empty string if not valid.
func StringValue(n sql.NullString) string {
	if !n.Valid {
		return ""
	}
	return n.String
}

// Int64Value returns the int64 value or 0 if not valid.
func Int64Value(n sql.NullInt64) int64 {
	if !n.Valid {
		return 0
	}
	return n.Int64
}
