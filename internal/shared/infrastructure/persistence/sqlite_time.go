package persistence

import (
	"database/sql"
	"time"
)

// sqliteTimeLayout is fixed width so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatSQLiteTime renders t in UTC for a TEXT column.
func FormatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// ParseSQLiteTime parses a TEXT timestamp. It also accepts plain RFC 3339.
func ParseSQLiteTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// NullSQLiteTime converts an optional time to a nullable TEXT value.
func NullSQLiteTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatSQLiteTime(*t), Valid: true}
}

// ParseNullSQLiteTime converts a nullable TEXT column to an optional time.
func ParseNullSQLiteTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := ParseSQLiteTime(v.String)
	if err != nil {
		return nil
	}
	return &t
}
