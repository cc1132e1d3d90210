package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// parseOptionalDate accepts RFC3339 or YYYY-MM-DD. Empty means not supplied.
func parseOptionalDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		utc := parsed.UTC()
		return &utc, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, use RFC3339 or YYYY-MM-DD", value)
	}
	return &parsed, nil
}

// resolveUserID parses value, falling back to the configured admin user.
func resolveUserID(value string, fallback uuid.UUID) (uuid.UUID, error) {
	if value == "" {
		if fallback == uuid.Nil {
			return uuid.Nil, fmt.Errorf("user_id is required")
		}
		return fallback, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user_id: %w", err)
	}
	return id, nil
}
