package database

import (
	"fmt"
	"strings"
)

// Driver represents a database backend type.
type Driver string

const (
	// DriverPostgres is the server-mode store.
	DriverPostgres Driver = "postgres"
	// DriverSQLite is the single-file local store.
	DriverSQLite Driver = "sqlite"
)

// String returns the string representation of the driver.
func (d Driver) String() string {
	return string(d)
}

// IsValid returns true if the driver is a known type.
func (d Driver) IsValid() bool {
	switch d {
	case DriverPostgres, DriverSQLite:
		return true
	default:
		return false
	}
}

// DetectDriver infers the driver from a connection string.
// An empty URL selects SQLite so the service runs without a server.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return DriverSQLite
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(url, ext) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}

// ResolveDriver honours an explicit driver name and falls back to detection
// from the URL when the name is empty or "auto".
func ResolveDriver(explicit, url string) (Driver, error) {
	if explicit == "" || explicit == "auto" {
		return DetectDriver(url), nil
	}
	d := Driver(strings.ToLower(explicit))
	if !d.IsValid() {
		return "", fmt.Errorf("unsupported database driver: %s", explicit)
	}
	return d, nil
}
