// Package security guards operator-supplied input files.
package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxInputBytes bounds webhook payloads and import files.
const DefaultMaxInputBytes int64 = 32 << 20

// ErrFileTooLarge is returned when an input file exceeds the read limit.
var ErrFileTooLarge = errors.New("input file too large")

// shell metacharacters never appear in paths we accept
var dangerousChars = []string{";", "&", "|", "$", "`", "<", ">", "\n", "\r"}

// ValidateFilePath cleans path, makes it absolute and resolves symlinks.
// Paths that do not exist yet are returned cleaned.
func ValidateFilePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return "", fmt.Errorf("file path contains forbidden character %q", char)
		}
	}

	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cleanPath, nil
		}
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	return resolved, nil
}

// ReadInputFile reads a validated regular file of at most maxBytes.
// A non-positive maxBytes selects DefaultMaxInputBytes.
func ReadInputFile(path string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInputBytes
	}

	cleanPath, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - path is validated above
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", filepath.Base(cleanPath))
	}

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}
