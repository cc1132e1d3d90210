package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/security"
)

// FileSource reads import records from a JSON array on disk.
type FileSource struct {
	path string
}

var _ commands.ImportSource = (*FileSource)(nil)

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements commands.ImportSource.
func (s *FileSource) Name() string {
	return "file:" + filepath.Base(s.path)
}

// Load implements commands.ImportSource.
func (s *FileSource) Load(ctx context.Context) ([]commands.ImportRecord, error) {
	data, err := security.ReadInputFile(s.path, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	var records []commands.ImportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	for i := range records {
		records[i].Status = NormalizeStatus(records[i].Status)
	}
	return records, nil
}
