package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"farmScope/internal/model"
)

// ReportStore persists the report of the last refresh.
type ReportStore interface {
	Load(ctx context.Context) (*model.RefreshReport, bool, error)
	Save(ctx context.Context, report *model.RefreshReport) error
}

// FileReportStore keeps the last report in a local JSON file.
type FileReportStore struct {
	Path string
}

func (s *FileReportStore) Load(ctx context.Context) (*model.RefreshReport, bool, error) {
	if s == nil || s.Path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read report: %w", err)
	}

	var report model.RefreshReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("parse report: %w", err)
	}
	return &report, true, nil
}

func (s *FileReportStore) Save(ctx context.Context, report *model.RefreshReport) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
