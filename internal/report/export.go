package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nhle/costdesk/internal/model"
)

// ExportFileName names a CSV export after its range, falling back to the
// export date for open-ended ranges.
func ExportFileName(rng model.ReportRange, now time.Time) string {
	from, to := rng.From, rng.To
	switch {
	case from != "" && to != "":
		return fmt.Sprintf("costdesk-report-%s_%s.csv", from, to)
	case from != "":
		return fmt.Sprintf("costdesk-report-from-%s.csv", from)
	case to != "":
		return fmt.Sprintf("costdesk-report-to-%s.csv", to)
	}
	return fmt.Sprintf("costdesk-report-%s.csv", now.Format("2006-01-02"))
}

// WriteExport saves data under dir and returns the written path.
func WriteExport(dir string, rng model.ReportRange, data []byte, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, ExportFileName(rng, now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export %s: %w", path, err)
	}
	return path, nil
}
