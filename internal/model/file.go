package model

import (
	"fmt"
	"time"
)

// MaxUploadSize is the largest design file the backend accepts (500 MiB).
const MaxUploadSize int64 = 500 * 1024 * 1024

// DesignFile is an uploaded design document, usually a PDF.
type DesignFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ValidateUploadSize rejects files larger than MaxUploadSize.
// A file of exactly MaxUploadSize bytes is accepted.
func ValidateUploadSize(name string, size int64) error {
	if size > MaxUploadSize {
		return fmt.Errorf(
			"%s is %s, which exceeds the %s upload limit",
			name, FormatBytes(size), FormatBytes(MaxUploadSize),
		)
	}
	return nil
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d %ciB", int64(value), "KMGTPE"[exp])
	}
	return fmt.Sprintf("%.1f %ciB", value, "KMGTPE"[exp])
}
