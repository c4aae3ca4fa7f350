// Package export renders trip summaries as PDF or DOCX documents.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	TripID string
	UserID string
	Format Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// TripInfo holds trip metadata for export
type TripInfo struct {
	ID          string
	Name        string
	Destination string
	StartDate   *time.Time
	EndDate     *time.Time
	OwnerName   string
}

// ParticipantInfo holds a trip member for export
type ParticipantInfo struct {
	DisplayName string
	Email       string
	Status      string
}

// ChecklistInfo holds a checklist with its items for export
type ChecklistInfo struct {
	Name  string
	Type  string // "personal" or "group"
	Items []ItemInfo
}

// ItemInfo holds a checklist item for export
type ItemInfo struct {
	Content   string
	IsChecked bool
}

var (
	// ErrTripUnavailable indicates trip data could not be loaded for export.
	ErrTripUnavailable = errors.New("export trip unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
