package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the largest spreadsheet accepted for import.
const DefaultMaxFileSize int64 = 10 << 20

// MaxDisplayedDataErrors caps the data errors shown after a failed
// validation. The remainder is reported as a count.
const MaxDisplayedDataErrors = 10

// DefaultExtensions lists the accepted spreadsheet extensions.
var DefaultExtensions = []string{".xlsx", ".xls"}

// FileRules are the client-side acceptance checks run before any upload.
type FileRules struct {
	MaxSize    int64
	Extensions []string
}

// DefaultFileRules returns the 10 MiB .xlsx/.xls rules.
func DefaultFileRules() FileRules {
	return FileRules{MaxSize: DefaultMaxFileSize, Extensions: DefaultExtensions}
}

// Check validates the file name and size.
func (r FileRules) Check(name string, size int64) error {
	if strings.TrimSpace(name) == "" {
		return ErrNoFile
	}
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, e := range r.Extensions {
		if strings.EqualFold(ext, e) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, ext)
	}
	maxSize := r.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if size > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, maxSize)
	}
	return nil
}

// ValidationReport is the displayable result of validateFile.
type ValidationReport struct {
	Passed      bool     `json:"passed"`
	ColumnCount int      `json:"columnCount,omitempty"`
	RowCount    int      `json:"rowCount,omitempty"`
	DataTypes   string   `json:"dataTypes,omitempty"`
	Encoding    string   `json:"encoding,omitempty"`
	Structural  []string `json:"structuralErrors,omitempty"`
	Data        []string `json:"dataErrors,omitempty"`
	MoreData    int      `json:"moreDataErrors,omitempty"` // data errors beyond the displayed ones
}

// NewValidationReport builds the report for a decoded validateFile body.
func NewValidationReport(resp ValidateResponse) ValidationReport {
	if resp.Success {
		return ValidationReport{
			Passed:      true,
			ColumnCount: resp.ColumnCount,
			RowCount:    resp.RowCount,
			DataTypes:   resp.DataTypes.String(),
			Encoding:    resp.Encoding.String(),
		}
	}
	structural, data, more := PartitionErrors(resp.Errors)
	return ValidationReport{Structural: structural, Data: data, MoreData: more}
}

// PartitionErrors splits validation errors into structural and data errors.
// A data error mentions both "Row " and "Column ". At most
// MaxDisplayedDataErrors data errors are returned; more counts the rest.
func PartitionErrors(errs []string) (structural, data []string, more int) {
	for _, e := range errs {
		if IsDataError(e) {
			if len(data) < MaxDisplayedDataErrors {
				data = append(data, e)
			} else {
				more++
			}
			continue
		}
		structural = append(structural, e)
	}
	return structural, data, more
}

// IsDataError reports whether a validation message refers to a cell.
func IsDataError(msg string) bool {
	return strings.Contains(msg, "Row ") && strings.Contains(msg, "Column ")
}

// ErrorCount returns the total number of errors in the report.
func (r ValidationReport) ErrorCount() int {
	return len(r.Structural) + len(r.Data) + r.MoreData
}
