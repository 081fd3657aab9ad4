// Package ingest decodes uploaded account files into records.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported file format. Please upload CSV or JSON")

// FormatFromFilename picks the decoder from a file extension.
func FormatFromFilename(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Decode reads all records from r in the given format.
func Decode(r io.Reader, format string) ([]domain.AccountRecord, error) {
	switch format {
	case FormatCSV:
		return DecodeCSV(r)
	case FormatJSON:
		return DecodeJSON(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// DecodeCSV reads a header row followed by one account per row.
// Every value is kept as a string; short rows leave trailing fields unset.
func DecodeCSV(r io.Reader) ([]domain.AccountRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []domain.AccountRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	records := make([]domain.AccountRecord, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		if isBlankRow(row) {
			continue
		}

		rec := make(domain.AccountRecord, len(header))
		for i, key := range header {
			if key == "" || i >= len(row) {
				continue
			}
			rec[key] = row[i]
		}
		records = append(records, rec)
	}

	return records, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// DecodeJSON reads either an array of account objects or a single object.
func DecodeJSON(r io.Reader) ([]domain.AccountRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []domain.AccountRecord{}, nil
	}

	if data[0] == '[' {
		var records []domain.AccountRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		out := make([]domain.AccountRecord, 0, len(records))
		for _, rec := range records {
			if rec != nil {
				out = append(out, rec)
			}
		}
		return out, nil
	}

	var rec domain.AccountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if rec == nil {
		return []domain.AccountRecord{}, nil
	}
	return []domain.AccountRecord{rec}, nil
}
