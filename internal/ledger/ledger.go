// Package ledger keeps the human-readable audit logs of per-document outcomes.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
)

var (
	// ErrMalformedLedger means the stored ledger rows disagree with its header.
	ErrMalformedLedger = errors.New("malformed ledger")
	// ErrColumnMismatch means a new row does not have the header's width.
	ErrColumnMismatch = errors.New("row does not match ledger header")
)

var (
	SuccessHeader = []string{"document_id", "partition", "output_key", "archive", "page_count", "processed_at"}
	FailureHeader = []string{"document_id", "error_message"}
	// ExtractionHeader is the header of the table extraction ledger.
	ExtractionHeader = []string{"file", "status", "error", "bank_name", "year", "presence"}
)

// Store persists ledgers by id. Read returns the header as the first row.
type Store interface {
	Append(ctx context.Context, ledgerID string, header, row []string) error
	Read(ctx context.Context, ledgerID string) ([][]string, error)
}

// Ledger binds a store to one ledger id and header.
type Ledger struct {
	store  Store
	id     string
	header []string
}

func New(store Store, id string, header []string) *Ledger {
	return &Ledger{store: store, id: id, header: header}
}

func (l *Ledger) ID() string { return l.id }

func (l *Ledger) Header() []string { return l.header }

func (l *Ledger) Append(ctx context.Context, row ...string) error {
	return l.store.Append(ctx, l.id, l.header, row)
}

// Rows returns data rows without the header.
func (l *Ledger) Rows(ctx context.Context) ([][]string, error) {
	rows, err := l.store.Read(ctx, l.id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}

func checkRow(header, row []string) error {
	if len(row) != len(header) {
		return fmt.Errorf("%w: got %d columns, header has %d", ErrColumnMismatch, len(row), len(header))
	}
	return nil
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeCSV parses a ledger body and checks every row against the first.
func decodeCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLedger, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	width := len(rows[0])
	for i, row := range rows[1:] {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, header has %d", ErrMalformedLedger, i+2, len(row), width)
		}
	}
	return rows, nil
}
