package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

// CSVStore keeps each ledger as one CSV object under root and appends by
// reading the whole object, adding the row and overwriting it. Two appends
// that both read before either writes lose one row; use EventStore or
// RedisStore when several writers share a ledger.
type CSVStore struct {
	storage storage.Storage
	root    string
	logger  logger.Logger
}

func NewCSVStore(st storage.Storage, root string, log logger.Logger) *CSVStore {
	return &CSVStore{storage: st, root: root, logger: log}
}

// Key is the object key of ledgerID.
func (s *CSVStore) Key(ledgerID string) string {
	return s.root + ledgerID
}

func (s *CSVStore) Append(ctx context.Context, ledgerID string, header, row []string) error {
	rows, err := s.Read(ctx, ledgerID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		rows = [][]string{header}
	}
	if err := checkRow(rows[0], row); err != nil {
		return err
	}
	rows = append(rows, row)

	data, err := encodeCSV(rows)
	if err != nil {
		return err
	}
	if err := s.storage.Put(ctx, s.Key(ledgerID), data, "text/csv"); err != nil {
		return fmt.Errorf("failed to write ledger %s: %w", ledgerID, err)
	}
	return nil
}

// Read returns every row including the header; a missing ledger is empty.
func (s *CSVStore) Read(ctx context.Context, ledgerID string) ([][]string, error) {
	data, err := s.storage.Get(ctx, s.Key(ledgerID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", ledgerID, err)
	}
	rows, err := decodeCSV(data)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", ledgerID, err)
	}
	return rows, nil
}
