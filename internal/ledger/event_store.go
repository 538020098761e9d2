package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

// EventStore writes every row as its own immutable object, so appends never
// read first and cannot clobber each other. Compact folds the events into the
// flat CSV object that CSVStore would have produced.
type EventStore struct {
	storage storage.Storage
	root    string
	now     func() time.Time
	logger  logger.Logger
}

func NewEventStore(st storage.Storage, root string, log logger.Logger) *EventStore {
	return &EventStore{storage: st, root: root, now: time.Now, logger: log}
}

// EventPrefix is where the events of ledgerID live, e.g.
// "<root>processed_files/events/" for "processed_files.csv".
func (s *EventStore) EventPrefix(ledgerID string) string {
	return s.root + strings.TrimSuffix(ledgerID, ".csv") + "/events/"
}

func (s *EventStore) Append(ctx context.Context, ledgerID string, header, row []string) error {
	if err := checkRow(header, row); err != nil {
		return err
	}
	data, err := encodeCSV([][]string{header, row})
	if err != nil {
		return err
	}
	// Zero-padded nanos keep lexical order equal to write order per writer.
	key := fmt.Sprintf("%s%020d-%s.csv", s.EventPrefix(ledgerID), s.now().UnixNano(), uuid.NewString())
	if err := s.storage.Put(ctx, key, data, "text/csv"); err != nil {
		return fmt.Errorf("failed to write ledger event %s: %w", key, err)
	}
	return nil
}

// Read merges all events in key order behind the header of the first one.
func (s *EventStore) Read(ctx context.Context, ledgerID string) ([][]string, error) {
	keys, _, err := storage.ListAll(ctx, s.storage, s.EventPrefix(ledgerID), "")
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	sort.Strings(keys)

	var rows [][]string
	for _, key := range keys {
		data, err := s.storage.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger event %s: %w", key, err)
		}
		event, err := decodeCSV(data)
		if err != nil {
			return nil, fmt.Errorf("ledger event %s: %w", key, err)
		}
		if len(event) == 0 {
			continue
		}
		if rows == nil {
			rows = [][]string{event[0]}
		}
		for _, r := range event[1:] {
			if len(r) != len(rows[0]) {
				return nil, fmt.Errorf("%w: event %s has %d columns, header has %d", ErrMalformedLedger, key, len(r), len(rows[0]))
			}
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// Compact rewrites the flat CSV ledger from all events and returns the
// number of data rows written. Events are kept; compaction is repeatable.
func (s *EventStore) Compact(ctx context.Context, ledgerID string, header []string) (int, error) {
	rows, err := s.Read(ctx, ledgerID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		rows = [][]string{header}
	}
	data, err := encodeCSV(rows)
	if err != nil {
		return 0, err
	}
	key := s.root + ledgerID
	if err := s.storage.Put(ctx, key, data, "text/csv"); err != nil {
		return 0, fmt.Errorf("failed to write compacted ledger %s: %w", key, err)
	}
	s.logger.Info("Compacted ledger",
		logger.String("ledger", ledgerID),
		logger.Int("rows", len(rows)-1),
	)
	return len(rows) - 1, nil
}
