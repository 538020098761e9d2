package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore appends with RPUSH, which is atomic on the server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ledger:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) headerKey(id string) string { return s.prefix + id + ":header" }
func (s *RedisStore) rowsKey(id string) string   { return s.prefix + id + ":rows" }

func (s *RedisStore) Append(ctx context.Context, ledgerID string, header, row []string) error {
	encoded, err := encodeCSV([][]string{header})
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, s.headerKey(ledgerID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("failed to set ledger header: %w", err)
	}

	stored, err := s.header(ctx, ledgerID)
	if err != nil {
		return err
	}
	if err := checkRow(stored, row); err != nil {
		return err
	}

	line, err := encodeCSV([][]string{row})
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.rowsKey(ledgerID), line).Err(); err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	return nil
}

func (s *RedisStore) header(ctx context.Context, ledgerID string) ([]string, error) {
	raw, err := s.client.Get(ctx, s.headerKey(ledgerID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger header: %w", err)
	}
	rows, err := decodeCSV(raw)
	if err != nil || len(rows) != 1 {
		return nil, fmt.Errorf("%w: header of %s", ErrMalformedLedger, ledgerID)
	}
	return rows[0], nil
}

func (s *RedisStore) Read(ctx context.Context, ledgerID string) ([][]string, error) {
	exists, err := s.client.Exists(ctx, s.headerKey(ledgerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}
	header, err := s.header(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	lines, err := s.client.LRange(ctx, s.rowsKey(ledgerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger rows: %w", err)
	}
	rows := [][]string{header}
	for _, line := range lines {
		parsed, err := decodeCSV([]byte(line))
		if err != nil || len(parsed) != 1 || len(parsed[0]) != len(header) {
			return nil, fmt.Errorf("%w: row %q", ErrMalformedLedger, line)
		}
		rows = append(rows, parsed[0])
	}
	return rows, nil
}
