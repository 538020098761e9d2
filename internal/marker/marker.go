// Package marker records which documents have been fully processed. A marker
// object's presence is the only signal of completion.
package marker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
	"github.com/feichai0017/filing-pipeline/pkg/storage"
)

const suffix = ".ok"

type Store struct {
	storage     storage.Storage
	root        string
	conditional bool
	now         func() time.Time
	logger      logger.Logger
}

type Option func(*Store)

// WithConditionalWrites makes Write use create-if-absent when the backend
// supports it.
func WithConditionalWrites(enabled bool) Option {
	return func(s *Store) {
		s.conditional = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(st storage.Storage, root string, log logger.Logger, opts ...Option) *Store {
	s := &Store{storage: st, root: root, now: time.Now, logger: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hash is the hex sha1 of the document identity.
func Hash(ref models.SourceRef) string {
	sum := sha1.Sum([]byte(ref.ID()))
	return hex.EncodeToString(sum[:])
}

// Key is the object key of ref's marker.
func (s *Store) Key(ref models.SourceRef) string {
	return s.root + Hash(ref) + suffix
}

// Exists treats not-found as false and returns every other error.
func (s *Store) Exists(ctx context.Context, ref models.SourceRef) (bool, error) {
	err := s.storage.Head(ctx, s.Key(ref))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("marker check for %s: %w", ref.ID(), err)
	}
}

// Write records ref as done with its output key. With conditional writes a
// marker that already exists is left untouched and Write still succeeds.
func (s *Store) Write(ctx context.Context, ref models.SourceRef, outputKey string) error {
	payload, err := json.Marshal(models.ProcessingMarker{
		PDFKey:    ref.Key,
		Archive:   ref.Archive,
		JSONKey:   outputKey,
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal marker: %w", err)
	}

	key := s.Key(ref)
	if cp, ok := s.storage.(storage.ConditionalPutter); ok && s.conditional {
		err := cp.PutIfAbsent(ctx, key, payload, "application/json")
		if errors.Is(err, storage.ErrPreconditionFailed) {
			s.logger.Info("Marker already present",
				logger.String("document", ref.ID()),
				logger.String("marker", key),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("marker write for %s: %w", ref.ID(), err)
		}
		return nil
	}

	if err := s.storage.Put(ctx, key, payload, "application/json"); err != nil {
		return fmt.Errorf("marker write for %s: %w", ref.ID(), err)
	}
	return nil
}

// Read decodes an existing marker.
func (s *Store) Read(ctx context.Context, ref models.SourceRef) (*models.ProcessingMarker, error) {
	data, err := s.storage.Get(ctx, s.Key(ref))
	if err != nil {
		return nil, err
	}
	var m models.ProcessingMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt marker %s: %w", s.Key(ref), err)
	}
	return &m, nil
}
