// Package clockstore persists the knowledge vector of a synchronizing
// identity. The vector document is created lazily and only ever grows.
package clockstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
)

// Documents is implemented by every backend able to hold vector documents.
// AdvanceVector must upsert atomically, keeping the per-process maximum.
type Documents interface {
	LoadVector(ctx context.Context, identity string) (models.KnowledgeVector, error)
	AdvanceVector(ctx context.Context, identity, processID string, value int64) (models.KnowledgeVector, error)
}

type Store struct {
	docs     Documents
	identity string
}

func New(docs Documents, identity string) *Store {
	return &Store{docs: docs, identity: identity}
}

// Get loads the vector. When the document, or the entry for processID, is
// missing and createIfMissing is set, an entry of zero is persisted first.
// found reports whether the document existed before the call.
func (s *Store) Get(ctx context.Context, processID string, createIfMissing bool) (models.KnowledgeVector, bool, error) {
	kv, err := s.docs.LoadVector(ctx, s.identity)
	found := err == nil
	switch {
	case errors.Is(err, common.ErrNotFound):
		if !createIfMissing {
			return nil, false, fmt.Errorf("knowledge vector of %s: %w", s.identity, common.ErrNotFound)
		}
	case err != nil:
		return nil, false, fmt.Errorf("load knowledge vector: %w", err)
	default:
		if _, ok := kv[processID]; ok || !createIfMissing {
			return kv, true, nil
		}
	}

	kv, err = s.docs.AdvanceVector(ctx, s.identity, processID, 0)
	if err != nil {
		return nil, found, fmt.Errorf("create knowledge vector: %w", err)
	}
	return kv, found, nil
}

// Advance raises the clock of processID to max(current, value).
func (s *Store) Advance(ctx context.Context, processID string, value int64) (models.KnowledgeVector, error) {
	kv, err := s.docs.AdvanceVector(ctx, s.identity, processID, value)
	if err != nil {
		return nil, fmt.Errorf("advance knowledge vector to %d: %w", value, err)
	}
	return kv, nil
}
