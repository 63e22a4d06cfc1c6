// Package memstore is an in-process remote object store. It backs tests and
// the client's offline demo mode, and follows the same contract as the
// Postgres and S3 stores: children are stored as separate documents and only
// attached on IncludeRelations queries.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/google/uuid"
)

// ChildKinds tells which kinds are relational children.
type ChildKinds interface {
	IsChild(kind models.Kind) bool
}

// WriteHook may veto a write before it happens. op is one of "save",
// "update", "tombstone", "delete", "link" or "advance".
type WriteHook func(op string, e *models.Entity) error

type Store struct {
	mu       sync.Mutex
	children ChildKinds
	objects  map[string]*models.Entity
	vectors  map[string]models.KnowledgeVector
	seen     map[models.Kind]bool
	writes   int
	now      func() time.Time

	// StrictSchema makes queries on never-written kinds fail with
	// ErrSchemaMissing, the way a schemaless backend behaves before the
	// first document of a class exists.
	StrictSchema bool
	Hook         WriteHook

	offline atomic.Bool
}

func New(children ChildKinds) *Store {
	return &Store{
		children: children,
		objects:  map[string]*models.Entity{},
		vectors:  map[string]models.KnowledgeVector{},
		seen:     map[models.Kind]bool{},
		now:      time.Now,
	}
}

// Writes counts successful mutations, vector advances included.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetOffline makes Ping fail with ErrUnavailable until it is called again
// with false.
func (s *Store) SetOffline(offline bool) {
	s.offline.Store(offline)
}

func (s *Store) Ping(context.Context) error {
	if s.offline.Load() {
		return common.ErrUnavailable
	}
	return nil
}

func (s *Store) Query(_ context.Context, q models.Query) ([]*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StrictSchema && !s.seen[q.Kind] {
		return nil, fmt.Errorf("query %s: %w", q.Kind, common.ErrSchemaMissing)
	}

	var out []*models.Entity
	for _, o := range s.objects {
		if o.Kind != q.Kind || !q.Matches(o) {
			continue
		}
		c := o.Clone()
		if q.IncludeRelations {
			c.Children = s.childrenOf(c.UUID)
		}
		out = append(out, c)
	}
	models.SortByClock(out)
	return out, nil
}

func (s *Store) Save(_ context.Context, e *models.Entity) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hook("save", e); err != nil {
		return nil, err
	}
	if _, exists := s.objects[e.UUID]; exists {
		return nil, fmt.Errorf("save %s %s: %w", e.Kind, e.UUID, common.ErrUUIDConflict)
	}

	stored := e.Clone()
	stored.Children = nil
	stored.Pending = false
	if stored.RemoteRef == "" {
		stored.RemoteRef = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.put(stored)
	return stored.Clone(), nil
}

func (s *Store) Update(_ context.Context, e *models.Entity) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hook("update", e); err != nil {
		return nil, err
	}
	cur, ok := s.objects[e.UUID]
	if !ok {
		return nil, fmt.Errorf("update %s %s: %w", e.Kind, e.UUID, common.ErrNotFound)
	}

	stored := e.Clone()
	stored.Children = nil
	stored.Pending = false
	stored.RemoteRef = cur.RemoteRef
	stored.CreatedAt = cur.CreatedAt
	s.put(stored)
	return stored.Clone(), nil
}

func (s *Store) Tombstone(_ context.Context, e *models.Entity) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hook("tombstone", e); err != nil {
		return nil, err
	}
	cur, ok := s.objects[e.UUID]
	if !ok {
		return nil, fmt.Errorf("tombstone %s %s: %w", e.Kind, e.UUID, common.ErrNotFound)
	}

	stored := cur.Clone()
	deletedAt := s.now()
	if e.DeletedAt != nil {
		deletedAt = *e.DeletedAt
	}
	stored.DeletedAt = &deletedAt
	stored.LogicalClock = e.LogicalClock
	stored.UpdatedAt = e.UpdatedAt
	s.put(stored)
	return stored.Clone(), nil
}

func (s *Store) Delete(_ context.Context, e *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hook("delete", e); err != nil {
		return err
	}
	if _, ok := s.objects[e.UUID]; !ok {
		return fmt.Errorf("delete %s %s: %w", e.Kind, e.UUID, common.ErrNotFound)
	}
	delete(s.objects, e.UUID)
	s.writes++
	return nil
}

func (s *Store) LinkVersion(_ context.Context, kind models.Kind, previousUUID, nextUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.objects[previousUUID]
	if !ok || cur.Kind != kind {
		return fmt.Errorf("link %s %s: %w", kind, previousUUID, common.ErrNotFound)
	}
	if err := s.hook("link", cur); err != nil {
		return err
	}
	switch cur.NextVersionUUID {
	case nextUUID:
		return nil
	case "":
	default:
		return fmt.Errorf("%w: %s already continues with %s, not %s",
			common.ErrBrokenChain, previousUUID, cur.NextVersionUUID, nextUUID)
	}

	stored := cur.Clone()
	stored.NextVersionUUID = nextUUID
	s.put(stored)
	return nil
}

func (s *Store) LoadVector(_ context.Context, identity string) (models.KnowledgeVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, ok := s.vectors[identity]
	if !ok {
		return nil, common.ErrNotFound
	}
	return kv.Clone(), nil
}

func (s *Store) AdvanceVector(_ context.Context, identity, processID string, value int64) (models.KnowledgeVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hook("advance", &models.Entity{ID: identity, LogicalClock: value}); err != nil {
		return nil, err
	}
	kv, ok := s.vectors[identity]
	if !ok {
		kv = models.KnowledgeVector{}
		s.vectors[identity] = kv
	}
	kv.Advance(processID, value)
	s.writes++
	return kv.Clone(), nil
}

func (s *Store) hook(op string, e *models.Entity) error {
	if s.Hook == nil {
		return nil
	}
	return s.Hook(op, e)
}

func (s *Store) put(e *models.Entity) {
	s.objects[e.UUID] = e
	s.seen[e.Kind] = true
	s.writes++
}

func (s *Store) childrenOf(parentUUID string) []*models.Entity {
	var out []*models.Entity
	for _, o := range s.objects {
		if o.ParentUUID == parentUUID && s.children != nil && s.children.IsChild(o.Kind) {
			out = append(out, o.Clone())
		}
	}
	models.SortByPosition(out)
	return out
}
