package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ChildKinds lists the relational child kinds attached on IncludeRelations.
type ChildKinds interface {
	ChildKinds() []models.Kind
}

// ObjectStoreService is the server side of the remote object store. It
// assigns remote references and creation times, and keeps read-modify-write
// operations inside one transaction.
type ObjectStoreService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	kinds       ChildKinds
	now         func() time.Time
}

func NewObjectStoreService(db *sql.DB, m repomanager.RepositoryManager, kinds ChildKinds) *ObjectStoreService {
	return &ObjectStoreService{db: db, repomanager: m, kinds: kinds, now: time.Now}
}

func (s *ObjectStoreService) Query(ctx context.Context, q models.Query) ([]*models.Entity, error) {
	repo := s.repomanager.Objects(s.db)

	list, err := repo.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	if !q.IncludeRelations || len(list) == 0 {
		return list, nil
	}

	byParent := make(map[string]*models.Entity, len(list))
	parents := make([]string, 0, len(list))
	for _, e := range list {
		byParent[e.UUID] = e
		parents = append(parents, e.UUID)
	}
	children, err := repo.Children(ctx, parents, s.kinds.ChildKinds())
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if p, ok := byParent[c.ParentUUID]; ok {
			p.Children = append(p.Children, c)
		}
	}
	for _, e := range list {
		models.SortByPosition(e.Children)
	}
	return list, nil
}

func (s *ObjectStoreService) Save(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	stored := e.Clone()
	stored.Children = nil
	stored.Pending = false
	if stored.RemoteRef == "" {
		stored.RemoteRef = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}

	if err := s.repomanager.Objects(s.db).Insert(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *ObjectStoreService) Update(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Entity, error) {
		repo := s.repomanager.Objects(tx)
		cur, err := repo.Get(ctx, e.UUID)
		if err != nil {
			return nil, err
		}

		stored := e.Clone()
		stored.Children = nil
		stored.Pending = false
		stored.RemoteRef = cur.RemoteRef
		stored.CreatedAt = cur.CreatedAt
		if err := repo.Replace(ctx, stored); err != nil {
			return nil, err
		}
		return stored, nil
	})
}

func (s *ObjectStoreService) Tombstone(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Entity, error) {
		repo := s.repomanager.Objects(tx)
		cur, err := repo.Get(ctx, e.UUID)
		if err != nil {
			return nil, err
		}

		deletedAt := s.now().UTC()
		if e.DeletedAt != nil {
			deletedAt = *e.DeletedAt
		}
		cur.DeletedAt = &deletedAt
		cur.LogicalClock = e.LogicalClock
		cur.UpdatedAt = e.UpdatedAt
		if err := repo.Replace(ctx, cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
}

func (s *ObjectStoreService) Delete(ctx context.Context, e *models.Entity) error {
	return s.repomanager.Objects(s.db).Delete(ctx, e.UUID)
}

// LinkVersion points previousUUID at nextUUID unless another version got
// there first.
func (s *ObjectStoreService) LinkVersion(ctx context.Context, kind models.Kind, previousUUID, nextUUID string) error {
	if previousUUID == "" || nextUUID == "" {
		return fmt.Errorf("link version: empty uuid: %w", common.ErrInvalidEntity)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Objects(tx)
		cur, err := repo.Get(ctx, previousUUID)
		if err != nil {
			return err
		}
		if cur.Kind != kind {
			return fmt.Errorf("link %s %s: %w", kind, previousUUID, common.ErrNotFound)
		}
		return repo.LinkNext(ctx, previousUUID, nextUUID)
	})
}

// History returns every stored version of one record, oldest first.
func (s *ObjectStoreService) History(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error) {
	list, err := s.repomanager.Objects(s.db).Select(ctx, models.Query{Kind: kind, ID: id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
	}
	return list, nil
}

func (s *ObjectStoreService) LoadVector(ctx context.Context, identity string) (models.KnowledgeVector, error) {
	return s.repomanager.Vectors(s.db).Load(ctx, identity)
}

// AdvanceVector raises one entry and returns the whole vector as committed.
func (s *ObjectStoreService) AdvanceVector(ctx context.Context, identity, processID string, value int64) (models.KnowledgeVector, error) {
	if identity == "" || processID == "" {
		return nil, fmt.Errorf("advance vector: empty identity or process: %w", common.ErrInvalidEntity)
	}
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (models.KnowledgeVector, error) {
		repo := s.repomanager.Vectors(tx)
		if err := repo.Advance(ctx, identity, processID, value); err != nil {
			return nil, err
		}
		kv, err := repo.Load(ctx, identity)
		if errors.Is(err, common.ErrNotFound) {
			return models.KnowledgeVector{processID: value}, nil
		}
		return kv, err
	})
}

func (s *ObjectStoreService) Identities(ctx context.Context) ([]string, error) {
	return s.repomanager.Vectors(s.db).Identities(ctx)
}
