package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrijs2005/caresync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/chain"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
	"github.com/google/uuid"
)

// RecordInput describes a local create or edit. On edit, Payload keys are
// merged into the current record and a nil value removes the key; nil
// Children keep the current children.
type RecordInput struct {
	Kind          models.Kind
	ID            string
	ParentID      string
	EffectiveDate time.Time
	Payload       map[string]any
	Aux           map[string]string
	Children      []*models.Entity
}

// RecordService edits care records on the device. Every change is stored
// pending and reaches the remote on the next sync round.
type RecordService interface {
	Create(ctx context.Context, in RecordInput) (*models.Entity, error)
	Edit(ctx context.Context, in RecordInput) (*models.Entity, error)
	Delete(ctx context.Context, kind models.Kind, id string) (*models.Entity, error)
	Get(ctx context.Context, kind models.Kind, id string) (*models.Entity, error)
	History(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error)
	At(ctx context.Context, kind models.Kind, id string, t time.Time) (*models.Entity, error)
	List(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
}

type recordService struct {
	entities entities.Repository
	registry *kinds.Registry
	chain    *chain.Manager
	now      func() time.Time
}

func NewRecordService(repo entities.Repository, registry *kinds.Registry) RecordService {
	return &recordService{
		entities: repo,
		registry: registry,
		chain:    chain.NewManager(repo),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *recordService) Create(ctx context.Context, in RecordInput) (*models.Entity, error) {
	syn, err := s.registry.Lookup(in.Kind)
	if err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	versions, err := s.entities.ListVersions(ctx, in.Kind, in.ID)
	if err != nil {
		return nil, fmt.Errorf("error checking %s %s: %w", in.Kind, in.ID, err)
	}
	if len(versions) > 0 {
		return nil, fmt.Errorf("%w: %s %s already exists", common.ErrInvalidEntity, in.Kind, in.ID)
	}

	now := s.now()
	e := &models.Entity{
		Kind:          in.Kind,
		ID:            in.ID,
		UUID:          uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		EffectiveDate: in.EffectiveDate,
		ParentID:      in.ParentID,
		Payload:       in.Payload,
		Aux:           in.Aux,
		Children:      newChildren(in.Children, now),
		Pending:       true,
	}
	if e.EffectiveDate.IsZero() {
		e.EffectiveDate = now
	}

	if err := s.link(ctx, syn, e); err != nil {
		return nil, err
	}
	if err := syn.Validate(e); err != nil {
		return nil, err
	}
	if err := s.entities.Upsert(ctx, e); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	return e, nil
}

// Edit appends a new version for versioned kinds and changes simple kinds
// in place.
func (s *recordService) Edit(ctx context.Context, in RecordInput) (*models.Entity, error) {
	syn, err := s.registry.Lookup(in.Kind)
	if err != nil {
		return nil, err
	}
	cur, err := s.Get(ctx, in.Kind, in.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := cur.Clone()
	next.UpdatedAt = now
	next.Pending = true
	next.Payload = mergePayload(cur.Payload, in.Payload)
	if in.Aux != nil {
		next.Aux = maps.Clone(in.Aux)
	}
	if in.ParentID != "" {
		next.ParentID = in.ParentID
	}
	if in.Children != nil {
		next.Children = newChildren(in.Children, now)
	}

	if !syn.Versioned() {
		if !in.EffectiveDate.IsZero() {
			next.EffectiveDate = in.EffectiveDate
		}
		if err := s.link(ctx, syn, next); err != nil {
			return nil, err
		}
		if err := syn.Validate(next); err != nil {
			return nil, err
		}
		if err := s.entities.Upsert(ctx, next); err != nil {
			return nil, fmt.Errorf("saving error: %w", err)
		}
		return next, nil
	}

	next.UUID = uuid.NewString()
	next.RemoteRef = ""
	next.NextVersionUUID = ""
	next.CreatedAt = now
	next.EffectiveDate = in.EffectiveDate
	if next.EffectiveDate.IsZero() {
		next.EffectiveDate = now
	}
	if in.Children == nil {
		next.Children = newChildren(cur.Children, now)
	}

	if err := s.link(ctx, syn, next); err != nil {
		return nil, err
	}
	if err := syn.Validate(next); err != nil {
		return nil, err
	}
	if err := s.chain.LinkNewVersion(ctx, cur, next); err != nil {
		return nil, err
	}
	if err := s.entities.Upsert(ctx, next); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	return next, nil
}

// Delete tombstones the current version. A record that never left the
// device is removed outright.
func (s *recordService) Delete(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	cur, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if !cur.IsRemote() && cur.PreviousVersionUUID == "" {
		if err := s.entities.Remove(ctx, kind, cur.UUID); err != nil {
			return nil, fmt.Errorf("error deleting %s %s: %w", kind, id, err)
		}
		return cur, nil
	}

	now := s.now()
	cur.DeletedAt = &now
	cur.UpdatedAt = now
	cur.Pending = true
	if err := s.entities.Upsert(ctx, cur); err != nil {
		return nil, fmt.Errorf("error deleting %s %s: %w", kind, id, err)
	}
	return cur, nil
}

// Get returns the live current version of id.
func (s *recordService) Get(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	if _, err := s.registry.Lookup(kind); err != nil {
		return nil, err
	}
	cur, err := s.chain.FindCurrent(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, err)
	}
	if cur.IsDeleted() {
		return nil, fmt.Errorf("%s %s is deleted: %w", kind, id, common.ErrNotFound)
	}
	return cur, nil
}

func (s *recordService) History(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error) {
	if _, err := s.registry.Lookup(kind); err != nil {
		return nil, err
	}
	return s.chain.History(ctx, kind, id)
}

func (s *recordService) At(ctx context.Context, kind models.Kind, id string, t time.Time) (*models.Entity, error) {
	if _, err := s.registry.Lookup(kind); err != nil {
		return nil, err
	}
	return s.chain.ResolveAt(ctx, kind, id, t)
}

// List returns the live current version of every record of kind.
func (s *recordService) List(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	if _, err := s.registry.Lookup(kind); err != nil {
		return nil, err
	}
	rows, err := s.entities.ListCurrent(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", kind, err)
	}
	out := make([]*models.Entity, 0, len(rows))
	for _, e := range rows {
		if !e.IsDeleted() {
			out = append(out, e)
		}
	}
	return out, nil
}

// link resolves the parent reference of e, which must exist locally.
func (s *recordService) link(ctx context.Context, syn *kinds.Synchronizer, e *models.Entity) error {
	parentKind := syn.Spec().ParentKind
	if parentKind != "" && e.ParentID != "" {
		if _, err := s.Get(ctx, parentKind, e.ParentID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("parent %s %s: %w", parentKind, e.ParentID, common.ErrNotFound)
			}
			return err
		}
	}
	_, err := syn.Relink(ctx, e, s.entities)
	return err
}

// newChildren copies children under fresh uuids, in collection order.
func newChildren(children []*models.Entity, now time.Time) []*models.Entity {
	if children == nil {
		return nil
	}
	out := make([]*models.Entity, len(children))
	for i, c := range children {
		n := c.Clone()
		n.UUID = uuid.NewString()
		if n.ID == "" {
			n.ID = n.UUID
		}
		n.RemoteRef = ""
		n.CreatedAt = now
		n.UpdatedAt = now
		n.Position = i
		out[i] = n
	}
	return out
}

func mergePayload(cur, changes map[string]any) map[string]any {
	out := make(map[string]any, len(cur)+len(changes))
	maps.Copy(out, cur)
	for k, v := range changes {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
