package kinds

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/chain"
)

// Synchronizer adapts the generic protocol to one kind. The same code serves
// every kind; behaviour differs only through the Spec.
type Synchronizer struct {
	spec Spec
}

func (s *Synchronizer) Spec() Spec            { return s.spec }
func (s *Synchronizer) Kind() models.Kind     { return s.spec.Kind }
func (s *Synchronizer) Shape() models.Shape   { return s.spec.Shape }
func (s *Synchronizer) Regime() models.Regime { return s.spec.Regime }
func (s *Synchronizer) Versioned() bool       { return s.spec.Shape == models.ShapeVersioned }

// ToRemoteShape validates e against the kind and encodes it.
func (s *Synchronizer) ToRemoteShape(e *models.Entity) (models.RemoteDocument, error) {
	if err := s.Validate(e); err != nil {
		return nil, err
	}
	return models.EncodeDocument(e), nil
}

// FromRemoteShape decodes doc, which must describe this kind.
func (s *Synchronizer) FromRemoteShape(doc models.RemoteDocument) (*models.Entity, error) {
	e, err := models.DecodeDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidEntity, err)
	}
	if e.Kind == "" {
		e.Kind = s.spec.Kind
	}
	if e.Kind != s.spec.Kind {
		return nil, fmt.Errorf("%w: %s document decoded as %s", common.ErrInvalidEntity, e.Kind, s.spec.Kind)
	}
	if err := s.validateChildren(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the kind-level rules of e.
func (s *Synchronizer) Validate(e *models.Entity) error {
	if e.Kind != s.spec.Kind {
		return fmt.Errorf("%w: %s handled as %s", common.ErrInvalidEntity, e.Kind, s.spec.Kind)
	}
	if e.ID == "" || e.UUID == "" {
		return fmt.Errorf("%w: %s without id or uuid", common.ErrInvalidEntity, e.Kind)
	}
	if s.spec.ParentKind == "" && e.ParentID != "" {
		return fmt.Errorf("%w: %s cannot reference a parent", common.ErrInvalidEntity, e.Kind)
	}
	if !e.IsDeleted() {
		for _, f := range s.spec.Required {
			if v, ok := e.Payload[f]; !ok || v == nil || v == "" {
				return fmt.Errorf("%w: %s %s misses %q", common.ErrInvalidEntity, e.Kind, e.ID, f)
			}
		}
	}
	return s.validateChildren(e)
}

func (s *Synchronizer) validateChildren(e *models.Entity) error {
	for _, c := range e.Children {
		if !slices.Contains(s.spec.ChildKinds, c.Kind) {
			return fmt.Errorf("%w: %s cannot carry %s children", common.ErrInvalidEntity, e.Kind, c.Kind)
		}
	}
	return nil
}

// Relink resolves the parent reference of e against store, pointing
// ParentUUID at the parent's current version. An unresolvable parent leaves
// ParentUUID empty; the next round retries. Children are pointed at e.
func (s *Synchronizer) Relink(ctx context.Context, e *models.Entity, store chain.Store) (*models.Entity, error) {
	if s.spec.ParentKind != "" && e.ParentID != "" {
		parent, err := chain.NewManager(store).FindCurrent(ctx, s.spec.ParentKind, e.ParentID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			e.ParentUUID = ""
		case err != nil:
			return nil, fmt.Errorf("relink %s %s to %s %s: %w", e.Kind, e.ID, s.spec.ParentKind, e.ParentID, err)
		default:
			e.ParentUUID = parent.UUID
		}
	}
	for _, c := range e.Children {
		c.ParentID = e.ID
		c.ParentUUID = e.UUID
	}
	return e, nil
}

// StampChildren copies the parent's logical clock onto every child and fixes
// their positions to the current collection order.
func (s *Synchronizer) StampChildren(e *models.Entity) {
	for i, c := range e.Children {
		c.LogicalClock = e.LogicalClock
		c.ParentID = e.ID
		c.ParentUUID = e.UUID
		c.Position = i
	}
}
