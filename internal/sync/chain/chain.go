// Package chain maintains the previous/next links between the versions of
// one logical entity and answers "which version is current" and "which
// version was effective at T" over any store that can list versions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
)

// Store is the slice of a local or remote store the manager needs.
type Store interface {
	FetchByUUID(ctx context.Context, kind models.Kind, uuid string) (*models.Entity, error)
	ListVersions(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error)
	// SaveLinks persists the previous/next references and the effective
	// date of e.
	SaveLinks(ctx context.Context, e *models.Entity) error
}

type Manager struct {
	store Store
}

func NewManager(s Store) *Manager {
	return &Manager{store: s}
}

// CanExtend reports whether next may be appended after previous.
func CanExtend(previous, next *models.Entity) error {
	if previous == nil {
		return nil
	}
	if previous.UUID == next.UUID {
		return fmt.Errorf("%w: version %s cannot follow itself", common.ErrBrokenChain, next.UUID)
	}
	if previous.NextVersionUUID != "" && previous.NextVersionUUID != next.UUID {
		return fmt.Errorf("%w: %s already continues with %s, not %s",
			common.ErrBrokenChain, previous.UUID, previous.NextVersionUUID, next.UUID)
	}
	return nil
}

// LinkNewVersion makes next the successor of previous and persists the
// previous version. A nil previous starts a new chain. The effective date of
// next is raised to its predecessor's when it would otherwise go backwards.
func (m *Manager) LinkNewVersion(ctx context.Context, previous, next *models.Entity) error {
	if previous == nil {
		next.PreviousVersionUUID = ""
		return nil
	}
	if err := CanExtend(previous, next); err != nil {
		return err
	}

	next.PreviousVersionUUID = previous.UUID
	if next.EffectiveDate.Before(previous.EffectiveDate) {
		next.EffectiveDate = previous.EffectiveDate
	}

	if previous.NextVersionUUID == next.UUID {
		return nil
	}
	previous.NextVersionUUID = next.UUID
	if err := m.store.SaveLinks(ctx, previous); err != nil {
		return fmt.Errorf("link %s -> %s: %w", previous.UUID, next.UUID, err)
	}
	return nil
}

// FindCurrent returns the only version of id without a successor.
func (m *Manager) FindCurrent(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	versions, err := m.store.ListVersions(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return Current(versions)
}

// Current picks the chain head out of an already loaded version list.
func Current(versions []*models.Entity) (*models.Entity, error) {
	if len(versions) == 0 {
		return nil, common.ErrNotFound
	}
	var current *models.Entity
	for _, v := range versions {
		if !v.IsCurrent() {
			continue
		}
		if current != nil {
			return nil, fmt.Errorf("%w: %s and %s", common.ErrMultipleCurrentVersions, current.UUID, v.UUID)
		}
		current = v
	}
	if current == nil {
		return nil, fmt.Errorf("%w: no head among %d versions of %s", common.ErrBrokenChain, len(versions), versions[0].ID)
	}
	return current, nil
}

// ResolveAt walks back from the current version to the first one whose
// effective date is not after t.
func (m *Manager) ResolveAt(ctx context.Context, kind models.Kind, id string, t time.Time) (*models.Entity, error) {
	versions, err := m.store.ListVersions(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	v, err := Current(versions)
	if err != nil {
		return nil, err
	}

	byUUID := index(versions)
	seen := map[string]bool{}
	for {
		if !v.EffectiveDate.After(t) {
			return v, nil
		}
		seen[v.UUID] = true
		if v.PreviousVersionUUID == "" {
			return nil, fmt.Errorf("%s %s at %s: %w", kind, id, t.Format(time.RFC3339), common.ErrNotFound)
		}
		if seen[v.PreviousVersionUUID] {
			return nil, fmt.Errorf("%w: cycle at %s", common.ErrBrokenChain, v.PreviousVersionUUID)
		}
		if v, err = m.lookup(ctx, kind, byUUID, v.PreviousVersionUUID); err != nil {
			return nil, err
		}
	}
}

// History returns the versions reachable from the current one, oldest first.
func (m *Manager) History(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error) {
	versions, err := m.store.ListVersions(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	v, err := Current(versions)
	if err != nil {
		return nil, err
	}

	byUUID := index(versions)
	seen := map[string]bool{v.UUID: true}
	out := []*models.Entity{v}
	for v.PreviousVersionUUID != "" {
		if seen[v.PreviousVersionUUID] {
			return nil, fmt.Errorf("%w: cycle at %s", common.ErrBrokenChain, v.PreviousVersionUUID)
		}
		prev, err := m.lookup(ctx, kind, byUUID, v.PreviousVersionUUID)
		if errors.Is(err, common.ErrNotFound) {
			// predecessor not synced yet
			break
		}
		if err != nil {
			return nil, err
		}
		seen[prev.UUID] = true
		out = append(out, prev)
		v = prev
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Verify checks the chain invariants of id: one head, no cycles, and every
// stored version reachable from the head.
func (m *Manager) Verify(ctx context.Context, kind models.Kind, id string) error {
	versions, err := m.store.ListVersions(ctx, kind, id)
	if err != nil {
		return err
	}
	history, err := m.History(ctx, kind, id)
	if err != nil {
		return err
	}
	if len(history) != len(versions) {
		return fmt.Errorf("%w: %d of %d versions of %s reachable from head",
			common.ErrBrokenChain, len(history), len(versions), id)
	}
	for i := 1; i < len(history); i++ {
		if history[i-1].NextVersionUUID != history[i].UUID {
			return fmt.Errorf("%w: %s does not point forward to %s",
				common.ErrBrokenChain, history[i-1].UUID, history[i].UUID)
		}
	}
	return nil
}

// Splice records a version received from another process in the store's
// chain. When the predecessor is missing the version is left dangling and
// the link heals once the predecessor arrives.
//
// If the predecessor already continues with an unpushed local version, that
// version is moved after v, persisted and returned. Any other existing
// successor is a broken chain. v itself is not persisted.
func (m *Manager) Splice(ctx context.Context, v *models.Entity) (*models.Entity, error) {
	if v.PreviousVersionUUID == "" {
		return nil, nil
	}
	prev, err := m.store.FetchByUUID(ctx, v.Kind, v.PreviousVersionUUID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rebased *models.Entity
	if prev.NextVersionUUID != "" && prev.NextVersionUUID != v.UUID {
		other, err := m.store.FetchByUUID(ctx, v.Kind, prev.NextVersionUUID)
		switch {
		case errors.Is(err, common.ErrNotFound):
		case err != nil:
			return nil, err
		case other.Pending && !other.IsRemote():
			if v.NextVersionUUID != "" && v.NextVersionUUID != other.UUID {
				return nil, fmt.Errorf("%w: %s continues with %s and local %s", common.ErrBrokenChain,
					v.UUID, v.NextVersionUUID, other.UUID)
			}
			other.PreviousVersionUUID = v.UUID
			if other.EffectiveDate.Before(v.EffectiveDate) {
				other.EffectiveDate = v.EffectiveDate
			}
			v.NextVersionUUID = other.UUID
			if err := m.store.SaveLinks(ctx, other); err != nil {
				return nil, err
			}
			rebased = other
		default:
			return nil, fmt.Errorf("%w: %s continues with %s, pulled %s claims the same predecessor",
				common.ErrBrokenChain, prev.UUID, prev.NextVersionUUID, v.UUID)
		}
	}

	if prev.NextVersionUUID != v.UUID {
		prev.NextVersionUUID = v.UUID
		if err := m.store.SaveLinks(ctx, prev); err != nil {
			return nil, err
		}
	}
	return rebased, nil
}

func index(versions []*models.Entity) map[string]*models.Entity {
	m := make(map[string]*models.Entity, len(versions))
	for _, v := range versions {
		m[v.UUID] = v
	}
	return m
}

func (m *Manager) lookup(ctx context.Context, kind models.Kind, byUUID map[string]*models.Entity, uuid string) (*models.Entity, error) {
	if v, ok := byUUID[uuid]; ok {
		return v, nil
	}
	return m.store.FetchByUUID(ctx, kind, uuid)
}
