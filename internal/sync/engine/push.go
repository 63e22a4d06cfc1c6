package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/chain"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
	"github.com/dmitrijs2005/caresync/internal/sync/resolver"
	"github.com/google/uuid"
)

// Push submits every pending local entity stamped with the clock sc.Vector
// holds for sc.ProcessID. It is the second half of Round for callers that
// drive Pull and the clock themselves.
func (e *Engine) Push(ctx context.Context, sc *SyncContext) (*RoundResult, error) {
	res := &RoundResult{Identity: sc.Identity, ProcessID: sc.ProcessID, StartedAt: e.now()}
	defer func() { res.FinishedAt = e.now() }()

	stamp := sc.Vector.Get(sc.ProcessID)
	if stamp <= 0 {
		return res, fmt.Errorf("push for %s: knowledge vector has not been advanced", sc.ProcessID)
	}

	release, err := e.locker.Acquire(ctx, sc.Identity)
	if err != nil {
		return res, err
	}
	defer release()

	res.Clock = stamp
	res.Vector = sc.Vector.Clone()
	return res, e.push(ctx, sc, stamp, blocked{}, res)
}

func (e *Engine) push(ctx context.Context, sc *SyncContext, stamp int64, failed blocked, res *RoundResult) error {
	pushed := map[string]bool{}
	for _, kind := range e.registry.RoundKinds() {
		syn, err := e.registry.Lookup(kind)
		if err != nil {
			return err
		}
		pending, err := sc.Local.ListPending(ctx, kind)
		if err != nil {
			return fmt.Errorf("list pending %s: %w", kind, err)
		}

		for _, local := range pending {
			if failed.blocks(e, local) {
				res.fail(PhasePush, local, common.ErrDependencyFailed)
				failed.add(local)
				continue
			}
			if err := e.pushOne(ctx, sc, syn, local, stamp, pushed); err != nil {
				e.logger.Warn(ctx, "push failed", "kind", local.Kind, "id", local.ID, "uuid", local.UUID, "error", err)
				res.fail(PhasePush, local, err)
				if common.IsInvariantViolation(err) {
					failed.add(local)
				}
				continue
			}
			res.Pushed = append(res.Pushed, local.Ref())
		}
	}
	return nil
}

// pushOne writes one pending entity and its children remotely, then marks
// the local copy synced. Rejected entities stay pending and are retried by
// the next round, after its pull.
func (e *Engine) pushOne(ctx context.Context, sc *SyncContext, syn *kinds.Synchronizer, local *models.Entity, stamp int64, pushed map[string]bool) error {
	cand := local.Clone()
	cand.LogicalClock = stamp
	cand, err := syn.Relink(ctx, cand, sc.Local)
	if err != nil {
		return err
	}
	syn.StampChildren(cand)
	if err := syn.Validate(cand); err != nil {
		return err
	}

	existing, err := remoteByUUID(ctx, sc.Remote, cand.Kind, cand.UUID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != cand.ID {
		return fmt.Errorf("%w: %s is %s locally and %s remotely", common.ErrUUIDConflict, cand.UUID, cand.ID, existing.ID)
	}

	var stored *models.Entity
	switch {
	case existing != nil:
		stored, err = e.pushExisting(ctx, sc, syn, cand, existing, pushed)
	case syn.Versioned():
		stored, err = e.pushNewVersion(ctx, sc, cand, pushed)
	default:
		stored, err = sc.Remote.Save(ctx, cand)
	}
	if err != nil {
		return err
	}

	var previousChildren []*models.Entity
	if existing != nil {
		previousChildren = existing.Children
	}
	children, err := syncChildren(ctx, sc.Remote, previousChildren, cand.Children)
	if err != nil {
		return fmt.Errorf("children of %s: %w", cand.UUID, err)
	}

	synced := cand.Clone()
	synced.RemoteRef = stored.RemoteRef
	synced.PreviousVersionUUID = stored.PreviousVersionUUID
	synced.EffectiveDate = stored.EffectiveDate
	synced.CreatedAt = stored.CreatedAt
	synced.NextVersionUUID = local.NextVersionUUID
	synced.Children = children
	synced.Pending = false
	if err := sc.Local.Upsert(ctx, synced); err != nil {
		return fmt.Errorf("mark %s synced: %w", cand.UUID, err)
	}
	pushed[cand.UUID] = true

	if syn.Versioned() && synced.PreviousVersionUUID != "" && synced.PreviousVersionUUID != local.PreviousVersionUUID {
		return relinkLocalPredecessor(ctx, sc.Local, synced)
	}
	return nil
}

// relinkLocalPredecessor points the local copy of the version v was chained
// after remotely at v.
func relinkLocalPredecessor(ctx context.Context, local LocalStore, v *models.Entity) error {
	pred, err := local.FetchByUUID(ctx, v.Kind, v.PreviousVersionUUID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if pred.NextVersionUUID == v.UUID {
		return nil
	}
	pred.NextVersionUUID = v.UUID
	return local.SaveLinks(ctx, pred)
}

func (e *Engine) pushExisting(ctx context.Context, sc *SyncContext, syn *kinds.Synchronizer, cand, existing *models.Entity, pushed map[string]bool) (*models.Entity, error) {
	d := resolver.LogicalClock(cand, existing, sc.OverwriteRemote || pushed[existing.UUID])
	if err := d.Err(); err != nil {
		return nil, err
	}
	cand.RemoteRef = existing.RemoteRef
	cand.CreatedAt = existing.CreatedAt

	var stored *models.Entity
	var err error
	if cand.IsDeleted() && !existing.IsDeleted() {
		stored, err = sc.Remote.Tombstone(ctx, cand)
	} else {
		stored, err = sc.Remote.Update(ctx, cand)
	}
	if err != nil {
		return nil, err
	}

	if syn.Versioned() && stored.PreviousVersionUUID != "" {
		prev, err := remoteByUUID(ctx, sc.Remote, stored.Kind, stored.PreviousVersionUUID)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			prev.Children = nil
			if err := chain.NewManager(remoteChain{sc.Remote}).LinkNewVersion(ctx, prev, stored); err != nil {
				return nil, err
			}
		}
	}
	return stored, nil
}

// pushNewVersion appends cand to the remote chain of its id. The version is
// saved before its predecessor is pointed at it, so a failure in between
// leaves a retryable state rather than a dangling forward link. When another
// writer links the predecessor first, the saved version is deleted again and
// ErrBrokenChain is returned; the next round pulls the winner and rebases.
func (e *Engine) pushNewVersion(ctx context.Context, sc *SyncContext, cand *models.Entity, pushed map[string]bool) (*models.Entity, error) {
	mgr := chain.NewManager(remoteChain{sc.Remote})

	head, err := mgr.FindCurrent(ctx, cand.Kind, cand.ID)
	if errors.Is(err, common.ErrNotFound) {
		head = nil
	} else if err != nil {
		return nil, err
	}

	pred := head
	switch {
	case head != nil:
		d := resolver.LogicalClock(cand, head, sc.OverwriteRemote || pushed[head.UUID])
		if err := d.Err(); err != nil {
			return nil, err
		}
		if !sc.OverwriteRemote && cand.PreviousVersionUUID != "" && cand.PreviousVersionUUID != head.UUID {
			p, err := remoteByUUID(ctx, sc.Remote, cand.Kind, cand.PreviousVersionUUID)
			if err != nil {
				return nil, err
			}
			if p != nil {
				pred = p
			}
		}
	case cand.PreviousVersionUUID != "":
		return nil, fmt.Errorf("%w: predecessor %s of %s is not on the remote", common.ErrDependencyFailed,
			cand.PreviousVersionUUID, cand.UUID)
	}

	if err := chain.CanExtend(pred, cand); err != nil {
		return nil, err
	}
	if pred != nil {
		pred.Children = nil
		cand.PreviousVersionUUID = pred.UUID
		if cand.EffectiveDate.Before(pred.EffectiveDate) {
			cand.EffectiveDate = pred.EffectiveDate
		}
	}

	stored, err := sc.Remote.Save(ctx, cand)
	if err != nil {
		return nil, err
	}
	if err := mgr.LinkNewVersion(ctx, pred, stored); err != nil {
		if !errors.Is(err, common.ErrBrokenChain) {
			return nil, fmt.Errorf("saved %s but could not link it: %w", stored.UUID, err)
		}
		if derr := sc.Remote.Delete(ctx, stored); derr != nil && !errors.Is(derr, common.ErrNotFound) {
			return nil, errors.Join(err, fmt.Errorf("roll back %s: %w", stored.UUID, derr))
		}
		return nil, err
	}
	return stored, nil
}

// syncChildren makes the remote child collection match next by index and
// returns the children as stored remotely.
func syncChildren(ctx context.Context, remote RemoteStore, previous, next []*models.Entity) ([]*models.Entity, error) {
	var out []*models.Entity
	for _, op := range kinds.DiffChildren(previous, next) {
		switch op.Type {
		case kinds.OpCreate:
			child := op.Next
			if child.UUID == "" || child.RemoteRef != "" {
				// copied from another parent version
				child.UUID = uuid.NewString()
				child.RemoteRef = ""
			}
			stored, err := remote.Save(ctx, child)
			if err != nil {
				return nil, err
			}
			out = append(out, stored)
		case kinds.OpUpdate:
			stored, err := remote.Update(ctx, op.Next)
			if err != nil {
				return nil, err
			}
			out = append(out, stored)
		case kinds.OpDelete:
			if err := remote.Delete(ctx, op.Previous); err != nil && !errors.Is(err, common.ErrNotFound) {
				return nil, err
			}
		}
	}
	models.SortByPosition(out)
	return out, nil
}

func remoteByUUID(ctx context.Context, remote RemoteStore, kind models.Kind, uuid string) (*models.Entity, error) {
	list, err := remote.Query(ctx, models.Query{Kind: kind, UUID: uuid, IncludeRelations: true})
	if errors.Is(err, common.ErrSchemaMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// remoteChain exposes the remote store to the chain manager.
type remoteChain struct {
	remote RemoteStore
}

func (r remoteChain) FetchByUUID(ctx context.Context, kind models.Kind, uuid string) (*models.Entity, error) {
	e, err := remoteByUUID(ctx, r.remote, kind, uuid)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, common.ErrNotFound
	}
	e.Children = nil
	return e, nil
}

func (r remoteChain) ListVersions(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error) {
	list, err := r.remote.Query(ctx, models.Query{Kind: kind, ID: id})
	if errors.Is(err, common.ErrSchemaMissing) {
		return nil, nil
	}
	return list, err
}

// SaveLinks only ever moves the forward link of a remote version, and does
// so with a compare-and-set.
func (r remoteChain) SaveLinks(ctx context.Context, e *models.Entity) error {
	return r.remote.LinkVersion(ctx, e.Kind, e.UUID, e.NextVersionUUID)
}
