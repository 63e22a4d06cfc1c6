package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
	"github.com/dmitrijs2005/caresync/internal/sync/resolver"
)

// SyncWallClock reconciles the kinds outside the logical-clock round by
// last-writer-wins on UpdatedAt. Entities are matched by id. Equal
// timestamps leave both sides untouched.
func (e *Engine) SyncWallClock(ctx context.Context, sc *SyncContext) (*RoundResult, error) {
	res := &RoundResult{Identity: sc.Identity, ProcessID: sc.ProcessID, StartedAt: e.now()}
	defer func() { res.FinishedAt = e.now() }()

	release, err := e.locker.Acquire(ctx, sc.Identity)
	if err != nil {
		return res, err
	}
	defer release()

	for _, kind := range e.registry.WallClockKinds() {
		if err := e.syncWallClockKind(ctx, sc, kind, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) syncWallClockKind(ctx context.Context, sc *SyncContext, kind models.Kind, res *RoundResult) error {
	syn, err := e.registry.Lookup(kind)
	if err != nil {
		return err
	}
	compare := resolver.For(syn.Regime())

	remoteList, err := sc.Remote.Query(ctx, models.Query{Kind: kind, IncludeRelations: true})
	if err != nil && !isSchemaMissing(err) {
		return fmt.Errorf("query %s: %w", kind, err)
	}
	localList, err := sc.Local.ListKind(ctx, kind)
	if err != nil {
		return fmt.Errorf("list %s: %w", kind, err)
	}

	remoteByID := make(map[string]*models.Entity, len(remoteList))
	for _, r := range remoteList {
		remoteByID[r.ID] = r
	}

	for _, local := range localList {
		remote, ok := remoteByID[local.ID]
		delete(remoteByID, local.ID)

		if !ok {
			if !local.Pending && local.IsRemote() {
				continue
			}
			if err := e.pushWallClock(ctx, sc, syn, local, nil); err != nil {
				res.fail(PhasePush, local, err)
				continue
			}
			res.Pushed = append(res.Pushed, local.Ref())
			continue
		}

		switch compare(local, remote, sc.OverwriteRemote) {
		case resolver.ApplyLocalToRemote:
			if err := e.pushWallClock(ctx, sc, syn, local, remote); err != nil {
				res.fail(PhasePush, local, err)
				continue
			}
			res.Pushed = append(res.Pushed, local.Ref())
		case resolver.ApplyRemoteToLocal:
			if err := adoptRemote(ctx, sc.Local, local, remote); err != nil {
				res.fail(PhaseMerge, remote, err)
				continue
			}
			res.Pulled = append(res.Pulled, remote.Ref())
		}
	}

	for _, remote := range remoteByID {
		if err := adoptRemote(ctx, sc.Local, nil, remote); err != nil {
			res.fail(PhaseMerge, remote, err)
			continue
		}
		res.Pulled = append(res.Pulled, remote.Ref())
	}
	return nil
}

// pushWallClock writes local over remote, or creates it when remote is nil,
// and stores the remote identity locally.
func (e *Engine) pushWallClock(ctx context.Context, sc *SyncContext, syn *kinds.Synchronizer, local, remote *models.Entity) error {
	cand := local.Clone()
	if err := syn.Validate(cand); err != nil {
		return err
	}

	var stored *models.Entity
	var err error
	var previousChildren []*models.Entity
	if remote != nil {
		cand.UUID = remote.UUID
		cand.RemoteRef = remote.RemoteRef
		cand.CreatedAt = remote.CreatedAt
		previousChildren = remote.Children
	}
	syn.StampChildren(cand)
	if remote != nil {
		stored, err = sc.Remote.Update(ctx, cand)
	} else {
		stored, err = sc.Remote.Save(ctx, cand)
	}
	if err != nil {
		return err
	}

	children, err := syncChildren(ctx, sc.Remote, previousChildren, cand.Children)
	if err != nil {
		return err
	}
	stored.Children = children
	return adoptRemote(ctx, sc.Local, local, stored)
}

// adoptRemote stores remote as the local copy, dropping a local copy of the
// same id that was kept under another uuid.
func adoptRemote(ctx context.Context, store LocalStore, local, remote *models.Entity) error {
	merged := remote.Clone()
	merged.Pending = false
	if err := store.Upsert(ctx, merged); err != nil {
		return err
	}
	if local != nil && local.UUID != merged.UUID {
		if err := store.Remove(ctx, local.Kind, local.UUID); err != nil {
			return fmt.Errorf("drop superseded %s %s: %w", local.Kind, local.UUID, err)
		}
	}
	return nil
}

func isSchemaMissing(err error) bool {
	return errors.Is(err, common.ErrSchemaMissing)
}
