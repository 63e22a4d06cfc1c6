package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/chain"
	"github.com/dmitrijs2005/caresync/internal/sync/clockstore"
)

// Round runs one full pull/merge/advance/push cycle for sc. The returned
// result is never nil; err is set only when the round ended in FAILED.
func (e *Engine) Round(ctx context.Context, sc *SyncContext) (*RoundResult, error) {
	res := &RoundResult{Identity: sc.Identity, ProcessID: sc.ProcessID, StartedAt: e.now()}

	release, err := e.locker.Acquire(ctx, sc.Identity)
	if err != nil {
		res.FinishedAt = e.now()
		return res, err
	}
	defer release()

	log := e.logger.With("identity", sc.Identity, "process", sc.ProcessID)
	m := newMachine(e.observeFn(ctx, log))
	defer func() {
		res.Trace = m.trace
		res.FinishedAt = e.now()
	}()

	fail := func(err error) (*RoundResult, error) {
		m.to(StateFailed)
		log.Error(ctx, "sync round failed", "error", err)
		return res, err
	}

	m.to(StatePulling)
	clocks := clockstore.New(sc.Clocks, sc.Identity)
	vector, _, err := clocks.Get(ctx, sc.ProcessID, true)
	if err != nil {
		return fail(err)
	}
	sc.Vector = vector
	since := vector.Get(sc.ProcessID)
	log.Info(ctx, "sync round started", "since", since)

	rec, err := e.Pull(ctx, sc, since, vector)
	if err != nil {
		return fail(err)
	}

	m.to(StateMerging)
	failed := e.merge(ctx, sc, rec, res)

	m.to(StateAdvancing)
	localClock, err := sc.Local.CurrentLogicalClock(ctx)
	if err != nil {
		return fail(fmt.Errorf("local logical clock: %w", err))
	}
	stamp := max(rec.MaxClock(), vector.Max(), localClock) + 1
	vector, err = clocks.Advance(ctx, sc.ProcessID, stamp)
	if err != nil {
		return fail(err)
	}
	sc.Vector = vector
	res.Clock = stamp
	res.Vector = vector.Clone()

	m.to(StatePushing)
	if err := e.push(ctx, sc, stamp, failed, res); err != nil {
		return fail(err)
	}

	m.to(StateIdle)
	log.Info(ctx, "sync round finished", "clock", stamp, "pulled", len(res.Pulled),
		"pushed", len(res.Pushed), "failed", len(res.Failures))
	return res, nil
}

// Pull fetches every remote entity with a logical clock >= sinceClock, kind
// by kind in dependency order, each kind ordered by (logicalClock,
// createdAt). Kinds the remote has no schema for yet contribute nothing.
func (e *Engine) Pull(ctx context.Context, sc *SyncContext, sinceClock int64, vector models.KnowledgeVector) (*models.RevisionRecord, error) {
	rec := &models.RevisionRecord{Vector: vector.Clone()}
	for _, kind := range e.registry.RoundKinds() {
		list, err := sc.Remote.Query(ctx, models.Query{
			Kind:             kind,
			MinClock:         models.Since(sinceClock),
			IncludeRelations: true,
		})
		if errors.Is(err, common.ErrSchemaMissing) {
			e.logger.Debug(ctx, "kind not provisioned remotely", "kind", kind)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pull %s: %w", kind, err)
		}
		models.SortByClock(list)
		rec.Entities = append(rec.Entities, list...)
	}
	return rec, nil
}

// merge applies a revision record locally and returns the entities whose
// failure must also stop their dependents.
func (e *Engine) merge(ctx context.Context, sc *SyncContext, rec *models.RevisionRecord, res *RoundResult) blocked {
	failed := blocked{}
	for _, remote := range rec.Entities {
		if failed.blocks(e, remote) {
			res.fail(PhaseMerge, remote, common.ErrDependencyFailed)
			failed.add(remote)
			continue
		}
		changed, err := e.mergeOne(ctx, sc, remote, res)
		if err != nil {
			e.logger.Warn(ctx, "merge failed", "kind", remote.Kind, "id", remote.ID, "uuid", remote.UUID, "error", err)
			res.fail(PhaseMerge, remote, err)
			if common.IsInvariantViolation(err) {
				failed.add(remote)
			}
			continue
		}
		if changed {
			res.Pulled = append(res.Pulled, remote.Ref())
		}
	}
	e.relinkDangling(ctx, sc, res)
	return failed
}

// mergeOne writes one pulled entity locally. Pulled data always wins: it
// reached the remote through the logical-clock comparison already. A pending
// local edit of an unversioned kind that the pulled revision replaces is
// recorded in res as causally behind. It reports whether anything was
// written.
func (e *Engine) mergeOne(ctx context.Context, sc *SyncContext, remote *models.Entity, res *RoundResult) (bool, error) {
	syn, err := e.registry.Lookup(remote.Kind)
	if err != nil {
		return false, err
	}

	local, err := sc.Local.FetchByUUID(ctx, remote.Kind, remote.UUID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		local = nil
	case err != nil:
		return false, err
	}

	if local != nil {
		if local.ID != remote.ID {
			return false, fmt.Errorf("%w: %s is %s locally and %s remotely", common.ErrUUIDConflict, remote.UUID, local.ID, remote.ID)
		}
		if !local.Pending && SameRevision(local, remote) {
			return false, nil
		}
		// a pending edit made on top of this very revision is pushed later
		if local.Pending && local.IsRemote() && remote.LogicalClock <= local.LogicalClock {
			return false, nil
		}
	}
	superseded := local != nil && local.Pending && !syn.Versioned()

	merged := remote.Clone()
	merged.Pending = false
	if local != nil && merged.NextVersionUUID == "" {
		merged.NextVersionUUID = local.NextVersionUUID
	}
	if merged, err = syn.Relink(ctx, merged, sc.Local); err != nil {
		return false, err
	}

	if syn.Versioned() && local == nil {
		rebased, err := chain.NewManager(sc.Local).Splice(ctx, merged)
		if err != nil {
			return false, err
		}
		if rebased != nil {
			e.logger.Info(ctx, "local version moved after pulled version",
				"kind", merged.Kind, "id", merged.ID, "local", rebased.UUID, "pulled", merged.UUID)
		}
	}

	if err := sc.Local.Upsert(ctx, merged); err != nil {
		return false, err
	}
	if superseded {
		e.logger.Warn(ctx, "pulled revision supersedes local edit", "kind", remote.Kind, "id", remote.ID,
			"local_clock", local.LogicalClock, "remote_clock", remote.LogicalClock)
		res.fail(PhaseMerge, local, fmt.Errorf("%w: local edit of %s %s replaced by revision at clock %d",
			common.ErrCausallyBehind, local.Kind, local.ID, remote.LogicalClock))
	}
	return true, nil
}

// relinkDangling retries parent references left unresolved by earlier merges.
func (e *Engine) relinkDangling(ctx context.Context, sc *SyncContext, res *RoundResult) {
	for _, kind := range e.registry.RoundKinds() {
		syn, err := e.registry.Lookup(kind)
		if err != nil || syn.Spec().ParentKind == "" {
			continue
		}
		list, err := sc.Local.ListUnlinked(ctx, kind)
		if err != nil {
			e.logger.Warn(ctx, "list unlinked failed", "kind", kind, "error", err)
			continue
		}
		for _, ent := range list {
			linked, err := syn.Relink(ctx, ent, sc.Local)
			if err != nil {
				res.fail(PhaseRelink, ent, err)
				continue
			}
			if linked.ParentUUID == "" {
				continue
			}
			if err := sc.Local.Upsert(ctx, linked); err != nil {
				res.fail(PhaseRelink, ent, err)
			}
		}
	}
}

func (e *Engine) observeFn(ctx context.Context, log logging.Logger) func(State) {
	return func(s State) {
		log.Debug(ctx, "sync round state", "state", s)
		if e.observe != nil {
			e.observe(s)
		}
	}
}

// blocked tracks entities whose invariant violations stop their dependents.
type blocked map[string]bool

func blockKey(kind models.Kind, id string) string {
	return string(kind) + "/" + id
}

func (b blocked) add(e *models.Entity) {
	b[blockKey(e.Kind, e.ID)] = true
}

func (b blocked) blocks(eng *Engine, e *models.Entity) bool {
	syn, err := eng.registry.Lookup(e.Kind)
	if err != nil || syn.Spec().ParentKind == "" || e.ParentID == "" {
		return false
	}
	return b[blockKey(syn.Spec().ParentKind, e.ParentID)]
}
