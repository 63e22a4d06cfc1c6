package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/caresync/internal/client/client"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/engine"
)

// SyncOptions configures when rounds run without being asked for.
type SyncOptions struct {
	Identity string
	// AutoSync is used until the user toggles auto-sync on this device.
	AutoSync bool
	// Debounce delays an automatic round after a local change so that a
	// burst of edits is pushed together.
	Debounce time.Duration
	// Interval runs a round periodically; 0 disables it.
	Interval time.Duration
	// OnlineCheck is the remote ping period; 0 disables the watcher and
	// the remote is assumed reachable.
	OnlineCheck time.Duration
}

type Status struct {
	Online     bool
	AutoSync   bool
	Pending    int
	ProcessID  string
	Vector     models.KnowledgeVector
	LastResult string
}

type SyncService interface {
	// SyncNow runs one round followed by the wall-clock pass. force makes
	// local writes win over newer remote versions.
	SyncNow(ctx context.Context, force bool) (*engine.RoundResult, error)
	SetAutoSync(ctx context.Context, on bool) error
	Status(ctx context.Context) (*Status, error)
	Online() bool
	// Run drives automatic rounds and the online watcher until ctx is done.
	Run(ctx context.Context)
}

type syncService struct {
	engine   *engine.Engine
	remote   client.Client
	entities entities.Repository
	settings metadata.Repository
	opts     SyncOptions
	logger   logging.Logger
	online   atomic.Bool
}

func NewSyncService(eng *engine.Engine, remote client.Client, repo entities.Repository,
	settings metadata.Repository, opts SyncOptions, logger logging.Logger) SyncService {
	s := &syncService{
		engine:   eng,
		remote:   remote,
		entities: repo,
		settings: settings,
		opts:     opts,
		logger:   logger.With("module", "sync_service"),
	}
	s.online.Store(opts.OnlineCheck <= 0)
	return s
}

func (s *syncService) SyncNow(ctx context.Context, force bool) (*engine.RoundResult, error) {
	processID, err := s.settings.ProcessID(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading process id: %w", err)
	}
	sc := &engine.SyncContext{
		Identity:        s.opts.Identity,
		ProcessID:       processID,
		Local:           s.entities,
		Remote:          s.remote,
		Clocks:          s.remote,
		OverwriteRemote: force,
	}

	res, err := s.engine.Round(ctx, sc)
	if err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			s.setOnline(ctx, false)
		}
		if !errors.Is(err, common.ErrRoundInProgress) {
			s.saveLastResult(ctx, "failed: "+err.Error())
		}
		return res, err
	}

	wc, err := s.engine.SyncWallClock(ctx, sc)
	if err != nil {
		s.logger.Warn(ctx, "wall-clock sync failed", "error", err)
	}
	if wc != nil {
		res.Pulled = append(res.Pulled, wc.Pulled...)
		res.Pushed = append(res.Pushed, wc.Pushed...)
		res.Failures = append(res.Failures, wc.Failures...)
	}

	if res.Vector != nil {
		if err := s.settings.SetVector(ctx, res.Vector); err != nil {
			s.logger.Warn(ctx, "failed to store knowledge vector", "error", err)
		}
	}
	s.saveLastResult(ctx, res.Summary())
	return res, nil
}

func (s *syncService) saveLastResult(ctx context.Context, summary string) {
	if err := s.settings.SetLastResult(ctx, summary); err != nil {
		s.logger.Warn(ctx, "failed to store round summary", "error", err)
	}
}

func (s *syncService) SetAutoSync(ctx context.Context, on bool) error {
	return s.settings.SetAutoSync(ctx, on)
}

func (s *syncService) Status(ctx context.Context) (*Status, error) {
	st := &Status{Online: s.Online()}
	var err error
	if st.AutoSync, err = s.settings.AutoSync(ctx, s.opts.AutoSync); err != nil {
		return nil, err
	}
	if st.Pending, err = s.entities.CountPending(ctx); err != nil {
		return nil, err
	}
	if st.ProcessID, err = s.settings.ProcessID(ctx); err != nil {
		return nil, err
	}
	if st.Vector, err = s.settings.Vector(ctx); err != nil {
		return nil, err
	}
	if st.LastResult, err = s.settings.LastResult(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *syncService) Online() bool {
	return s.online.Load()
}

// setOnline records reachability and reports whether it just came back.
func (s *syncService) setOnline(ctx context.Context, online bool) bool {
	was := s.online.Swap(online)
	if was == online {
		return false
	}
	if online {
		s.logger.Info(ctx, "switched to online mode")
	} else {
		s.logger.Info(ctx, "switched to offline mode")
	}
	return online
}

func (s *syncService) Run(ctx context.Context) {
	changes, stop := s.entities.Subscribe()
	defer stop()

	var debounce <-chan time.Time
	var periodic, onlineCheck <-chan time.Time
	if s.opts.Interval > 0 {
		t := time.NewTicker(s.opts.Interval)
		defer t.Stop()
		periodic = t.C
	}
	if s.opts.OnlineCheck > 0 {
		t := time.NewTicker(s.opts.OnlineCheck)
		defer t.Stop()
		onlineCheck = t.C
		s.checkOnline(ctx)
	}
	// changes made before Subscribe produced no signal
	if s.autoSyncOn(ctx) && s.hasPending(ctx) {
		s.background(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if s.autoSyncOn(ctx) {
				debounce = time.After(s.opts.Debounce)
			}

		case <-debounce:
			debounce = nil
			s.background(ctx, "local change")

		case <-periodic:
			s.background(ctx, "interval")

		case <-onlineCheck:
			if s.checkOnline(ctx) && s.autoSyncOn(ctx) && s.hasPending(ctx) {
				s.background(ctx, "back online")
			}
		}
	}
}

func (s *syncService) checkOnline(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := s.remote.Ping(pingCtx)
	cancel()
	return s.setOnline(ctx, err == nil)
}

func (s *syncService) autoSyncOn(ctx context.Context) bool {
	on, err := s.settings.AutoSync(ctx, s.opts.AutoSync)
	if err != nil {
		s.logger.Warn(ctx, "failed to read auto-sync setting", "error", err)
		return false
	}
	return on
}

func (s *syncService) hasPending(ctx context.Context) bool {
	n, err := s.entities.CountPending(ctx)
	return err == nil && n > 0
}

// background runs a round nobody is waiting for. Failures are logged only.
func (s *syncService) background(ctx context.Context, reason string) {
	if !s.Online() {
		s.logger.Debug(ctx, "sync skipped while offline", "reason", reason)
		return
	}
	res, err := s.SyncNow(ctx, false)
	switch {
	case errors.Is(err, common.ErrRoundInProgress):
		s.logger.Debug(ctx, "sync skipped, round in progress", "reason", reason)
	case err != nil:
		s.logger.Warn(ctx, "background sync failed", "reason", reason, "error", err)
	default:
		s.logger.Info(ctx, "background sync finished", "reason", reason, "result", res.Summary())
	}
}
