package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/caresync/internal/client/client"
	"github.com/dmitrijs2005/caresync/internal/client/config"
	"github.com/dmitrijs2005/caresync/internal/client/services"
	"github.com/dmitrijs2005/caresync/internal/filex"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/sync/engine"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
)

type App struct {
	config   *config.Config
	records  services.RecordService
	sync     services.SyncService
	registry *kinds.Registry
	reader   *bufio.Reader
	out      io.Writer
	logger   logging.Logger
	closers  []io.Closer
}

// NewApp opens the local database, connects the remote backend and builds
// the record and sync services. Call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	a := &App{
		config:   cfg,
		registry: kinds.Default(),
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		logger:   logger,
	}

	path, err := filex.EnsureParentDir(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	db, err := client.OpenDatabase(ctx, path)
	if err != nil {
		logger.Error(ctx, "error initializing database", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}
	a.closers = append(a.closers, db)

	if err := a.wire(ctx, db); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, db *sql.DB) error {
	remote, err := newRemote(ctx, a.config, a.registry)
	if err != nil {
		return fmt.Errorf("connect %s backend: %w", a.config.Backend, err)
	}
	a.closers = append(a.closers, remote)

	locker, lockCloser, err := newLocker(a.config.RedisAddr)
	if err != nil {
		return err
	}
	if lockCloser != nil {
		a.closers = append(a.closers, lockCloser)
	}

	repos := client.NewRepositories(db)
	eng := engine.New(a.registry, locker, a.logger)
	a.records = services.NewRecordService(repos.Entities, a.registry)
	a.sync = services.NewSyncService(eng, remote, repos.Entities, repos.Settings, services.SyncOptions{
		Identity:    a.config.Identity,
		AutoSync:    a.config.AutoSync,
		Debounce:    a.config.AutoSyncDebounce,
		Interval:    a.config.SyncInterval,
		OnlineCheck: a.config.OnlineCheckInterval,
	}, a.logger)
	return nil
}

func (a *App) getStatus() string {
	mode := "offline"
	if a.sync.Online() {
		mode = "online"
	}
	return fmt.Sprintf("(%s %s)", a.config.Identity, mode)
}

// Run starts background synchronization and blocks in the REPL until the
// user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sync.Run(ctx)
	}()

	printlnFn("Welcome to caresync. Type 'help' for commands.")
	runREPL(ctx, a, a.getStatus, a.reader)

	cancel()
	wg.Wait()
}

// Close releases the remote connection, the lease client and the database,
// in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
