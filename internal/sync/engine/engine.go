// Package engine runs sync rounds between a local record store and a remote
// object store.
//
// A round moves through IDLE, PULLING, MERGING, ADVANCING and PUSHING and
// back to IDLE; FAILED is reachable from every state. Per-entity problems are
// collected in the RoundResult and do not stop the round. Failures to read a
// kind, to list pending work or to advance the clock do.
package engine

import (
	"context"
	"time"

	"github.com/dmitrijs2005/caresync/internal/lease"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/clockstore"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
)

// LocalStore is the on-device store.
type LocalStore interface {
	FetchByUUID(ctx context.Context, kind models.Kind, uuid string) (*models.Entity, error)
	ListVersions(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error)
	// ListPending returns entities changed since their last push, oldest first.
	ListPending(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	// ListUnlinked returns entities whose parent reference is still unresolved.
	ListUnlinked(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	Upsert(ctx context.Context, e *models.Entity) error
	SaveLinks(ctx context.Context, e *models.Entity) error
	CurrentLogicalClock(ctx context.Context) (int64, error)
	// ListKind returns every stored entity of kind.
	ListKind(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	Remove(ctx context.Context, kind models.Kind, uuid string) error
}

// RemoteStore is the shared object store. Children are separate documents:
// Save, Update and Tombstone never touch them.
type RemoteStore interface {
	Query(ctx context.Context, q models.Query) ([]*models.Entity, error)
	Save(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Update(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Tombstone(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Delete(ctx context.Context, e *models.Entity) error
	// LinkVersion points the stored version previousUUID at nextUUID. It
	// succeeds only while that version has no successor or already names
	// nextUUID, and fails with ErrBrokenChain otherwise.
	LinkVersion(ctx context.Context, kind models.Kind, previousUUID, nextUUID string) error
}

// SyncContext carries everything a round needs about one synchronizing
// identity. Nothing in Engine is specific to an identity, so rounds for
// different identities may run concurrently.
type SyncContext struct {
	// Identity names the synchronizing user; one knowledge vector exists per identity.
	Identity string
	// ProcessID names this device or process inside the vector.
	ProcessID string
	// Vector is refreshed by every round.
	Vector models.KnowledgeVector

	Local  LocalStore
	Remote RemoteStore
	Clocks clockstore.Documents

	// OverwriteRemote makes every local write win, regardless of clocks.
	OverwriteRemote bool
}

type Engine struct {
	registry *kinds.Registry
	locker   lease.Locker
	logger   logging.Logger
	now      func() time.Time
	observe  func(State)
}

func New(registry *kinds.Registry, locker lease.Locker, logger logging.Logger) *Engine {
	if locker == nil {
		locker = lease.NewLocal()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		registry: registry,
		locker:   locker,
		logger:   logger.With("module", "sync_engine"),
		now:      time.Now,
	}
}

// OnTransition registers a callback invoked on every state change.
func (e *Engine) OnTransition(fn func(State)) {
	e.observe = fn
}

func (e *Engine) Registry() *kinds.Registry {
	return e.registry
}
