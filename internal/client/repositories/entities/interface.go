package entities

import (
	"context"

	"github.com/dmitrijs2005/caresync/internal/models"
)

// Repository stores entity versions and their children locally.
type Repository interface {
	FetchByUUID(ctx context.Context, kind models.Kind, uuid string) (*models.Entity, error)
	// ListVersions returns every version of id, oldest first.
	ListVersions(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error)
	// ListPending returns entities with unpushed changes, oldest first.
	ListPending(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	// ListUnlinked returns entities whose parent version is not resolved yet.
	ListUnlinked(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	// ListKind returns every stored entity of kind.
	ListKind(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	// ListCurrent returns the head version of every id of kind.
	ListCurrent(ctx context.Context, kind models.Kind) ([]*models.Entity, error)

	// Upsert writes e and replaces its children.
	Upsert(ctx context.Context, e *models.Entity) error
	// SaveLinks updates only the chain references and effective date of e.
	SaveLinks(ctx context.Context, e *models.Entity) error
	Remove(ctx context.Context, kind models.Kind, uuid string) error

	// CurrentLogicalClock is the highest logical clock stored locally.
	CurrentLogicalClock(ctx context.Context) (int64, error)
	// CountPending counts unpushed entities across kinds.
	CountPending(ctx context.Context) (int, error)

	// Subscribe returns a channel signalled after pending changes are
	// stored, and a function that stops the subscription.
	Subscribe() (<-chan struct{}, func())
}
