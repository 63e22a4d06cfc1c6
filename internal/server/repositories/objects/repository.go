package objects

import (
	"context"

	"github.com/dmitrijs2005/caresync/internal/models"
)

type Repository interface {
	// Get returns the object stored under uuid or ErrNotFound.
	Get(ctx context.Context, uuid string) (*models.Entity, error)
	Select(ctx context.Context, q models.Query) ([]*models.Entity, error)
	// Children returns objects of childKinds owned by any of parentUUIDs.
	Children(ctx context.Context, parentUUIDs []string, childKinds []models.Kind) ([]*models.Entity, error)
	// Insert fails with ErrUUIDConflict when the uuid is taken.
	Insert(ctx context.Context, e *models.Entity) error
	// Replace overwrites an existing object or fails with ErrNotFound.
	Replace(ctx context.Context, e *models.Entity) error
	// LinkNext sets the forward link of uuid to next while it is empty or
	// already next, and fails with ErrBrokenChain when no row qualifies.
	LinkNext(ctx context.Context, uuid, next string) error
	Delete(ctx context.Context, uuid string) error
}
