package metadata

import (
	"context"

	"github.com/dmitrijs2005/caresync/internal/models"
)

// Repository keeps the per-device sync settings.
type Repository interface {
	// ProcessID returns this device's id in the knowledge vector, creating
	// it on first use.
	ProcessID(ctx context.Context) (string, error)
	// AutoSync reports the stored toggle, or def when it was never set.
	AutoSync(ctx context.Context, def bool) (bool, error)
	SetAutoSync(ctx context.Context, on bool) error
	// Vector returns the knowledge vector seen by the last successful round.
	Vector(ctx context.Context) (models.KnowledgeVector, error)
	SetVector(ctx context.Context, kv models.KnowledgeVector) error
	// LastResult returns the summary line of the last round, or "".
	LastResult(ctx context.Context) (string, error)
	SetLastResult(ctx context.Context, summary string) error
}
