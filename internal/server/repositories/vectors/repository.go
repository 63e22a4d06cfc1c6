package vectors

import (
	"context"

	"github.com/dmitrijs2005/caresync/internal/models"
)

type Repository interface {
	// Load returns the vector of identity, ErrNotFound when it has no entries.
	Load(ctx context.Context, identity string) (models.KnowledgeVector, error)
	// Advance raises one entry to value if value is larger.
	Advance(ctx context.Context, identity, processID string, value int64) error
	// Identities lists every identity with a stored vector.
	Identities(ctx context.Context) ([]string, error)
}
