// Package vectors stores knowledge vectors, one row per (identity, process).
package vectors

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/pgerr"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Load(ctx context.Context, identity string) (models.KnowledgeVector, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT process_id, value FROM knowledge_vectors WHERE identity = $1`, identity)
	if err != nil {
		return nil, pgerr.Wrap("select vector", err)
	}
	defer rows.Close()

	kv := models.KnowledgeVector{}
	for rows.Next() {
		var (
			processID string
			value     int64
		)
		if err := rows.Scan(&processID, &value); err != nil {
			return nil, err
		}
		kv[processID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, pgerr.Wrap("select vector", err)
	}
	if len(kv) == 0 {
		return nil, fmt.Errorf("vector %s: %w", identity, common.ErrNotFound)
	}
	return kv, nil
}

// Advance never lowers a stored entry.
func (r *PostgresRepository) Advance(ctx context.Context, identity, processID string, value int64) error {
	query := `
		INSERT INTO knowledge_vectors (identity, process_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity, process_id)
		DO UPDATE SET value = GREATEST(knowledge_vectors.value, EXCLUDED.value)
	`
	if _, err := r.db.ExecContext(ctx, query, identity, processID, value); err != nil {
		return pgerr.Wrap("advance vector", err)
	}
	return nil
}

func (r *PostgresRepository) Identities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT identity FROM knowledge_vectors ORDER BY identity`)
	if err != nil {
		return nil, pgerr.Wrap("select identities", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
