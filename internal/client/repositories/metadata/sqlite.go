package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/google/uuid"
)

const (
	keyProcessID  = "process_id"
	keyAutoSync   = "auto_sync"
	keyVector     = "knowledge_vector"
	keyLastResult = "last_round"
)

// SQLiteRepository keeps device settings as rows of the metadata table.
type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) ProcessID(ctx context.Context) (string, error) {
	v, err := r.get(ctx, keyProcessID)
	if err != nil {
		return "", err
	}
	if len(v) > 0 {
		return string(v), nil
	}
	id := uuid.NewString()
	if err := r.set(ctx, keyProcessID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLiteRepository) AutoSync(ctx context.Context, def bool) (bool, error) {
	v, err := r.get(ctx, keyAutoSync)
	if err != nil {
		return false, err
	}
	if v == nil {
		return def, nil
	}
	on, err := strconv.ParseBool(string(v))
	if err != nil {
		return false, fmt.Errorf("bad %s value %q: %w", keyAutoSync, v, err)
	}
	return on, nil
}

func (r *SQLiteRepository) SetAutoSync(ctx context.Context, on bool) error {
	return r.set(ctx, keyAutoSync, []byte(strconv.FormatBool(on)))
}

func (r *SQLiteRepository) Vector(ctx context.Context) (models.KnowledgeVector, error) {
	v, err := r.get(ctx, keyVector)
	if err != nil || v == nil {
		return models.KnowledgeVector{}, err
	}
	kv := models.KnowledgeVector{}
	if err := json.Unmarshal(v, &kv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", keyVector, err)
	}
	return kv, nil
}

func (r *SQLiteRepository) SetVector(ctx context.Context, kv models.KnowledgeVector) error {
	b, err := json.Marshal(kv)
	if err != nil {
		return err
	}
	return r.set(ctx, keyVector, b)
}

func (r *SQLiteRepository) LastResult(ctx context.Context) (string, error) {
	v, err := r.get(ctx, keyLastResult)
	return string(v), err
}

func (r *SQLiteRepository) SetLastResult(ctx context.Context, summary string) error {
	return r.set(ctx, keyLastResult, []byte(summary))
}

// get returns (nil, nil) for an absent key.
func (r *SQLiteRepository) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}
