// Package objects provides the PostgreSQL repository behind the server's
// remote object store. Every object keeps its full document as JSONB next to
// the columns the sync protocol filters and orders by.
package objects

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/pgerr"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderBy = ` ORDER BY logical_clock, created_at, uuid`

func (r *PostgresRepository) Get(ctx context.Context, uuid string) (*models.Entity, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT document FROM objects WHERE uuid = $1`, uuid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("object %s: %w", uuid, common.ErrNotFound)
	}
	if err != nil {
		return nil, pgerr.Wrap("select object", err)
	}
	return decode(raw)
}

// Select applies every predicate of q in SQL. IncludeRelations is left to
// the caller.
func (r *PostgresRepository) Select(ctx context.Context, q models.Query) ([]*models.Entity, error) {
	var (
		where = []string{"kind = $1"}
		args  = []any{string(q.Kind)}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.MinClock != nil {
		add("logical_clock >= $%d", *q.MinClock)
	}
	if q.ID != "" {
		add("id = $%d", q.ID)
	}
	if q.UUID != "" {
		add("uuid = $%d", q.UUID)
	}
	if q.ParentUUID != "" {
		add("parent_uuid = $%d", q.ParentUUID)
	}
	if q.CurrentOnly {
		where = append(where, "next_version_uuid = ''")
	}

	query := `SELECT document FROM objects WHERE ` + strings.Join(where, " AND ") + orderBy
	return r.selectDocuments(ctx, query, args...)
}

func (r *PostgresRepository) Children(ctx context.Context, parentUUIDs []string, childKinds []models.Kind) ([]*models.Entity, error) {
	if len(parentUUIDs) == 0 || len(childKinds) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(parentUUIDs)+len(childKinds))
	placeholders := func(n int) string {
		p := make([]string, n)
		for i := range p {
			p[i] = fmt.Sprintf("$%d", len(args)-n+i+1)
		}
		return strings.Join(p, ", ")
	}
	for _, u := range parentUUIDs {
		args = append(args, u)
	}
	parents := placeholders(len(parentUUIDs))
	for _, k := range childKinds {
		args = append(args, string(k))
	}
	kinds := placeholders(len(childKinds))

	query := `SELECT document FROM objects WHERE parent_uuid IN (` + parents + `) AND kind IN (` + kinds + `)` +
		` ORDER BY parent_uuid, (document->>'position')::int, uuid`
	return r.selectDocuments(ctx, query, args...)
}

func (r *PostgresRepository) Insert(ctx context.Context, e *models.Entity) error {
	raw, err := json.Marshal(models.EncodeDocument(e))
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.UUID, err)
	}

	query := `
		INSERT INTO objects (uuid, kind, id, remote_ref, logical_clock, created_at, parent_uuid, next_version_uuid, deleted, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (uuid) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		e.UUID, string(e.Kind), e.ID, e.RemoteRef, e.LogicalClock, e.CreatedAt,
		e.ParentUUID, e.NextVersionUUID, e.IsDeleted(), raw)
	if err != nil {
		return pgerr.Wrap("insert object", err)
	}
	return expectOne(res, fmt.Errorf("insert %s %s: %w", e.Kind, e.UUID, common.ErrUUIDConflict))
}

func (r *PostgresRepository) Replace(ctx context.Context, e *models.Entity) error {
	raw, err := json.Marshal(models.EncodeDocument(e))
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.UUID, err)
	}

	query := `
		UPDATE objects SET
			id = $2, logical_clock = $3, parent_uuid = $4, next_version_uuid = $5, deleted = $6, document = $7
		WHERE uuid = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		e.UUID, e.ID, e.LogicalClock, e.ParentUUID, e.NextVersionUUID, e.IsDeleted(), raw)
	if err != nil {
		return pgerr.Wrap("update object", err)
	}
	return expectOne(res, fmt.Errorf("update %s %s: %w", e.Kind, e.UUID, common.ErrNotFound))
}

func (r *PostgresRepository) LinkNext(ctx context.Context, uuid, next string) error {
	query := `
		UPDATE objects SET
			next_version_uuid = $2,
			document = jsonb_set(document, '{nextVersionUUID}', to_jsonb($2::text))
		WHERE uuid = $1 AND next_version_uuid IN ('', $2)
	`
	res, err := r.db.ExecContext(ctx, query, uuid, next)
	if err != nil {
		return pgerr.Wrap("link object", err)
	}
	return expectOne(res, fmt.Errorf("%w: %s already continues with another version than %s", common.ErrBrokenChain, uuid, next))
}

func (r *PostgresRepository) Delete(ctx context.Context, uuid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM objects WHERE uuid = $1`, uuid)
	if err != nil {
		return pgerr.Wrap("delete object", err)
	}
	return expectOne(res, fmt.Errorf("delete %s: %w", uuid, common.ErrNotFound))
}

func (r *PostgresRepository) selectDocuments(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgerr.Wrap("select objects", err)
	}
	defer rows.Close()

	var result []*models.Entity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		e, err := decode(raw)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pgerr.Wrap("select objects", err)
	}
	return result, nil
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return none
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func decode(raw []byte) (*models.Entity, error) {
	var doc models.RemoteDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return models.DecodeDocument(doc)
}
