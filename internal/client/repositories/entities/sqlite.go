package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
)

const entityColumns = `uuid, kind, id, remote_ref, created_at, updated_at, deleted_at, effective_date,
	logical_clock, previous_uuid, next_uuid, parent_id, parent_uuid, payload, aux, pending`

// SQLiteRepository implements Repository on a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers map[int]chan struct{}
	nextSub     int
}

// NewSQLiteRepository returns a repository bound to db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, subscribers: map[int]chan struct{}{}}
}

func (r *SQLiteRepository) FetchByUUID(ctx context.Context, kind models.Kind, uuid string) (*models.Entity, error) {
	list, err := r.query(ctx, `WHERE kind = ? AND uuid = ?`, kind, uuid)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s %s: %w", kind, uuid, common.ErrNotFound)
	}
	return list[0], nil
}

func (r *SQLiteRepository) ListVersions(ctx context.Context, kind models.Kind, id string) ([]*models.Entity, error) {
	return r.query(ctx, `WHERE kind = ? AND id = ? ORDER BY created_at, rowid`, kind, id)
}

func (r *SQLiteRepository) ListPending(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	return r.query(ctx, `WHERE kind = ? AND pending = 1 ORDER BY created_at, rowid`, kind)
}

func (r *SQLiteRepository) ListUnlinked(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	return r.query(ctx, `WHERE kind = ? AND parent_id <> '' AND parent_uuid = '' ORDER BY created_at, rowid`, kind)
}

func (r *SQLiteRepository) ListKind(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	return r.query(ctx, `WHERE kind = ? ORDER BY created_at, rowid`, kind)
}

func (r *SQLiteRepository) ListCurrent(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	return r.query(ctx, `WHERE kind = ? AND next_uuid = '' ORDER BY created_at, rowid`, kind)
}

// Upsert writes e by uuid and replaces its children in one transaction.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.Entity) error {
	payload, err := encodeJSON(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload of %s: %w", e.UUID, err)
	}
	aux, err := encodeJSON(e.Aux)
	if err != nil {
		return fmt.Errorf("failed to encode aux of %s: %w", e.UUID, err)
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO entities (` + entityColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uuid) DO UPDATE SET kind = excluded.kind, id = excluded.id,
				remote_ref = excluded.remote_ref, created_at = excluded.created_at,
				updated_at = excluded.updated_at, deleted_at = excluded.deleted_at,
				effective_date = excluded.effective_date, logical_clock = excluded.logical_clock,
				previous_uuid = excluded.previous_uuid, next_uuid = excluded.next_uuid,
				parent_id = excluded.parent_id, parent_uuid = excluded.parent_uuid,
				payload = excluded.payload, aux = excluded.aux, pending = excluded.pending`
		if _, err := tx.ExecContext(ctx, query,
			e.UUID, e.Kind, e.ID, e.RemoteRef, toUnix(e.CreatedAt), toUnix(e.UpdatedAt), toUnixPtr(e.DeletedAt),
			toUnix(e.EffectiveDate), e.LogicalClock, e.PreviousVersionUUID, e.NextVersionUUID,
			e.ParentID, e.ParentUUID, payload, aux, e.Pending); err != nil {
			return fmt.Errorf("failed to upsert entity: %w", err)
		}
		return replaceChildren(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	if e.Pending {
		r.notify()
	}
	return nil
}

func replaceChildren(ctx context.Context, tx dbx.DBTX, e *models.Entity) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_children WHERE parent_uuid = ?`, e.UUID); err != nil {
		return fmt.Errorf("failed to delete children: %w", err)
	}
	for _, c := range e.Children {
		payload, err := encodeJSON(c.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode child payload: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO entity_children (uuid, kind, id, remote_ref, parent_uuid,
				parent_id, position, created_at, updated_at, logical_clock, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uuid) DO UPDATE SET kind = excluded.kind, id = excluded.id,
				remote_ref = excluded.remote_ref, parent_uuid = excluded.parent_uuid,
				parent_id = excluded.parent_id, position = excluded.position,
				created_at = excluded.created_at, updated_at = excluded.updated_at,
				logical_clock = excluded.logical_clock, payload = excluded.payload`,
			c.UUID, c.Kind, c.ID, c.RemoteRef, e.UUID, e.ID, c.Position,
			toUnix(c.CreatedAt), toUnix(c.UpdatedAt), c.LogicalClock, payload)
		if err != nil {
			return fmt.Errorf("failed to insert child: %w", err)
		}
	}
	return nil
}

// SaveLinks persists the chain references of an existing version.
func (r *SQLiteRepository) SaveLinks(ctx context.Context, e *models.Entity) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET previous_uuid = ?, next_uuid = ?, effective_date = ? WHERE kind = ? AND uuid = ?`,
		e.PreviousVersionUUID, e.NextVersionUUID, toUnix(e.EffectiveDate), e.Kind, e.UUID)
	if err != nil {
		return fmt.Errorf("failed to save links: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("save links of %s %s: %w", e.Kind, e.UUID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, kind models.Kind, uuid string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_children WHERE parent_uuid = ?`, uuid); err != nil {
			return fmt.Errorf("failed to delete children: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND uuid = ?`, kind, uuid); err != nil {
			return fmt.Errorf("failed to delete entity: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) CurrentLogicalClock(ctx context.Context) (int64, error) {
	var clock int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(logical_clock), 0) FROM entities`).Scan(&clock)
	if err != nil {
		return 0, fmt.Errorf("failed to read logical clock: %w", err)
	}
	return clock, nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE pending = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending: %w", err)
	}
	return n, nil
}

// Subscribe registers for pending-change notifications. Signals coalesce:
// a slow reader sees one signal for many changes.
func (r *SQLiteRepository) Subscribe() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan struct{}, 1)
	r.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subscribers, id)
			close(ch)
		})
	}
}

func (r *SQLiteRepository) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entities: %w", err)
	}
	defer rows.Close()

	var list []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachChildren(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *SQLiteRepository) attachChildren(ctx context.Context, list []*models.Entity) error {
	if len(list) == 0 {
		return nil
	}
	byUUID := make(map[string]*models.Entity, len(list))
	args := make([]any, len(list))
	for i, e := range list {
		byUUID[e.UUID] = e
		args[i] = e.UUID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(list)), ",")
	rows, err := r.db.QueryContext(ctx, `SELECT uuid, kind, id, remote_ref, parent_uuid, parent_id, position,
			created_at, updated_at, logical_clock, payload
		FROM entity_children WHERE parent_uuid IN (`+placeholders+`) ORDER BY parent_uuid, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to select children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                    models.Entity
			kind, payload        string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&c.UUID, &kind, &c.ID, &c.RemoteRef, &c.ParentUUID, &c.ParentID, &c.Position,
			&createdAt, &updatedAt, &c.LogicalClock, &payload); err != nil {
			return err
		}
		c.Kind = models.Kind(kind)
		c.CreatedAt = fromUnix(createdAt)
		c.UpdatedAt = fromUnix(updatedAt)
		if c.Payload, err = decodePayload(payload); err != nil {
			return err
		}
		parent := byUUID[c.ParentUUID]
		parent.Children = append(parent.Children, &c)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		e                                 models.Entity
		kind, payload, aux                string
		createdAt, updatedAt, effectiveAt int64
		deletedAt                         sql.NullInt64
	)
	if err := row.Scan(&e.UUID, &kind, &e.ID, &e.RemoteRef, &createdAt, &updatedAt, &deletedAt, &effectiveAt,
		&e.LogicalClock, &e.PreviousVersionUUID, &e.NextVersionUUID, &e.ParentID, &e.ParentUUID,
		&payload, &aux, &e.Pending); err != nil {
		return nil, err
	}
	e.Kind = models.Kind(kind)
	e.CreatedAt = fromUnix(createdAt)
	e.UpdatedAt = fromUnix(updatedAt)
	e.EffectiveDate = fromUnix(effectiveAt)
	if deletedAt.Valid {
		t := fromUnix(deletedAt.Int64)
		e.DeletedAt = &t
	}

	var err error
	if e.Payload, err = decodePayload(payload); err != nil {
		return nil, err
	}
	if aux != "" && aux != "{}" && aux != "null" {
		if err := json.Unmarshal([]byte(aux), &e.Aux); err != nil {
			return nil, fmt.Errorf("failed to decode aux: %w", err)
		}
	}
	return &e, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodePayload(s string) (map[string]any, error) {
	if s == "" || s == "null" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return m, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func toUnixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

var _ Repository = (*SQLiteRepository)(nil)
