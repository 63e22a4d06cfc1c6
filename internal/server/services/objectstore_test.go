package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/objects"
	"github.com/dmitrijs2005/caresync/internal/server/repositories/vectors"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	rows      map[string]*models.Entity
	selectErr error
}

func (f *fakeObjects) Get(_ context.Context, uuid string) (*models.Entity, error) {
	e, ok := f.rows[uuid]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", uuid, common.ErrNotFound)
	}
	return e.Clone(), nil
}

func (f *fakeObjects) Select(_ context.Context, q models.Query) ([]*models.Entity, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	var out []*models.Entity
	for _, e := range f.rows {
		if e.Kind == q.Kind && q.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	models.SortByClock(out)
	return out, nil
}

func (f *fakeObjects) Children(_ context.Context, parents []string, childKinds []models.Kind) ([]*models.Entity, error) {
	var out []*models.Entity
	for _, e := range f.rows {
		for _, p := range parents {
			for _, k := range childKinds {
				if e.ParentUUID == p && e.Kind == k {
					out = append(out, e.Clone())
				}
			}
		}
	}
	return out, nil
}

func (f *fakeObjects) Insert(_ context.Context, e *models.Entity) error {
	if _, ok := f.rows[e.UUID]; ok {
		return common.ErrUUIDConflict
	}
	f.rows[e.UUID] = e.Clone()
	return nil
}

func (f *fakeObjects) Replace(_ context.Context, e *models.Entity) error {
	if _, ok := f.rows[e.UUID]; !ok {
		return common.ErrNotFound
	}
	f.rows[e.UUID] = e.Clone()
	return nil
}

func (f *fakeObjects) LinkNext(_ context.Context, uuid, next string) error {
	e, ok := f.rows[uuid]
	if !ok || (e.NextVersionUUID != "" && e.NextVersionUUID != next) {
		return common.ErrBrokenChain
	}
	e.NextVersionUUID = next
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, uuid string) error {
	if _, ok := f.rows[uuid]; !ok {
		return common.ErrNotFound
	}
	delete(f.rows, uuid)
	return nil
}

type fakeVectors struct {
	rows map[string]models.KnowledgeVector
}

func (f *fakeVectors) Load(_ context.Context, identity string) (models.KnowledgeVector, error) {
	kv, ok := f.rows[identity]
	if !ok {
		return nil, common.ErrNotFound
	}
	return kv.Clone(), nil
}

func (f *fakeVectors) Advance(_ context.Context, identity, processID string, value int64) error {
	if f.rows[identity] == nil {
		f.rows[identity] = models.KnowledgeVector{}
	}
	f.rows[identity].Advance(processID, value)
	return nil
}

func (f *fakeVectors) Identities(context.Context) ([]string, error) {
	var out []string
	for id := range f.rows {
		out = append(out, id)
	}
	return out, nil
}

type fakeManager struct {
	objects *fakeObjects
	vectors *fakeVectors
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeManager) Objects(dbx.DBTX) objects.Repository          { return m.objects }
func (m *fakeManager) Vectors(dbx.DBTX) vectors.Repository          { return m.vectors }

func newObjectStore(t *testing.T) (*ObjectStoreService, *fakeManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := &fakeManager{
		objects: &fakeObjects{rows: map[string]*models.Entity{}},
		vectors: &fakeVectors{rows: map[string]models.KnowledgeVector{}},
	}
	s := NewObjectStoreService(db, m, kinds.Default())
	s.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s, m, mock
}

func TestObjectStore_SaveAssignsReference(t *testing.T) {
	s, m, _ := newObjectStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u1", Pending: true,
		Children: []*models.Entity{{Kind: models.KindNote, UUID: "n1"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.RemoteRef)
	assert.Equal(t, s.now(), saved.CreatedAt)
	assert.False(t, saved.Pending)
	assert.Empty(t, m.objects.rows["u1"].Children, "children are stored on their own")

	_, err = s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u1"})
	assert.ErrorIs(t, err, common.ErrUUIDConflict)
}

func TestObjectStore_UpdateKeepsReference(t *testing.T) {
	s, _, mock := newObjectStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u1", LogicalClock: 1})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	upd := saved.Clone()
	upd.RemoteRef = "forged"
	upd.CreatedAt = time.Time{}
	upd.LogicalClock = 2
	got, err := s.Update(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, saved.RemoteRef, got.RemoteRef)
	assert.Equal(t, saved.CreatedAt, got.CreatedAt)
	assert.Equal(t, int64(2), got.LogicalClock)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = s.Update(ctx, &models.Entity{Kind: models.KindTask, UUID: "missing"})
	assert.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObjectStore_Tombstone(t *testing.T) {
	s, m, mock := newObjectStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u1", LogicalClock: 1,
		Payload: map[string]any{"title": "walk"}})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	tomb, err := s.Tombstone(ctx, &models.Entity{Kind: models.KindTask, UUID: "u1", LogicalClock: 5})
	require.NoError(t, err)
	assert.True(t, tomb.IsDeleted())
	assert.Equal(t, int64(5), tomb.LogicalClock)
	assert.Equal(t, "walk", m.objects.rows["u1"].Payload["title"], "tombstones keep the record body")
}

func TestObjectStore_LinkVersion(t *testing.T) {
	s, m, mock := newObjectStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Entity{Kind: models.KindPatient, ID: "p1", UUID: "v1", LogicalClock: 1})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v2"))
	assert.Equal(t, "v2", m.objects.rows["v1"].NextVersionUUID)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v3"), common.ErrBrokenChain)
	assert.Equal(t, "v2", m.objects.rows["v1"].NextVersionUUID)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindTask, "v1", "v2"), common.ErrNotFound, "kind must match")

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindPatient, "missing", "v2"), common.ErrNotFound)

	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindPatient, "v1", ""), common.ErrInvalidEntity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObjectStore_QueryAttachesChildren(t *testing.T) {
	s, _, _ := newObjectStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "p1"})
	require.NoError(t, err)
	_, err = s.Save(ctx, &models.Entity{Kind: models.KindCarePlan, ID: "cp", UUID: "cp1", ParentUUID: "p1"})
	require.NoError(t, err)
	for _, c := range []struct {
		uuid string
		pos  int
	}{{"v2", 1}, {"v1", 0}} {
		_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcomeValue, UUID: c.uuid, ParentUUID: "p1", Position: c.pos})
		require.NoError(t, err)
	}

	got, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, IncludeRelations: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Children, 2, "only relational child kinds are attached")
	assert.Equal(t, "v1", got[0].Children[0].UUID)

	plain, err := s.Query(ctx, models.Query{Kind: models.KindOutcome})
	require.NoError(t, err)
	assert.Empty(t, plain[0].Children)
}

func TestObjectStore_QueryPassesSchemaMissing(t *testing.T) {
	s, m, _ := newObjectStore(t)
	m.objects.selectErr = fmt.Errorf("select objects: %w", common.ErrSchemaMissing)

	_, err := s.Query(context.Background(), models.Query{Kind: models.KindTask})
	assert.ErrorIs(t, err, common.ErrSchemaMissing)
}

func TestObjectStore_History(t *testing.T) {
	s, _, _ := newObjectStore(t)
	ctx := context.Background()

	for i, u := range []string{"v1", "v2"} {
		_, err := s.Save(ctx, &models.Entity{Kind: models.KindPatient, ID: "p", UUID: u, LogicalClock: int64(i + 1)})
		require.NoError(t, err)
	}

	got, err := s.History(ctx, models.KindPatient, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, []string{got[0].UUID, got[1].UUID})

	_, err = s.History(ctx, models.KindPatient, "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestObjectStore_Vectors(t *testing.T) {
	s, _, mock := newObjectStore(t)
	ctx := context.Background()

	_, err := s.LoadVector(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrNotFound)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = s.AdvanceVector(ctx, "alice", "ipad", 6)
	require.NoError(t, err)
	kv, err := s.AdvanceVector(ctx, "alice", "ipad", 2)
	require.NoError(t, err)
	assert.Equal(t, models.KnowledgeVector{"ipad": 6}, kv)

	_, err = s.AdvanceVector(ctx, "", "ipad", 1)
	assert.ErrorIs(t, err, common.ErrInvalidEntity)
	require.NoError(t, mock.ExpectationsWereMet())
}
