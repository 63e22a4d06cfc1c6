package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type childSet map[models.Kind]bool

func (c childSet) IsChild(k models.Kind) bool { return c[k] }

func newStore() *Store {
	return New(childSet{models.KindOutcomeValue: true})
}

func TestSaveQueryOrdering(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, c := range []struct {
		uuid  string
		clock int64
		at    time.Duration
	}{{"late", 9, 0}, {"b", 5, time.Second}, {"a", 5, 0}, {"old", 1, 0}} {
		_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: c.uuid, UUID: c.uuid,
			LogicalClock: c.clock, CreatedAt: base.Add(c.at)})
		require.NoError(t, err)
	}

	got, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, MinClock: models.Since(5)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "late"}, []string{got[0].UUID, got[1].UUID, got[2].UUID})
	for _, e := range got {
		assert.NotEmpty(t, e.RemoteRef)
	}
}

func TestSave_UUIDConflict(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	e := &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "u"}

	_, err := s.Save(ctx, e)
	require.NoError(t, err)
	_, err = s.Save(ctx, e)
	assert.ErrorIs(t, err, common.ErrUUIDConflict)
}

func TestUpdateTombstoneDelete(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "u", LogicalClock: 1})
	require.NoError(t, err)

	upd := saved.Clone()
	upd.RemoteRef = "ignored"
	upd.LogicalClock = 2
	got, err := s.Update(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, saved.RemoteRef, got.RemoteRef, "remote reference is assigned once")
	assert.Equal(t, int64(2), got.LogicalClock)

	tomb, err := s.Tombstone(ctx, &models.Entity{Kind: models.KindOutcome, UUID: "u", LogicalClock: 3})
	require.NoError(t, err)
	assert.True(t, tomb.IsDeleted())
	assert.Equal(t, int64(3), tomb.LogicalClock)

	require.NoError(t, s.Delete(ctx, tomb))
	assert.ErrorIs(t, s.Delete(ctx, tomb), common.ErrNotFound)
	_, err = s.Update(ctx, upd)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.Tombstone(ctx, upd)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.Equal(t, 4, s.Writes())
}

func TestQuery_IncludeRelations(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "parent"})
	require.NoError(t, err)
	for i, u := range []string{"c2", "c1"} {
		_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcomeValue, UUID: u, ParentUUID: "parent", Position: 1 - i})
		require.NoError(t, err)
	}

	plain, err := s.Query(ctx, models.Query{Kind: models.KindOutcome})
	require.NoError(t, err)
	assert.Empty(t, plain[0].Children)

	rich, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, IncludeRelations: true})
	require.NoError(t, err)
	require.Len(t, rich[0].Children, 2)
	assert.Equal(t, "c1", rich[0].Children[0].UUID)
}

func TestStrictSchema(t *testing.T) {
	s := newStore()
	s.StrictSchema = true
	ctx := context.Background()

	_, err := s.Query(ctx, models.Query{Kind: models.KindTask})
	assert.ErrorIs(t, err, common.ErrSchemaMissing)

	_, err = s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u"})
	require.NoError(t, err)
	_, err = s.Query(ctx, models.Query{Kind: models.KindTask})
	assert.NoError(t, err)
}

func TestVectors(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	_, err := s.LoadVector(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = s.AdvanceVector(ctx, "alice", "ipad", 4)
	require.NoError(t, err)
	kv, err := s.AdvanceVector(ctx, "alice", "ipad", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), kv.Get("ipad"))
}

func TestLinkVersion_FirstWriterWins(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	_, err := s.Save(ctx, &models.Entity{Kind: models.KindPatient, ID: "p1", UUID: "v1"})
	require.NoError(t, err)

	require.NoError(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v2"))
	require.NoError(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v2"), "relinking the same successor is a no-op")

	err = s.LinkVersion(ctx, models.KindPatient, "v1", "v3")
	require.ErrorIs(t, err, common.ErrBrokenChain)

	got, err := s.Query(ctx, models.Query{Kind: models.KindPatient, UUID: "v1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].NextVersionUUID)

	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindPatient, "missing", "v2"), common.ErrNotFound)
	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindTask, "v1", "v2"), common.ErrNotFound)
}

func TestHookVetoesWrites(t *testing.T) {
	s := newStore()
	boom := errors.New("boom")
	s.Hook = func(op string, e *models.Entity) error {
		if op == "save" {
			return boom
		}
		return nil
	}

	_, err := s.Save(context.Background(), &models.Entity{Kind: models.KindTask, UUID: "u"})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.Writes())
}

func TestPing_Offline(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Ping(context.Background()))

	s.SetOffline(true)
	assert.ErrorIs(t, s.Ping(context.Background()), common.ErrUnavailable)
}
