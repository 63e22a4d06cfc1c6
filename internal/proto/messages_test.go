package proto

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEntityStruct_KeepsChildrenAndTimes(t *testing.T) {
	ts := time.Date(2026, 5, 2, 10, 30, 0, 123, time.UTC)
	e := &models.Entity{
		Kind: models.KindTask, ID: "t1", UUID: "u1", LogicalClock: 42,
		CreatedAt: ts, UpdatedAt: ts, EffectiveDate: ts,
		Payload: map[string]any{"title": "walk", "tags": []string{"daily"}},
		Children: []*models.Entity{
			{Kind: models.KindScheduleElement, UUID: "c2", Position: 1},
			{Kind: models.KindScheduleElement, UUID: "c1", Position: 0},
		},
	}

	s, err := EntityStruct(e)
	require.NoError(t, err)
	got, err := EntityFrom(s)
	require.NoError(t, err)

	assert.Equal(t, int64(42), got.LogicalClock)
	assert.True(t, got.UpdatedAt.Equal(ts))
	assert.Equal(t, []any{"daily"}, got.Payload["tags"])
	require.Len(t, got.Children, 2)
	assert.Equal(t, "c1", got.Children[0].UUID)
}

func TestEntityFrom_MissingField(t *testing.T) {
	s, err := ToStruct(map[string]any{"other": 1})
	require.NoError(t, err)
	_, err = EntityFrom(s)
	require.Error(t, err)
}

func TestQueryStruct(t *testing.T) {
	q := models.Query{Kind: models.KindPatient, MinClock: models.Since(0), ID: "p1", IncludeRelations: true}

	s, err := QueryStruct(q)
	require.NoError(t, err)
	got, err := QueryFrom(s)
	require.NoError(t, err)

	require.NotNil(t, got.MinClock)
	assert.Equal(t, int64(0), *got.MinClock)
	assert.Equal(t, "p1", got.ID)
	assert.True(t, got.IncludeRelations)
	assert.False(t, got.CurrentOnly)

	empty, err := ToStruct(map[string]any{})
	require.NoError(t, err)
	_, err = QueryFrom(empty)
	require.Error(t, err)
}

func TestVectorStruct(t *testing.T) {
	s, err := VectorStruct(models.KnowledgeVector{"dev-a": 7})
	require.NoError(t, err)
	kv, err := VectorFrom(s)
	require.NoError(t, err)
	assert.Equal(t, models.KnowledgeVector{"dev-a": 7}, kv)
}

func TestClocksStayExactPast2To53(t *testing.T) {
	const big = int64(1<<53 + 1)

	q, err := QueryStruct(models.Query{Kind: models.KindPatient, MinClock: models.Since(big)})
	require.NoError(t, err)
	assert.Equal(t, "9007199254740993", q.GetFields()[fieldMinClock].GetStringValue())
	got, err := QueryFrom(q)
	require.NoError(t, err)
	assert.Equal(t, big, *got.MinClock)

	vs, err := VectorStruct(models.KnowledgeVector{"dev-a": big})
	require.NoError(t, err)
	kv, err := VectorFrom(vs)
	require.NoError(t, err)
	assert.Equal(t, big, kv.Get("dev-a"))

	es, err := EntitiesStruct([]*models.Entity{{
		Kind: models.KindOutcome, UUID: "u1", LogicalClock: big,
		Children: []*models.Entity{{Kind: models.KindOutcomeValue, UUID: "c1", LogicalClock: big - 1}},
	}})
	require.NoError(t, err)
	list, err := EntitiesFrom(es)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, big, list[0].LogicalClock)
	require.Len(t, list[0].Children, 1)
	assert.Equal(t, big-1, list[0].Children[0].LogicalClock)
}

func TestQueryFrom_RejectsNumericClock(t *testing.T) {
	s, err := ToStruct(map[string]any{fieldKind: "patient", fieldMinClock: 3})
	require.NoError(t, err)
	_, err = QueryFrom(s)
	require.Error(t, err)
}

func TestLinkStruct(t *testing.T) {
	s, err := LinkStruct(models.KindPatient, "v1", "v2")
	require.NoError(t, err)
	kind, prev, next, err := LinkFrom(s)
	require.NoError(t, err)
	assert.Equal(t, models.KindPatient, kind)
	assert.Equal(t, "v1", prev)
	assert.Equal(t, "v2", next)

	_, _, _, err = LinkFrom(&structpb.Struct{})
	require.Error(t, err)
}
