package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "secret"

type fakeStore struct {
	vectors  map[string]models.KnowledgeVector
	versions []*models.Entity
	err      error
}

func (f *fakeStore) LoadVector(_ context.Context, identity string) (models.KnowledgeVector, error) {
	if f.err != nil {
		return nil, f.err
	}
	kv, ok := f.vectors[identity]
	if !ok {
		return nil, common.ErrNotFound
	}
	return kv, nil
}

func (f *fakeStore) History(_ context.Context, kind models.Kind, id string) ([]*models.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.versions) == 0 {
		return nil, common.ErrNotFound
	}
	return f.versions, nil
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func do(t *testing.T, h http.Handler, path, identity string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if identity != "" {
		tok, err := auth.GenerateToken(identity, []byte(secret), time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ok := NewRouter(&fakeStore{}, pinger{}, logging.NewNop(), secret)
	rec := do(t, ok, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	down := NewRouter(&fakeStore{}, pinger{err: errors.New("refused")}, logging.NewNop(), secret)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, "/health", "").Code)
}

func TestClock(t *testing.T) {
	store := &fakeStore{vectors: map[string]models.KnowledgeVector{"alice": {"ipad": 3}}}
	h := NewRouter(store, nil, logging.NewNop(), secret)

	rec := do(t, h, "/clocks/alice", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Identity string                 `json:"identity"`
		Vector   models.KnowledgeVector `json:"vector"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Vector.Get("ipad"))

	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/clocks/alice", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, "/clocks/alice", "bob").Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, "/clocks/bob", "bob").Code)
}

func TestHistory(t *testing.T) {
	store := &fakeStore{versions: []*models.Entity{
		{Kind: models.KindPatient, ID: "p1", UUID: "v1", LogicalClock: 1, NextVersionUUID: "v2"},
		{Kind: models.KindPatient, ID: "p1", UUID: "v2", LogicalClock: 4, PreviousVersionUUID: "v1"},
	}}
	h := NewRouter(store, nil, logging.NewNop(), secret)

	rec := do(t, h, "/objects/patient/p1/history", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Versions []map[string]any `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Versions, 2)
	assert.Equal(t, "v2", body.Versions[1]["uuid"])

	store.err = errors.New("boom")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, "/objects/patient/p1/history", "alice").Code)
	store.err = common.ErrSchemaMissing
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, "/objects/patient/p1/history", "alice").Code)
}
