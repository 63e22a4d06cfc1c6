package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/client/client"
	"github.com/dmitrijs2005/caresync/internal/lease"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote/memstore"
	"github.com/dmitrijs2005/caresync/internal/sync/engine"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	records RecordService
	sync    SyncService
	repos   *client.Repositories
}

func newDevice(t *testing.T, remote *memstore.Store, opts SyncOptions) *device {
	t.Helper()
	repos := setupRepos(t)
	registry := kinds.Default()
	if opts.Identity == "" {
		opts.Identity = "alice"
	}
	eng := engine.New(registry, lease.NewLocal(), logging.NewNop())
	return &device{
		records: NewRecordService(repos.Entities, registry),
		sync:    NewSyncService(eng, client.WithoutClose(remote), repos.Entities, repos.Settings, opts, logging.NewNop()),
		repos:   repos,
	}
}

func remoteIDs(t *testing.T, remote *memstore.Store, kind models.Kind) []string {
	t.Helper()
	list, err := remote.Query(context.Background(), models.Query{Kind: kind, CurrentOnly: true})
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestSyncNow_PushesAndRecordsRound(t *testing.T) {
	ctx := context.Background()
	remote := memstore.New(kinds.Default())
	dev := newDevice(t, remote, SyncOptions{})

	_, err := dev.records.Create(ctx, RecordInput{Kind: models.KindPatient, ID: "p1", Payload: map[string]any{"name": "Ann"}})
	require.NoError(t, err)
	_, err = dev.records.Create(ctx, RecordInput{Kind: models.KindPreference, ID: "units", Payload: map[string]any{"value": "metric"}})
	require.NoError(t, err)

	res, err := dev.sync.SyncNow(ctx, false)
	require.NoError(t, err)
	require.True(t, res.OK(), res.Err())
	assert.Len(t, res.Pushed, 2, "the round and the wall-clock pass are reported together")
	assert.Equal(t, []string{"p1"}, remoteIDs(t, remote, models.KindPatient))
	assert.Equal(t, []string{"units"}, remoteIDs(t, remote, models.KindPreference))

	st, err := dev.sync.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Pending)
	assert.Equal(t, res.Summary(), st.LastResult)
	assert.Equal(t, res.Clock, st.Vector.Get(st.ProcessID))
	assert.True(t, st.Online, "without a watcher the remote is assumed reachable")
}

func TestSyncNow_SecondDevicePulls(t *testing.T) {
	ctx := context.Background()
	remote := memstore.New(kinds.Default())
	a := newDevice(t, remote, SyncOptions{})
	b := newDevice(t, remote, SyncOptions{})

	_, err := a.records.Create(ctx, RecordInput{Kind: models.KindPatient, ID: "p1", Payload: map[string]any{"name": "Ann"}})
	require.NoError(t, err)
	_, err = a.sync.SyncNow(ctx, false)
	require.NoError(t, err)

	res, err := b.sync.SyncNow(ctx, false)
	require.NoError(t, err)
	require.Len(t, res.Pulled, 1)

	got, err := b.records.Get(ctx, models.KindPatient, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Payload["name"])
	assert.False(t, got.Pending)
}

func TestSyncNow_FailedRoundIsRecorded(t *testing.T) {
	ctx := context.Background()
	remote := memstore.New(kinds.Default())
	remote.Hook = func(op string, _ *models.Entity) error {
		if op == "advance" {
			return errors.New("clock store down")
		}
		return nil
	}
	dev := newDevice(t, remote, SyncOptions{})

	_, err := dev.sync.SyncNow(ctx, false)
	require.Error(t, err)

	st, err := dev.sync.Status(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(st.LastResult, "failed: "), st.LastResult)
}

func TestRun_AutoSyncAfterLocalChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := memstore.New(kinds.Default())
	dev := newDevice(t, remote, SyncOptions{AutoSync: true, Debounce: 10 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		dev.sync.Run(ctx)
		close(done)
	}()

	_, err := dev.records.Create(ctx, RecordInput{Kind: models.KindTask, ID: "t1", Payload: map[string]any{"title": "walk"}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(remoteIDs(t, remote, models.KindTask)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRun_AutoSyncToggledOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := memstore.New(kinds.Default())
	dev := newDevice(t, remote, SyncOptions{AutoSync: true, Debounce: time.Millisecond})
	require.NoError(t, dev.sync.SetAutoSync(ctx, false))

	done := make(chan struct{})
	go func() {
		dev.sync.Run(ctx)
		close(done)
	}()

	_, err := dev.records.Create(ctx, RecordInput{Kind: models.KindTask, ID: "t1", Payload: map[string]any{"title": "walk"}})
	require.NoError(t, err)

	assert.Never(t, func() bool {
		return len(remoteIDs(t, remote, models.KindTask)) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)

	st, err := dev.sync.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.AutoSync)
	assert.Equal(t, 1, st.Pending)

	cancel()
	<-done
}

func TestRun_SyncsWhenBackOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := memstore.New(kinds.Default())
	remote.SetOffline(true)
	dev := newDevice(t, remote, SyncOptions{AutoSync: true, Debounce: time.Millisecond, OnlineCheck: 10 * time.Millisecond})
	assert.False(t, dev.sync.Online())

	done := make(chan struct{})
	go func() {
		dev.sync.Run(ctx)
		close(done)
	}()

	_, err := dev.records.Create(ctx, RecordInput{Kind: models.KindTask, ID: "t1", Payload: map[string]any{"title": "walk"}})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, remoteIDs(t, remote, models.KindTask), "nothing is pushed while offline")

	remote.SetOffline(false)
	assert.Eventually(t, func() bool {
		return dev.sync.Online() && len(remoteIDs(t, remote, models.KindTask)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
