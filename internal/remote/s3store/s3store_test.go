package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	version int
	listErr error
	pages   int32

	// beforePut runs once, inside the next PutObject, ahead of its
	// precondition check.
	beforePut func(f *fakeS3)
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (f *fakeS3) store(key string, b []byte) {
	f.version++
	f.objects[key] = b
	f.etags[key] = fmt.Sprintf("%q", strconv.Itoa(f.version))
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fn := f.beforePut; fn != nil {
		f.beforePut = nil
		fn(f)
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if in.IfMatch != nil && f.etags[key] != aws.ToString(in.IfMatch) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	f.store(key, b)
	return &s3.PutObjectOutput{ETag: aws.String(f.etags[key])}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	b, ok := f.objects[key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b)), ETag: aws.String(f.etags[key])}, nil
}

// ListObjectsV2 pages through keys, pages keys at a time when pages > 0.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if after := aws.ToString(in.ContinuationToken); after != "" {
		i, _ := slices.BinarySearch(keys, after)
		keys = keys[i:]
	}

	limit := int(aws.ToInt32(in.MaxKeys))
	if f.pages > 0 && (limit == 0 || int(f.pages) < limit) {
		limit = int(f.pages)
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if limit > 0 && len(keys) > limit {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[limit])
		keys = keys[:limit]
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	delete(f.etags, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newStore() (*Store, *fakeS3) {
	api := newFakeS3()
	return New(api, "care", "tenant", kinds.Default()), api
}

func TestSave_WritesCompressedDocument(t *testing.T) {
	s, api := newStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "u1", LogicalClock: 3,
		Payload: map[string]any{"label": "pain"}})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.RemoteRef)
	assert.False(t, saved.CreatedAt.IsZero())

	raw, ok := api.objects["tenant/objects/outcome/u1"]
	require.True(t, ok, "objects live under the prefix and kind")
	decoded, err := snappy.Decode(nil, raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), `"label":"pain"`)

	_, err = s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "u1"})
	assert.ErrorIs(t, err, common.ErrUUIDConflict)
}

func TestQuery_FiltersAndOrders(t *testing.T) {
	s, api := newStore()
	api.pages = 1
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, c := range []struct {
		uuid  string
		clock int64
		next  string
	}{{"c", 7, ""}, {"a", 2, "c"}, {"b", 5, ""}} {
		_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: c.uuid,
			LogicalClock: c.clock, NextVersionUUID: c.next, CreatedAt: base})
		require.NoError(t, err)
	}

	got, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, MinClock: models.Since(2)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].UUID, got[1].UUID, got[2].UUID})

	heads, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, CurrentOnly: true, MinClock: models.Since(6)})
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, "c", heads[0].UUID)

	byUUID, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, UUID: "missing"})
	require.NoError(t, err)
	assert.Empty(t, byUUID)
}

func TestQuery_IncludeRelations(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcome, ID: "o", UUID: "parent"})
	require.NoError(t, err)
	for i, u := range []string{"v2", "v1"} {
		_, err := s.Save(ctx, &models.Entity{Kind: models.KindOutcomeValue, UUID: u, ParentUUID: "parent", Position: 1 - i})
		require.NoError(t, err)
	}
	_, err = s.Save(ctx, &models.Entity{Kind: models.KindOutcomeValue, UUID: "other", ParentUUID: "elsewhere"})
	require.NoError(t, err)

	plain, err := s.Query(ctx, models.Query{Kind: models.KindOutcome})
	require.NoError(t, err)
	assert.Empty(t, plain[0].Children)

	rich, err := s.Query(ctx, models.Query{Kind: models.KindOutcome, UUID: "parent", IncludeRelations: true})
	require.NoError(t, err)
	require.Len(t, rich, 1)
	require.Len(t, rich[0].Children, 2)
	assert.Equal(t, "v1", rich[0].Children[0].UUID)
}

func TestUpdateTombstoneDelete(t *testing.T) {
	s, api := newStore()
	ctx := context.Background()

	saved, err := s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u", LogicalClock: 1})
	require.NoError(t, err)

	upd := saved.Clone()
	upd.RemoteRef = "ignored"
	upd.LogicalClock = 2
	got, err := s.Update(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, saved.RemoteRef, got.RemoteRef)

	tomb, err := s.Tombstone(ctx, &models.Entity{Kind: models.KindTask, UUID: "u", LogicalClock: 3})
	require.NoError(t, err)
	assert.True(t, tomb.IsDeleted())
	assert.Equal(t, int64(3), tomb.LogicalClock)

	require.NoError(t, s.Delete(ctx, tomb))
	assert.Empty(t, api.objects)
	assert.ErrorIs(t, s.Delete(ctx, tomb), common.ErrNotFound)
	_, err = s.Update(ctx, upd)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStrictSchema(t *testing.T) {
	s, _ := newStore()
	s.StrictSchema = true
	ctx := context.Background()

	_, err := s.Query(ctx, models.Query{Kind: models.KindTask})
	assert.ErrorIs(t, err, common.ErrSchemaMissing)

	_, err = s.Save(ctx, &models.Entity{Kind: models.KindTask, ID: "t", UUID: "u", LogicalClock: 1})
	require.NoError(t, err)
	got, err := s.Query(ctx, models.Query{Kind: models.KindTask, MinClock: models.Since(9)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVectors(t *testing.T) {
	s, api := newStore()
	ctx := context.Background()

	_, err := s.LoadVector(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = s.AdvanceVector(ctx, "alice", "ipad", 4)
	require.NoError(t, err)
	_, err = s.AdvanceVector(ctx, "alice", "phone", 1)
	require.NoError(t, err)
	kv, err := s.AdvanceVector(ctx, "alice", "ipad", 2)
	require.NoError(t, err)
	assert.Equal(t, models.KnowledgeVector{"ipad": 4, "phone": 1}, kv)

	loaded, err := s.LoadVector(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, kv, loaded)
	assert.Contains(t, api.objects, "tenant/clocks/alice")
}

func TestListError_IsWrapped(t *testing.T) {
	s, api := newStore()
	boom := errors.New("boom")
	api.listErr = boom

	_, err := s.Query(context.Background(), models.Query{Kind: models.KindTask})
	assert.ErrorIs(t, err, boom)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(&s3types.NoSuchKey{}), common.ErrNotFound)
	assert.ErrorIs(t, mapError(&s3types.NoSuchBucket{Message: aws.String("nope")}), common.ErrUnavailable)
	boom := errors.New("boom")
	assert.Equal(t, boom, mapError(boom))
}

func TestPing(t *testing.T) {
	s, api := newStore()
	require.NoError(t, s.Ping(context.Background()))

	api.listErr = &s3types.NoSuchBucket{Message: aws.String("gone")}
	assert.ErrorIs(t, s.Ping(context.Background()), common.ErrUnavailable)
}

func TestLinkVersion(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	_, err := s.Save(ctx, &models.Entity{Kind: models.KindPatient, ID: "p1", UUID: "v1"})
	require.NoError(t, err)

	require.NoError(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v2"))
	require.NoError(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v2"))
	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindPatient, "v1", "v3"), common.ErrBrokenChain)
	assert.ErrorIs(t, s.LinkVersion(ctx, models.KindPatient, "nope", "v3"), common.ErrNotFound)

	got, err := s.Query(ctx, models.Query{Kind: models.KindPatient, UUID: "v1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].NextVersionUUID)
}

func TestLinkVersion_ConcurrentLinkWins(t *testing.T) {
	s, api := newStore()
	ctx := context.Background()
	_, err := s.Save(ctx, &models.Entity{Kind: models.KindPatient, ID: "p1", UUID: "v1"})
	require.NoError(t, err)

	key := "tenant/objects/patient/v1"
	other, err := json.Marshal(models.EncodeDocument(&models.Entity{
		Kind: models.KindPatient, ID: "p1", UUID: "v1", NextVersionUUID: "other"}))
	require.NoError(t, err)
	// another process links v1 between our read and our conditional put
	api.beforePut = func(f *fakeS3) { f.store(key, snappy.Encode(nil, other)) }

	err = s.LinkVersion(ctx, models.KindPatient, "v1", "mine")
	require.ErrorIs(t, err, common.ErrBrokenChain)

	got, err := s.Query(ctx, models.Query{Kind: models.KindPatient, UUID: "v1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "other", got[0].NextVersionUUID)
}
