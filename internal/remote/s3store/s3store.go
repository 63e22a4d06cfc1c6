// Package s3store keeps remote objects and knowledge vectors in an S3 bucket.
//
// Every entity is one snappy-compressed JSON document under
// <prefix>objects/<kind>/<uuid>; knowledge vectors live under
// <prefix>clocks/<identity>. Relational children are separate documents and
// are only attached on IncludeRelations queries.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Kinds lists the relational child kinds attached on IncludeRelations.
type Kinds interface {
	ChildKinds() []models.Kind
}

type Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Prefix       string
	UsePathStyle bool
}

var newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
	return s3.NewFromConfig(cfg, optFns...)
}

// NewClient builds an S3 client for cfg. Static credentials are used when
// both keys are set, the default AWS chain otherwise.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

type Store struct {
	api    API
	bucket string
	prefix string
	kinds  Kinds
	now    func() time.Time

	// vectors serializes read-modify-write of clock documents made through
	// this store. Writers in other processes are not excluded.
	vectors sync.Mutex

	// StrictSchema makes queries on kinds without any stored document fail
	// with ErrSchemaMissing.
	StrictSchema bool
}

func New(api API, bucket, prefix string, kinds Kinds) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{api: api, bucket: bucket, prefix: prefix, kinds: kinds, now: time.Now}
}

func (s *Store) objectKey(kind models.Kind, id string) string {
	return s.prefix + path.Join("objects", string(kind), id)
}

func (s *Store) kindPrefix(kind models.Kind) string {
	return s.prefix + path.Join("objects", string(kind)) + "/"
}

func (s *Store) clockKey(identity string) string {
	return s.prefix + path.Join("clocks", identity)
}

func (s *Store) Query(ctx context.Context, q models.Query) ([]*models.Entity, error) {
	if q.UUID != "" {
		e, err := s.get(ctx, q.Kind, q.UUID)
		if errors.Is(err, common.ErrNotFound) {
			return s.emptyResult(ctx, q.Kind)
		}
		if err != nil {
			return nil, err
		}
		return s.finish(ctx, q, []*models.Entity{e})
	}

	all, err := s.listKind(ctx, q.Kind)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return s.emptyResult(ctx, q.Kind)
	}
	return s.finish(ctx, q, all)
}

func (s *Store) emptyResult(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	if !s.StrictSchema {
		return nil, nil
	}
	keys, err := s.listKeys(ctx, s.kindPrefix(kind), 1)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("query %s: %w", kind, common.ErrSchemaMissing)
	}
	return nil, nil
}

func (s *Store) finish(ctx context.Context, q models.Query, list []*models.Entity) ([]*models.Entity, error) {
	var out []*models.Entity
	for _, e := range list {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	if q.IncludeRelations && len(out) > 0 {
		if err := s.attachChildren(ctx, out); err != nil {
			return nil, err
		}
	}
	models.SortByClock(out)
	return out, nil
}

func (s *Store) attachChildren(ctx context.Context, parents []*models.Entity) error {
	byParent := map[string]*models.Entity{}
	for _, p := range parents {
		byParent[p.UUID] = p
	}
	for _, k := range s.kinds.ChildKinds() {
		children, err := s.listKind(ctx, k)
		if err != nil {
			return err
		}
		for _, c := range children {
			if p, ok := byParent[c.ParentUUID]; ok {
				p.Children = append(p.Children, c)
			}
		}
	}
	for _, p := range parents {
		models.SortByPosition(p.Children)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	_, err := s.get(ctx, e.Kind, e.UUID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("save %s %s: %w", e.Kind, e.UUID, common.ErrUUIDConflict)
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	stored := e.Clone()
	stored.Children = nil
	stored.Pending = false
	if stored.RemoteRef == "" {
		stored.RemoteRef = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) Update(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	cur, err := s.get(ctx, e.Kind, e.UUID)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", e.Kind, e.UUID, err)
	}

	stored := e.Clone()
	stored.Children = nil
	stored.Pending = false
	stored.RemoteRef = cur.RemoteRef
	stored.CreatedAt = cur.CreatedAt
	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) Tombstone(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	cur, err := s.get(ctx, e.Kind, e.UUID)
	if err != nil {
		return nil, fmt.Errorf("tombstone %s %s: %w", e.Kind, e.UUID, err)
	}

	deletedAt := s.now()
	if e.DeletedAt != nil {
		deletedAt = *e.DeletedAt
	}
	cur.DeletedAt = &deletedAt
	cur.LogicalClock = e.LogicalClock
	cur.UpdatedAt = e.UpdatedAt
	if err := s.put(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

func (s *Store) Delete(ctx context.Context, e *models.Entity) error {
	if _, err := s.get(ctx, e.Kind, e.UUID); err != nil {
		return fmt.Errorf("delete %s %s: %w", e.Kind, e.UUID, err)
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(e.Kind, e.UUID)),
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", e.Kind, e.UUID, mapError(err))
	}
	return nil
}

// LinkVersion rewrites the predecessor document with a put conditioned on
// the ETag it was read with, so a concurrent link by another process fails
// with ErrBrokenChain instead of being overwritten.
func (s *Store) LinkVersion(ctx context.Context, kind models.Kind, previousUUID, nextUUID string) error {
	key := s.objectKey(kind, previousUUID)
	var doc models.RemoteDocument
	etag, err := s.readTagged(ctx, key, &doc)
	if err != nil {
		return fmt.Errorf("link %s %s: %w", kind, previousUUID, err)
	}
	cur, err := models.DecodeDocument(doc)
	if err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}

	switch cur.NextVersionUUID {
	case nextUUID:
		return nil
	case "":
	default:
		return fmt.Errorf("%w: %s already continues with %s, not %s",
			common.ErrBrokenChain, previousUUID, cur.NextVersionUUID, nextUUID)
	}

	cur.NextVersionUUID = nextUUID
	err = s.writeIf(ctx, key, models.EncodeDocument(cur), etag)
	if isPreconditionFailed(err) {
		return fmt.Errorf("%w: %s was relinked concurrently", common.ErrBrokenChain, previousUUID)
	}
	return err
}

func (s *Store) LoadVector(ctx context.Context, identity string) (models.KnowledgeVector, error) {
	var kv models.KnowledgeVector
	if err := s.read(ctx, s.clockKey(identity), &kv); err != nil {
		return nil, err
	}
	if kv == nil {
		kv = models.KnowledgeVector{}
	}
	return kv, nil
}

func (s *Store) AdvanceVector(ctx context.Context, identity, processID string, value int64) (models.KnowledgeVector, error) {
	s.vectors.Lock()
	defer s.vectors.Unlock()

	kv, err := s.LoadVector(ctx, identity)
	if errors.Is(err, common.ErrNotFound) {
		kv = models.KnowledgeVector{}
	} else if err != nil {
		return nil, err
	}

	if kv.Advance(processID, value) {
		if err := s.write(ctx, s.clockKey(identity), kv); err != nil {
			return nil, err
		}
	}
	return kv.Clone(), nil
}

func (s *Store) get(ctx context.Context, kind models.Kind, id string) (*models.Entity, error) {
	var doc models.RemoteDocument
	if err := s.read(ctx, s.objectKey(kind, id), &doc); err != nil {
		return nil, err
	}
	return models.DecodeDocument(doc)
}

func (s *Store) put(ctx context.Context, e *models.Entity) error {
	return s.write(ctx, s.objectKey(e.Kind, e.UUID), models.EncodeDocument(e))
}

func (s *Store) listKind(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	keys, err := s.listKeys(ctx, s.kindPrefix(kind), 0)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Entity, 0, len(keys))
	for _, key := range keys {
		var doc models.RemoteDocument
		if err := s.read(ctx, key, &doc); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return nil, err
		}
		e, err := models.DecodeDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Ping checks that the bucket answers a one-key listing.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.listKeys(ctx, s.prefix, 1)
	return err
}

// listKeys returns up to limit keys under prefix, all of them when limit is 0.
func (s *Store) listKeys(ctx context.Context, prefix string, limit int) ([]string, error) {
	var keys []string
	var token *string
	for {
		in := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		}
		if limit > 0 {
			in.MaxKeys = aws.Int32(int32(limit))
		}
		out, err := s.api.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, mapError(err))
		}
		for _, o := range out.Contents {
			keys = append(keys, aws.ToString(o.Key))
		}
		if limit > 0 && len(keys) >= limit {
			return keys[:limit], nil
		}
		if !aws.ToBool(out.IsTruncated) {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

func (s *Store) read(ctx context.Context, key string, v any) error {
	_, err := s.readTagged(ctx, key, v)
	return err
}

// readTagged decodes the object under key into v and returns its ETag.
func (s *Store) readTagged(ctx context.Context, key string, v any) (*string, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, mapError(err))
	}
	defer out.Body.Close()

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out.ETag, nil
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	return s.writeIf(ctx, key, v, nil)
}

// writeIf stores v under key. A non-nil ifMatch makes the put conditional
// on the object still carrying that ETag.
func (s *Store) writeIf(ctx context.Context, key string, v any, ifMatch *string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(snappy.Encode(nil, raw)),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("snappy"),
		IfMatch:         ifMatch,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, mapError(err))
	}
	return nil
}

func mapError(err error) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return common.ErrNotFound
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return common.ErrNotFound
	}
	var nb *s3types.NoSuchBucket
	if errors.As(err, &nb) {
		return fmt.Errorf("%w: %s", common.ErrUnavailable, nb.Error())
	}
	return err
}

// isPreconditionFailed reports a conditional put that lost to another writer.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
