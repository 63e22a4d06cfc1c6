package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/client/client"
	"github.com/dmitrijs2005/caresync/internal/client/config"
	"github.com/dmitrijs2005/caresync/internal/lease"
	"github.com/dmitrijs2005/caresync/internal/remote/memstore"
	"github.com/dmitrijs2005/caresync/internal/remote/s3store"
	"github.com/dmitrijs2005/caresync/internal/sync/kinds"
)

// Constructors swapped out in tests.
var (
	newGRPCClient = func(addr, token string) (client.Client, error) {
		return client.NewGRPCClient(addr, token)
	}
	newS3API = func(ctx context.Context, cfg s3store.Config) (s3store.API, error) {
		return s3store.NewClient(ctx, cfg)
	}
)

// newRemote connects the configured backend.
func newRemote(ctx context.Context, cfg *config.Config, registry *kinds.Registry) (client.Client, error) {
	switch cfg.Backend {
	case config.BackendGRPC:
		return newGRPCClient(cfg.ServerEndpointAddr, cfg.AccessToken)
	case config.BackendS3:
		api, err := newS3API(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return client.WithoutClose(s3store.New(api, cfg.S3.Bucket, cfg.S3.Prefix, registry)), nil
	case config.BackendMemory:
		return client.WithoutClose(memstore.New(registry)), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// newLocker returns the round lease. Without a redis address rounds are only
// exclusive within this process.
func newLocker(addr string) (lease.Locker, io.Closer, error) {
	if addr == "" {
		return lease.NewLocal(), nil, nil
	}
	if !strings.Contains(addr, "://") {
		addr = "redis://" + addr
	}
	rc, err := lease.NewRedisClient(addr)
	if err != nil {
		return nil, nil, err
	}
	return lease.NewRedis(rc, lease.DefaultRedisTTL), rc, nil
}
