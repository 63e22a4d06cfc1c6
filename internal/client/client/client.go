package client

import (
	"context"

	"github.com/dmitrijs2005/caresync/internal/sync/clockstore"
	"github.com/dmitrijs2005/caresync/internal/sync/engine"
)

// Client is a remote the sync engine can run rounds against.
type Client interface {
	engine.RemoteStore
	clockstore.Documents
	Ping(ctx context.Context) error
	Close() error
}

// Store is a remote without a connection of its own to close, such as
// the in-process and S3 stores.
type Store interface {
	engine.RemoteStore
	clockstore.Documents
	Ping(ctx context.Context) error
}

// WithoutClose adapts s to Client with a no-op Close.
func WithoutClose(s Store) Client {
	return nopCloser{s}
}

type nopCloser struct {
	Store
}

func (nopCloser) Close() error { return nil }
