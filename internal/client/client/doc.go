// Package client contains the client-side building blocks of caresync.
//
// # Overview
//
// The package provides:
//  1. The Client contract: a remote object store and knowledge-vector
//     document store the sync engine can run rounds against, plus Ping.
//  2. GRPCClient, the implementation over the caresync.v1.ObjectStore gRPC
//     service. It injects the access token through an interceptor and maps
//     gRPC status codes to the sentinel errors of internal/common.
//     WithoutClose adapts connectionless stores (memstore, s3store).
//  3. Local persistence bootstrap (OpenDatabase, RunMigrations,
//     NewRepositories) wiring the SQLite database and its embedded goose
//     migrations.
//
// # Error Handling
//
// Remote failures surface as common.ErrUnavailable, common.ErrUnauthorized,
// common.ErrNotFound, common.ErrSchemaMissing, common.ErrUUIDConflict or
// common.ErrInvalidEntity and can be matched with errors.Is.
package client
