// Package grpc exposes the server's object store as the
// caresync.v1.ObjectStore gRPC service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	pb "github.com/dmitrijs2005/caresync/internal/proto"
	"google.golang.org/grpc"
)

// Store is the object store the service delegates to.
type Store interface {
	Query(ctx context.Context, q models.Query) ([]*models.Entity, error)
	Save(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Update(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Tombstone(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Delete(ctx context.Context, e *models.Entity) error
	LinkVersion(ctx context.Context, kind models.Kind, previousUUID, nextUUID string) error
	LoadVector(ctx context.Context, identity string) (models.KnowledgeVector, error)
	AdvanceVector(ctx context.Context, identity, processID string, value int64) (models.KnowledgeVector, error)
}

type GRPCServer struct {
	address   string
	store     Store
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, store Store, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		store:     store,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	// registers service
	pb.RegisterObjectStoreServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
