package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	pb "github.com/dmitrijs2005/caresync/internal/proto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ pb.ObjectStoreServer = (*GRPCServer)(nil)

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{pb.FieldStatus: "OK"})
}

func (s *GRPCServer) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := pb.QueryFrom(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	list, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, s.toStatus(ctx, "query", err)
	}
	return encoded(pb.EntitiesStruct(list))
}

func (s *GRPCServer) Save(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.write(ctx, "save", req, s.store.Save)
}

func (s *GRPCServer) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.write(ctx, "update", req, s.store.Update)
}

func (s *GRPCServer) Tombstone(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.write(ctx, "tombstone", req, s.store.Tombstone)
}

func (s *GRPCServer) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	e, err := pb.EntityFrom(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.store.Delete(ctx, e); err != nil {
		return nil, s.toStatus(ctx, "delete", err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) LinkVersion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, prev, next, err := pb.LinkFrom(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.store.LinkVersion(ctx, kind, prev, next); err != nil {
		return nil, s.toStatus(ctx, "link version", err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) LoadVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identity, err := s.authorizedIdentity(ctx, req)
	if err != nil {
		return nil, err
	}

	kv, err := s.store.LoadVector(ctx, identity)
	if err != nil {
		return nil, s.toStatus(ctx, "load vector", err)
	}
	return encoded(pb.VectorStruct(kv))
}

func (s *GRPCServer) AdvanceVector(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identity, err := s.authorizedIdentity(ctx, req)
	if err != nil {
		return nil, err
	}
	fields := req.GetFields()
	processID := fields[pb.FieldProcessID].GetStringValue()
	value, err := pb.ParseClock(fields[pb.FieldValue].AsInterface())
	if err != nil || processID == "" || value <= 0 {
		return nil, status.Error(codes.InvalidArgument, "process id and a positive value are required")
	}

	kv, err := s.store.AdvanceVector(ctx, identity, processID, value)
	if err != nil {
		return nil, s.toStatus(ctx, "advance vector", err)
	}
	s.logger.Debug(ctx, "vector advanced", "identity", identity, "process", processID, "value", value)
	return encoded(pb.VectorStruct(kv))
}

// authorizedIdentity returns the identity named in req, which must be the
// one the access token was issued for.
func (s *GRPCServer) authorizedIdentity(ctx context.Context, req *structpb.Struct) (string, error) {
	identity := req.GetFields()[pb.FieldIdentity].GetStringValue()
	if identity == "" {
		return "", status.Error(codes.InvalidArgument, "identity is required")
	}
	caller, ok := IdentityFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	if caller != identity {
		return "", status.Error(codes.PermissionDenied, "token does not grant this identity")
	}
	return identity, nil
}

type writeFn func(ctx context.Context, e *models.Entity) (*models.Entity, error)

func (s *GRPCServer) write(ctx context.Context, op string, req *structpb.Struct, fn writeFn) (*structpb.Struct, error) {
	e, err := pb.EntityFrom(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if e.Kind == "" {
		return nil, status.Error(codes.InvalidArgument, "entity kind is required")
	}

	stored, err := fn(ctx, e)
	if err != nil {
		return nil, s.toStatus(ctx, op, err)
	}
	return encoded(pb.EntityStruct(stored))
}

func encoded(msg *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

// toStatus maps store errors to the codes the client translates back into
// the same sentinels.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrSchemaMissing):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrUUIDConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrBrokenChain):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, common.ErrInvalidEntity), errors.Is(err, common.ErrUnknownKind):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "store failure", "op", op, "error", err)
	return status.Error(codes.Internal, "internal error")
}
