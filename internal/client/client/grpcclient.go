package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	pb "github.com/dmitrijs2005/caresync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultCallTimeout = 15 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.ObjectStoreClient
	accessToken string
	callTimeout time.Duration
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" && method != pb.MethodPing {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects to a caresync server. The token is sent with every
// call but Ping.
func NewGRPCClient(endpointURL, accessToken string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, callTimeout: defaultCallTimeout}
	conn, err := grpc.NewClient(c.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewObjectStoreClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, fn func(context.Context) (*structpb.Struct, error)) (*structpb.Struct, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	resp, err := fn(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return s.client.Ping(ctx, &structpb.Struct{})
	})
	if err != nil {
		return err
	}
	if resp.GetFields()[pb.FieldStatus].GetStringValue() != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Query(ctx context.Context, q models.Query) ([]*models.Entity, error) {
	req, err := pb.QueryStruct(q)
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return s.client.Query(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return pb.EntitiesFrom(resp)
}

func (s *GRPCClient) Save(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	return s.writeEntity(ctx, e, s.client.Save)
}

func (s *GRPCClient) Update(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	return s.writeEntity(ctx, e, s.client.Update)
}

func (s *GRPCClient) Tombstone(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	return s.writeEntity(ctx, e, s.client.Tombstone)
}

func (s *GRPCClient) Delete(ctx context.Context, e *models.Entity) error {
	req, err := pb.EntityStruct(e)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return s.client.Delete(ctx, req)
	})
	return err
}

func (s *GRPCClient) LinkVersion(ctx context.Context, kind models.Kind, previousUUID, nextUUID string) error {
	req, err := pb.LinkStruct(kind, previousUUID, nextUUID)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return s.client.LinkVersion(ctx, req)
	})
	return err
}

type unaryMethod func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (s *GRPCClient) writeEntity(ctx context.Context, e *models.Entity, method unaryMethod) (*models.Entity, error) {
	req, err := pb.EntityStruct(e)
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return method(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return pb.EntityFrom(resp)
}

func (s *GRPCClient) LoadVector(ctx context.Context, identity string) (models.KnowledgeVector, error) {
	req, err := pb.ToStruct(map[string]any{pb.FieldIdentity: identity})
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return s.client.LoadVector(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return pb.VectorFrom(resp)
}

func (s *GRPCClient) AdvanceVector(ctx context.Context, identity, processID string, value int64) (models.KnowledgeVector, error) {
	req, err := pb.ToStruct(map[string]any{
		pb.FieldIdentity:  identity,
		pb.FieldProcessID: processID,
		pb.FieldValue:     pb.FormatClock(value),
	})
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, func(ctx context.Context) (*structpb.Struct, error) {
		return s.client.AdvanceVector(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return pb.VectorFrom(resp)
}

func (s *GRPCClient) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrNotFound)
	case codes.FailedPrecondition:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrSchemaMissing)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrUUIDConflict)
	case codes.Aborted:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrBrokenChain)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrInvalidEntity)
	default:
		return fmt.Errorf("rpc error: %s", st.Message())
	}
}

var _ Client = (*GRPCClient)(nil)
