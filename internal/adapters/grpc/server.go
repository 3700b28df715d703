package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/domain"
)

const serviceName = "inspection.auth.v1.AuthInternalService"

// AuthInternalService is the internal surface used by sibling backend modules.
type AuthInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeactivateAccount(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

type AuthInternalServer struct {
	service *application.Service
}

func NewAuthInternalServer(service *application.Service) *AuthInternalServer {
	return &AuthInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc AuthInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AuthInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler: unaryHandler("ValidateToken", func(ctx context.Context, req *structpb.Struct) (any, error) {
					return svc.ValidateToken(ctx, req)
				}),
			},
			{
				MethodName: "DeactivateAccount",
				Handler: unaryHandler("DeactivateAccount", func(ctx context.Context, req *structpb.Struct) (any, error) {
					return svc.DeactivateAccount(ctx, req)
				}),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "inspection/auth/v1/auth_internal.proto",
	}, svc)
}

// ValidateToken verifies an access token for callers that do not hold the secret.
func (s *AuthInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	claims, err := s.service.AuthenticateAccessToken(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	roles := make([]any, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		roles = append(roles, r)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"valid":      true,
		"account_id": claims.Subject.String(),
		"username":   claims.Username,
		"roles":      roles,
		"expires_at": claims.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// DeactivateAccount disables an account and revokes its sessions.
func (s *AuthInternalServer) DeactivateAccount(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	accountID, err := uuid.Parse(stringField(req, "account_id"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid account_id")
	}

	if err := s.service.DeactivateAccount(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "account not found")
		}
		slog.Default().ErrorContext(ctx, "deactivate account failed",
			"service", "inspection-auth-service",
			"module", "grpc",
			"layer", "adapter",
			"operation", "deactivate_account",
			"outcome", "failure",
			"account_id", accountID,
			"error", err,
		)
		return nil, status.Error(codes.Internal, "deactivate account failed")
	}
	return &emptypb.Empty{}, nil
}

func stringField(req *structpb.Struct, name string) string {
	v := req.GetFields()[name]
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

func unaryHandler(method string, call func(context.Context, *structpb.Struct) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
