package grpcx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/security"
	"github.com/cwrk-planet/messenger/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName             = "messenger.v1.Messenger"
	FullMethodUnreadSummary = "/" + ServiceName + "/UnreadSummary"

	mdAuthorization = "authorization"
)

// MessengerServer — внутренний API для соседних сервисов (бейджи непрочитанного).
type MessengerServer interface {
	UnreadSummary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

type UnreadSvc interface {
	UnreadSummary(ctx context.Context, me domain.Party) ([]service.UnreadItem, error)
}

type Server struct {
	auth     Authenticator
	messages UnreadSvc
}

func NewServer(auth Authenticator, messages UnreadSvc) *Server {
	return &Server{auth: auth, messages: messages}
}

// NewGRPCServer собирает grpc.Server с интерсепторами, health и Messenger.
func NewGRPCServer(s *Server, guard time.Duration) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(guard)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	Register(gs, s)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return gs, hs
}

func Register(gs grpc.ServiceRegistrar, s MessengerServer) {
	gs.RegisterService(&messengerServiceDesc, s)
}

var messengerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessengerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UnreadSummary", Handler: unreadSummaryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "messenger/v1/messenger.proto",
}

func unreadSummaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessengerServer).UnreadSummary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodUnreadSummary}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MessengerServer).UnreadSummary(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// -------- helpers --------

func (s *Server) principalFromMD(ctx context.Context) (domain.Principal, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Principal{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	// authorization: Bearer <access_token>
	auth := first(md.Get(mdAuthorization))
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") || len(auth) <= 7 {
		return domain.Principal{}, status.Error(codes.Unauthenticated, "missing authorization")
	}

	p, err := s.auth.Authenticate(ctx, strings.TrimSpace(auth[7:]))
	if err != nil {
		return domain.Principal{}, mapErr(err)
	}
	return p, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}

	return ss[0]
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, security.ErrInvalidToken),
		errors.Is(err, security.ErrTokenExpired),
		errors.Is(err, security.ErrInvalidSubject),
		errors.Is(err, domain.ErrSessionRevoked),
		errors.Is(err, domain.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrNotParticipant), errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrContractNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrInvalidRole):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// -------- methods --------

// UnreadSummary: вход пустой, сторона берётся из токена.
// Ответ: {"party": "client:1", "total": N, "items": [{"counterpart_id": .., "unread": ..}]}
func (s *Server) UnreadSummary(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principalFromMD(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.messages.UnreadSummary(ctx, p.Party)
	if err != nil {
		return nil, mapErr(err)
	}

	var total int64
	list := make([]any, 0, len(items))
	for _, it := range items {
		total += it.Unread
		list = append(list, map[string]any{
			"counterpart_id": float64(it.CounterpartID),
			"unread":         float64(it.Unread),
		})
	}

	out, err := structpb.NewStruct(map[string]any{
		"party": p.Party.String(),
		"total": float64(total),
		"items": list,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Client — тонкая обёртка для вызова Messenger без сгенерированного кода.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) UnreadSummary(ctx context.Context, token string) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, mdAuthorization, "Bearer "+token)
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethodUnreadSummary, &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return out, nil
}
