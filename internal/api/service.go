// Package api implements the daemon's control service. Requests and
// responses are google.protobuf.Struct messages, so the service is
// registered from a hand-written descriptor rather than generated stubs.
package api

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/messenger"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "msgr.v1.Control"

// Method names.
const (
	MethodStatus              = "Status"
	MethodSnapshot            = "Snapshot"
	MethodMessages            = "Messages"
	MethodOpenChat            = "OpenChat"
	MethodCloseChat           = "CloseChat"
	MethodSendMessage         = "SendMessage"
	MethodRetryMessage        = "RetryMessage"
	MethodDiscardMessage      = "DiscardMessage"
	MethodSetTyping           = "SetTyping"
	MethodStartChat           = "StartChat"
	MethodCreateGroup         = "CreateGroup"
	MethodSendFriendRequest   = "SendFriendRequest"
	MethodListFriendRequests  = "ListFriendRequests"
	MethodAcceptFriendRequest = "AcceptFriendRequest"
	MethodRejectFriendRequest = "RejectFriendRequest"
	MethodUnfriend            = "Unfriend"
	MethodSetRealtime         = "SetRealtime"
	MethodRefresh             = "Refresh"
	MethodSearch              = "Search"
	MethodWatch               = "Watch"
)

// FullMethod returns the gRPC path of a method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Service is the control service of one session daemon.
type Service struct {
	sessionName string
	startedAt   time.Time
	m           *messenger.Messenger
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewService creates the control service.
func NewService(sessionName string, m *messenger.Messenger, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessionName: sessionName,
		startedAt:   time.Now(),
		m:           m,
		bus:         b,
		logger:      logger,
	}
}

// Register adds the service to a gRPC server.
func Register(s *grpc.Server, svc *Service) {
	s.RegisterService(&serviceDesc, svc)
}

type handlerFunc func(s *Service, ctx context.Context, req *structpb.Struct) (any, error)

func unary(name string, fn handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				out, err := fn(srv.(*Service), ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, toStatus(err)
				}
				return Encode(out)
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, call)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStatus, (*Service).status),
		unary(MethodSnapshot, (*Service).snapshot),
		unary(MethodMessages, (*Service).messages),
		unary(MethodOpenChat, (*Service).openChat),
		unary(MethodCloseChat, (*Service).closeChat),
		unary(MethodSendMessage, (*Service).sendMessage),
		unary(MethodRetryMessage, (*Service).retryMessage),
		unary(MethodDiscardMessage, (*Service).discardMessage),
		unary(MethodSetTyping, (*Service).setTyping),
		unary(MethodStartChat, (*Service).startChat),
		unary(MethodCreateGroup, (*Service).createGroup),
		unary(MethodSendFriendRequest, (*Service).sendFriendRequest),
		unary(MethodListFriendRequests, (*Service).listFriendRequests),
		unary(MethodAcceptFriendRequest, (*Service).acceptFriendRequest),
		unary(MethodRejectFriendRequest, (*Service).rejectFriendRequest),
		unary(MethodUnfriend, (*Service).unfriend),
		unary(MethodSetRealtime, (*Service).setRealtime),
		unary(MethodRefresh, (*Service).refresh),
		unary(MethodSearch, (*Service).search),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatch,
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "msgr/v1/control",
}
