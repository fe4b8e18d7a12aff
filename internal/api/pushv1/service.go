// Package pushv1 describes the webpush.v1.PushService gRPC API.
//
// Requests and responses are protobuf well-known types, so the service needs
// no generated message code: subscription and summary records travel as
// google.protobuf.Struct.
package pushv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "webpush.v1.PushService"

// Full method names, as seen by interceptors.
const (
	FullMethodGetVapidPublicKey = "/" + ServiceName + "/GetVapidPublicKey"
	FullMethodSubscribe         = "/" + ServiceName + "/Subscribe"
	FullMethodUnsubscribe       = "/" + ServiceName + "/Unsubscribe"
	FullMethodListSubscriptions = "/" + ServiceName + "/ListSubscriptions"
	FullMethodNotifyMember      = "/" + ServiceName + "/NotifyMember"
	FullMethodBroadcast         = "/" + ServiceName + "/Broadcast"
	FullMethodIssueToken        = "/" + ServiceName + "/IssueToken"
)

// PushServiceServer is the server API.
type PushServiceServer interface {
	// GetVapidPublicKey returns the applicationServerKey browsers subscribe with.
	GetVapidPublicKey(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	// Subscribe stores {endpoint, p256dh, auth} (or {endpoint, keys:{p256dh, auth}}) for the caller.
	Subscribe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Unsubscribe removes {endpoint} for the caller.
	Unsubscribe(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// ListSubscriptions returns {subscriptions: [...]} for the caller.
	ListSubscriptions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// NotifyMember sends {payload} to {member_id}; admin only.
	NotifyMember(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Broadcast sends {payload} to every subscription; admin only.
	Broadcast(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// IssueToken mints an access token for {member_id, admin}; admin only.
	IssueToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPushServiceServer registers srv on s.
func RegisterPushServiceServer(s grpc.ServiceRegistrar, srv PushServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc for PushService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PushServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetVapidPublicKey", Handler: unaryHandler[emptypb.Empty](FullMethodGetVapidPublicKey, PushServiceServer.GetVapidPublicKey)},
		{MethodName: "Subscribe", Handler: unaryHandler[structpb.Struct](FullMethodSubscribe, PushServiceServer.Subscribe)},
		{MethodName: "Unsubscribe", Handler: unaryHandler[structpb.Struct](FullMethodUnsubscribe, PushServiceServer.Unsubscribe)},
		{MethodName: "ListSubscriptions", Handler: unaryHandler[emptypb.Empty](FullMethodListSubscriptions, PushServiceServer.ListSubscriptions)},
		{MethodName: "NotifyMember", Handler: unaryHandler[structpb.Struct](FullMethodNotifyMember, PushServiceServer.NotifyMember)},
		{MethodName: "Broadcast", Handler: unaryHandler[structpb.Struct](FullMethodBroadcast, PushServiceServer.Broadcast)},
		{MethodName: "IssueToken", Handler: unaryHandler[structpb.Struct](FullMethodIssueToken, PushServiceServer.IssueToken)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "webpush/v1/push.proto",
}

// unaryHandler adapts a typed server method to grpc.MethodHandler.
func unaryHandler[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](
	fullMethod string, call func(PushServiceServer, context.Context, PReq) (Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(PushServiceServer)
		if interceptor == nil {
			resp, err := call(s, ctx, in)
			return resp, err
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			resp, err := call(s, ctx, req.(PReq))
			return resp, err
		})
	}
}

// UnimplementedPushServiceServer can be embedded to satisfy PushServiceServer.
type UnimplementedPushServiceServer struct{}

var _ PushServiceServer = UnimplementedPushServiceServer{}

func (UnimplementedPushServiceServer) GetVapidPublicKey(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, errUnimplemented("GetVapidPublicKey")
}
func (UnimplementedPushServiceServer) Subscribe(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errUnimplemented("Subscribe")
}
func (UnimplementedPushServiceServer) Unsubscribe(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, errUnimplemented("Unsubscribe")
}
func (UnimplementedPushServiceServer) ListSubscriptions(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, errUnimplemented("ListSubscriptions")
}
func (UnimplementedPushServiceServer) NotifyMember(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errUnimplemented("NotifyMember")
}
func (UnimplementedPushServiceServer) Broadcast(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errUnimplemented("Broadcast")
}
func (UnimplementedPushServiceServer) IssueToken(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errUnimplemented("IssueToken")
}
