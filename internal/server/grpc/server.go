// Package grpcserver exposes the push API over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/and161185/goph-push/internal/api/pushv1"
	"github.com/and161185/goph-push/internal/convert"
	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/service"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PublicMethods need no access token.
var PublicMethods = []string{pushv1.FullMethodGetVapidPublicKey}

// Server wires services into gRPC handlers. Every non-public method expects
// AuthUnary to have put the caller in the context.
type Server struct {
	pushv1.UnimplementedPushServiceServer
	subs     service.SubscriptionService
	dispatch service.DispatchService
	tokens   service.TokenService
	vapidKey string
}

// New constructs the API server. vapidPublicKey is the base64url
// applicationServerKey handed to browsers.
func New(subs service.SubscriptionService, dispatch service.DispatchService, tokens service.TokenService, vapidPublicKey string) *Server {
	return &Server{subs: subs, dispatch: dispatch, tokens: tokens, vapidKey: vapidPublicKey}
}

// GetVapidPublicKey returns the application server key.
func (s *Server) GetVapidPublicKey(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.vapidKey), nil
}

// --- Member ---

// Subscribe stores a browser subscription for the caller.
func (s *Server) Subscribe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := member(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStructSubscription(req)
	if err != nil {
		return nil, toStatus("subscribe", err)
	}
	sub, err := s.subs.Subscribe(ctx, c.MemberID, in.Endpoint, in.P256dh, in.Auth)
	if err != nil {
		return nil, toStatus("subscribe", err)
	}
	out, err := convert.ToStructSubscription(sub)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "subscribe: %v", err)
	}
	return out, nil
}

// Unsubscribe removes the caller's subscription for an endpoint.
func (s *Server) Unsubscribe(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	c, err := member(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := req.GetFields()["endpoint"].GetStringValue()
	if endpoint == "" {
		return nil, status.Error(codes.InvalidArgument, "empty endpoint")
	}
	if err := s.subs.Unsubscribe(ctx, c.MemberID, endpoint); err != nil {
		return nil, toStatus("unsubscribe", err)
	}
	return &emptypb.Empty{}, nil
}

// ListSubscriptions returns the caller's subscriptions.
func (s *Server) ListSubscriptions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	c, err := member(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.List(ctx, c.MemberID)
	if err != nil {
		return nil, toStatus("list", err)
	}
	out, err := convert.ToStructSubscriptions(subs)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list: %v", err)
	}
	return out, nil
}

// --- Admin ---

// NotifyMember pushes a payload to one member's subscriptions.
func (s *Server) NotifyMember(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := admin(ctx); err != nil {
		return nil, err
	}
	id, err := convert.MemberID(req)
	if err != nil {
		return nil, toStatus("notify", err)
	}
	payload, err := convert.FromStructPayload(req)
	if err != nil {
		return nil, toStatus("notify", err)
	}
	sum, err := s.dispatch.NotifyMember(ctx, id, payload)
	if err != nil {
		return nil, toStatus("notify", err)
	}
	return convert.ToStructSummary(sum), nil
}

// Broadcast pushes a payload to every subscription.
func (s *Server) Broadcast(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := admin(ctx); err != nil {
		return nil, err
	}
	payload, err := convert.FromStructPayload(req)
	if err != nil {
		return nil, toStatus("broadcast", err)
	}
	sum, err := s.dispatch.Broadcast(ctx, payload)
	if err != nil {
		return nil, toStatus("broadcast", err)
	}
	return convert.ToStructSummary(sum), nil
}

// IssueToken mints an access token for a member.
func (s *Server) IssueToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := admin(ctx); err != nil {
		return nil, err
	}
	id, err := convert.MemberID(req)
	if err != nil {
		return nil, toStatus("issue token", err)
	}
	tok, err := s.tokens.Issue(id, req.GetFields()["admin"].GetBoolValue())
	if err != nil {
		return nil, toStatus("issue token", err)
	}
	return convert.ToStructTokens(tok), nil
}

// --- helpers ---

func member(ctx context.Context) (service.Caller, error) {
	c, ok := CallerFromCtx(ctx)
	if !ok || c.MemberID == uuid.Nil {
		return service.Caller{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return c, nil
}

func admin(ctx context.Context) error {
	c, err := member(ctx)
	if err != nil {
		return err
	}
	if !c.Admin {
		return status.Error(codes.PermissionDenied, "admin only")
	}
	return nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrInvalidSubscription),
		errors.Is(err, errs.ErrPayloadTooLarge):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: not found", op)
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Errorf(codes.AlreadyExists, "%s: %v", op, err)
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Errorf(codes.Unauthenticated, "%s: unauthorized", op)
	case errors.Is(err, errs.ErrForbidden):
		return status.Errorf(codes.PermissionDenied, "%s: forbidden", op)
	case errors.Is(err, errs.ErrRateLimited):
		return status.Errorf(codes.ResourceExhausted, "%s: %v", op, err)
	case errors.Is(err, errs.ErrInvalidVapidKeys):
		return status.Errorf(codes.FailedPrecondition, "%s: server push identity is misconfigured", op)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: %v", op, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
