package grpcserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/and161185/goph-push/internal/api/pushv1"
	"github.com/and161185/goph-push/internal/convert"
	"github.com/and161185/goph-push/internal/errs"
	"github.com/and161185/goph-push/internal/model"
	"github.com/and161185/goph-push/internal/service"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeSubs struct {
	mu   sync.Mutex
	subs map[string]model.PushSubscription
}

func (f *fakeSubs) Subscribe(_ context.Context, memberID uuid.UUID, endpoint, p256dh, auth string) (model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p256dh == "bad" {
		return model.PushSubscription{}, errs.ErrInvalidSubscription
	}
	s := model.PushSubscription{ID: uuid.Must(uuid.NewV4()), MemberID: memberID, Endpoint: endpoint, P256dh: p256dh, Auth: auth}
	f.subs[endpoint] = s
	return s, nil
}

func (f *fakeSubs) Unsubscribe(_ context.Context, memberID uuid.UUID, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[endpoint]
	if !ok || s.MemberID != memberID {
		return errs.ErrNotFound
	}
	delete(f.subs, endpoint)
	return nil
}

func (f *fakeSubs) List(_ context.Context, memberID uuid.UUID) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PushSubscription
	for _, s := range f.subs {
		if s.MemberID == memberID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeDispatch struct {
	mu          sync.Mutex
	lastMember  uuid.UUID
	lastPayload string
	err         error
}

func (f *fakeDispatch) SendToAll(context.Context, []model.PushSubscription, model.NotificationPayload, model.VapidKeyPair) (model.DispatchSummary, error) {
	return model.DispatchSummary{}, nil
}

func (f *fakeDispatch) Broadcast(_ context.Context, p model.NotificationPayload) (model.DispatchSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPayload = string(p)
	return model.DispatchSummary{Sent: 3, Removed: 1}, f.err
}

func (f *fakeDispatch) NotifyMember(_ context.Context, id uuid.UUID, p model.NotificationPayload) (model.DispatchSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.DispatchSummary{}, f.err
	}
	f.lastMember, f.lastPayload = id, string(p)
	return model.DispatchSummary{Sent: 1}, nil
}

const bufSize = 1 << 20

type env struct {
	cl       pushv1.PushServiceClient
	tokens   *service.TokenIssuer
	dispatch *fakeDispatch
}

func startBufGRPC(t *testing.T) env {
	t.Helper()
	tokens := service.NewTokenIssuer([]byte("test-secret"), time.Hour)
	disp := &fakeDispatch{}
	srv := New(&fakeSubs{subs: map[string]model.PushSubscription{}}, disp, tokens, "BPUBKEY")

	lis := bufconn.Listen(bufSize)
	log := zaptest.NewLogger(t)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(tokens, PublicMethods...),
	))
	pushv1.RegisterPushServiceServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return env{cl: pushv1.NewPushServiceClient(cc), tokens: tokens, dispatch: disp}
}

func (e env) as(t *testing.T, member uuid.UUID, admin bool) context.Context {
	t.Helper()
	tok, err := e.tokens.Issue(member, admin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok.AccessToken)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestServer_PublicKeyNeedsNoAuth(t *testing.T) {
	t.Parallel()

	e := startBufGRPC(t)
	k, err := e.cl.GetVapidPublicKey(context.Background(), &emptypb.Empty{})
	if err != nil || k.GetValue() != "BPUBKEY" {
		t.Fatalf("GetVapidPublicKey = %v, %v", k, err)
	}
}

func TestServer_MemberFlow(t *testing.T) {
	t.Parallel()

	e := startBufGRPC(t)
	alice := uuid.Must(uuid.NewV4())
	ctx := e.as(t, alice, false)

	if _, err := e.cl.ListSubscriptions(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous list: want Unauthenticated, got %v", err)
	}

	sub, err := e.cl.Subscribe(ctx, mustStruct(t, map[string]any{
		"endpoint": "https://push.example/ep1",
		"keys":     map[string]any{"p256dh": "P", "auth": "A"},
	}))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.GetFields()["member_id"].GetStringValue() != alice.String() {
		t.Fatalf("subscription owner=%v", sub.GetFields()["member_id"])
	}

	_, err = e.cl.Subscribe(ctx, mustStruct(t, map[string]any{"endpoint": "https://push.example/ep2", "p256dh": "bad", "auth": "A"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad keys: want InvalidArgument, got %v", err)
	}
	_, err = e.cl.Subscribe(ctx, mustStruct(t, map[string]any{"endpoint": "https://push.example/ep2"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing keys: want InvalidArgument, got %v", err)
	}

	list, err := e.cl.ListSubscriptions(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	subs, err := convert.FromStructSubscriptions(list)
	if err != nil || len(subs) != 1 || subs[0].Endpoint != "https://push.example/ep1" {
		t.Fatalf("list = %+v, %v", subs, err)
	}

	bob := e.as(t, uuid.Must(uuid.NewV4()), false)
	if _, err := e.cl.Unsubscribe(bob, mustStruct(t, map[string]any{"endpoint": "https://push.example/ep1"})); status.Code(err) != codes.NotFound {
		t.Fatalf("foreign unsubscribe: want NotFound, got %v", err)
	}
	if _, err := e.cl.Unsubscribe(ctx, mustStruct(t, map[string]any{"endpoint": "https://push.example/ep1"})); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, err := e.cl.Unsubscribe(ctx, &structpb.Struct{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty endpoint: want InvalidArgument, got %v", err)
	}
}

func TestServer_AdminOperations(t *testing.T) {
	t.Parallel()

	e := startBufGRPC(t)
	target := uuid.Must(uuid.NewV4())
	req, err := convert.ToStructPayload(model.NotificationPayload(`{"title":"T"}`), map[string]any{"member_id": target.String()})
	if err != nil {
		t.Fatalf("ToStructPayload: %v", err)
	}

	memberCtx := e.as(t, uuid.Must(uuid.NewV4()), false)
	for name, call := range map[string]func() error{
		"notify":    func() error { _, err := e.cl.NotifyMember(memberCtx, req); return err },
		"broadcast": func() error { _, err := e.cl.Broadcast(memberCtx, req); return err },
		"token":     func() error { _, err := e.cl.IssueToken(memberCtx, req); return err },
	} {
		if status.Code(call()) != codes.PermissionDenied {
			t.Fatalf("%s by member: want PermissionDenied", name)
		}
	}

	adminCtx := e.as(t, uuid.Must(uuid.NewV4()), true)
	out, err := e.cl.NotifyMember(adminCtx, req)
	if err != nil {
		t.Fatalf("NotifyMember: %v", err)
	}
	if convert.FromStructSummary(out) != (model.DispatchSummary{Sent: 1}) {
		t.Fatalf("summary=%v", out)
	}
	e.dispatch.mu.Lock()
	if e.dispatch.lastMember != target || e.dispatch.lastPayload != `{"title":"T"}` {
		t.Fatalf("dispatch got member=%s payload=%s", e.dispatch.lastMember, e.dispatch.lastPayload)
	}
	e.dispatch.mu.Unlock()

	out, err = e.cl.Broadcast(adminCtx, req)
	if err != nil || convert.FromStructSummary(out) != (model.DispatchSummary{Sent: 3, Removed: 1}) {
		t.Fatalf("Broadcast = %v, %v", out, err)
	}

	tokReq := mustStruct(t, map[string]any{"member_id": target.String(), "admin": false})
	tokOut, err := e.cl.IssueToken(adminCtx, tokReq)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	tok, err := convert.FromStructTokens(tokOut)
	if err != nil {
		t.Fatalf("FromStructTokens: %v", err)
	}
	caller, err := e.tokens.Verify(tok.AccessToken)
	if err != nil || caller.MemberID != target || caller.Admin {
		t.Fatalf("issued token caller=%+v err=%v", caller, err)
	}

	if _, err := e.cl.NotifyMember(adminCtx, mustStruct(t, map[string]any{"member_id": "x", "payload": map[string]any{}})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad member id: want InvalidArgument, got %v", err)
	}
}

func TestServer_DispatchErrorsMapped(t *testing.T) {
	t.Parallel()

	e := startBufGRPC(t)
	adminCtx := e.as(t, uuid.Must(uuid.NewV4()), true)
	req, _ := convert.ToStructPayload(model.NotificationPayload(`{}`), map[string]any{"member_id": uuid.Must(uuid.NewV4()).String()})

	cases := []struct {
		err  error
		want codes.Code
	}{
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{errs.ErrInvalidVapidKeys, codes.FailedPrecondition},
		{errs.ErrPayloadTooLarge, codes.InvalidArgument},
	}
	for _, tc := range cases {
		e.dispatch.mu.Lock()
		e.dispatch.err = tc.err
		e.dispatch.mu.Unlock()
		if _, err := e.cl.NotifyMember(adminCtx, req); status.Code(err) != tc.want {
			t.Fatalf("%v: got %v, want %v", tc.err, status.Code(err), tc.want)
		}
	}
}
