package devserver

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SueMuBai/nebula/internal/api"
	"github.com/SueMuBai/nebula/internal/transport"
	"github.com/SueMuBai/nebula/internal/wire"
)

type testEnv struct {
	ts     *httptest.Server
	tokenA string
	tokenB string
	idA    int64
	idB    int64
	apiA   *api.Client
	apiB   *api.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := New()
	ts := httptest.NewServer(srv.Router("*"))
	t.Cleanup(ts.Close)

	env := &testEnv{ts: ts}
	env.apiA = api.New(ts.URL+"/api", func() string { return env.tokenA })
	env.apiB = api.New(ts.URL+"/api", func() string { return env.tokenB })

	ctx := context.Background()
	if err := env.apiA.Register(ctx, "13800000001", "secret", "alice"); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if err := env.apiB.Register(ctx, "13800000002", "secret", "bob"); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	token, user, err := env.apiA.Login(ctx, "13800000001", "secret")
	if err != nil {
		t.Fatalf("login alice: %v", err)
	}
	env.tokenA, env.idA = token, user.ID
	token, user, err = env.apiB.Login(ctx, "13800000002", "secret")
	if err != nil {
		t.Fatalf("login bob: %v", err)
	}
	env.tokenB, env.idB = token, user.ID
	return env
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/chat"
}

func (e *testEnv) connect(t *testing.T, token string) (*transport.Channel, chan wire.Frame) {
	t.Helper()
	frames := make(chan wire.Frame, 16)
	c := transport.NewChannel(transport.Options{URL: e.wsURL()})
	c.OnFrame(func(f wire.Frame) { frames <- f })
	c.SetToken(token)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c, frames
}

func waitFrame(t *testing.T, ch chan wire.Frame, want wire.Type) wire.Frame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-ch:
			if f.Type == want {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame arrived", want)
		}
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := api.New(env.ts.URL+"/api", nil).Login(context.Background(), "13800000001", "wrong")
	var remote *api.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
}

func TestProtectedEndpointRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := api.New(env.ts.URL+"/api", nil).RecentChats(context.Background())
	if err == nil {
		t.Fatal("expected rejection without token")
	}
}

func TestMessageDeliveryEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	chanA, framesA := env.connect(t, env.tokenA)
	_, framesB := env.connect(t, env.tokenB)

	err := chanA.Send(wire.Frame{
		Type:      wire.TypeText,
		MessageID: "m1",
		To:        env.idB,
		Content:   "hello bob",
		ChatType:  wire.ChatPrivate,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	got := waitFrame(t, framesB, wire.TypeText)
	if got.From != env.idA || got.Content != "hello bob" || got.MessageID != "m1" {
		t.Errorf("delivered frame = %+v", got)
	}
	if got.Timestamp == 0 {
		t.Error("server must stamp forwarded frames")
	}

	conf := waitFrame(t, framesA, wire.TypeDeliveryConfirmation)
	if conf.MessageID != "m1" || !conf.Delivered() {
		t.Errorf("confirmation = %+v", conf)
	}
}

func TestUnknownFrameTypeAnsweredWithError(t *testing.T) {
	env := newTestEnv(t)
	chanA, framesA := env.connect(t, env.tokenA)

	if err := chanA.Send(wire.Frame{Type: "presence", To: env.idB}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := waitFrame(t, framesA, wire.TypeError)
	if got.Message == "" {
		t.Error("error frame must carry a message")
	}
}

func TestWSRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL()+"?token=bogus", nil)
	if err != nil {
		// Some dial errors are acceptable too; the point is no session.
		return
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to close an unauthenticated connection")
	}
}

func TestHistoryAndReadReceipts(t *testing.T) {
	env := newTestEnv(t)
	chanA, framesA := env.connect(t, env.tokenA)

	for i, content := range []string{"one", "two"} {
		err := chanA.Send(wire.Frame{
			Type:      wire.TypeText,
			MessageID: []string{"m1", "m2"}[i],
			To:        env.idB,
			Content:   content,
			ChatType:  wire.ChatPrivate,
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		waitFrame(t, framesA, wire.TypeDeliveryConfirmation)
	}

	ctx := context.Background()
	msgs, err := env.apiB.History(ctx, env.idA, 50, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history rows = %d, want 2", len(msgs))
	}

	sums, err := env.apiB.RecentChats(ctx)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(sums) != 1 || sums[0].ContactID != env.idA || sums[0].Unread != 2 {
		t.Fatalf("recent = %+v", sums)
	}

	if err := env.apiB.MarkRead(ctx, env.idA); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	sums, _ = env.apiB.RecentChats(ctx)
	if sums[0].Unread != 0 {
		t.Errorf("unread after read receipt = %d", sums[0].Unread)
	}
}

func TestMatchHandshakeOverREST(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	candidate, err := env.apiA.RequestMatch(ctx)
	if err != nil {
		t.Fatalf("request match: %v", err)
	}
	if candidate == nil || candidate.ID != env.idB {
		t.Fatalf("candidate = %+v, want bob", candidate)
	}

	pending, err := env.apiA.ConfirmMatch(ctx, env.idB)
	if err != nil {
		t.Fatalf("confirm a: %v", err)
	}
	if !pending {
		t.Fatal("single-sided confirmation must be pending")
	}

	pending, err = env.apiB.ConfirmMatch(ctx, env.idA)
	if err != nil {
		t.Fatalf("confirm b: %v", err)
	}
	if pending {
		t.Fatal("second confirmation must complete the handshake")
	}

	now := time.Now()
	active, err := env.apiA.ActiveMatches(ctx, now)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].UserID != env.idB {
		t.Fatalf("active = %+v", active)
	}
	left := active[0].ExpiresAt.Sub(now)
	if left <= 23*time.Hour || left > 24*time.Hour {
		t.Errorf("time left = %v, want close to 24h", left)
	}

	if err := env.apiA.ExtendMatch(ctx, env.idB); err != nil {
		t.Errorf("extend: %v", err)
	}
}

func TestFriendRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.apiA.SendFriendRequest(ctx, env.idB); err != nil {
		t.Fatalf("request: %v", err)
	}
	reqs, err := env.apiB.FriendRequests(ctx)
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	if len(reqs) != 1 || reqs[0].FromUserID != env.idA {
		t.Fatalf("requests = %+v", reqs)
	}

	if err := env.apiB.ApproveFriendRequest(ctx, env.idA, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	friends, err := env.apiA.Friends(ctx)
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	if len(friends) != 1 || friends[0].ID != env.idB {
		t.Fatalf("friends = %+v", friends)
	}
}
