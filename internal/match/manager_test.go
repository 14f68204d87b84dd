package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SueMuBai/nebula/internal/model"
)

type fakePairing struct {
	candidate  *model.UserPublic
	requestErr error

	confirmPending bool
	confirmErr     error
	confirmed      []int64

	extendErr error
	extended  []int64

	active    []model.MatchSession
	activeErr error
}

func (f *fakePairing) RequestMatch(ctx context.Context) (*model.UserPublic, error) {
	return f.candidate, f.requestErr
}

func (f *fakePairing) ConfirmMatch(ctx context.Context, userID int64) (bool, error) {
	f.confirmed = append(f.confirmed, userID)
	return f.confirmPending, f.confirmErr
}

func (f *fakePairing) ExtendMatch(ctx context.Context, userID int64) error {
	f.extended = append(f.extended, userID)
	return f.extendErr
}

func (f *fakePairing) ActiveMatches(ctx context.Context, now time.Time) ([]model.MatchSession, error) {
	return f.active, f.activeErr
}

type fakeConversations struct {
	inited  []int64
	removed []int64
}

func (f *fakeConversations) InitConversation(conversationID int64, typ model.ConversationType) {
	f.inited = append(f.inited, conversationID)
}

func (f *fakeConversations) RemoveConversation(conversationID int64) {
	f.removed = append(f.removed, conversationID)
}

// testClock makes expiry a pure function of time we control.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(pairing *fakePairing) (*Manager, *fakeConversations, *testClock) {
	convs := &fakeConversations{}
	clock := &testClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	m := New(pairing, convs)
	m.now = clock.now
	return m, convs, clock
}

func TestRequestNoCandidateAvailable(t *testing.T) {
	m, _, _ := newTestManager(&fakePairing{})

	session, err := m.Request(context.Background())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if session != nil {
		t.Fatalf("expected no session, got %+v", session)
	}
}

func TestRequestStoresProposal(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9, Nickname: "sam"}}
	m, _, _ := newTestManager(pairing)

	session, err := m.Request(context.Background())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if session.Status != model.MatchProposed || session.UserID != 9 {
		t.Errorf("session = %+v", session)
	}

	got, ok := m.Session(9)
	if !ok || got.Status != model.MatchProposed {
		t.Errorf("stored session = %+v, ok=%v", got, ok)
	}
}

func TestConfirmWithoutProposal(t *testing.T) {
	m, _, _ := newTestManager(&fakePairing{})

	if _, err := m.Confirm(context.Background(), 9); !errors.Is(err, ErrNoProposal) {
		t.Fatalf("expected ErrNoProposal, got %v", err)
	}
}

func TestConfirmFirstSideIsPending(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}, confirmPending: true}
	m, convs, _ := newTestManager(pairing)
	m.Request(context.Background())

	session, err := m.Confirm(context.Background(), 9)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if session.Status != model.MatchPendingConfirmation {
		t.Errorf("status = %s, want pending_confirmation", session.Status)
	}
	if !session.Initiator {
		t.Error("first confirmer must be marked initiator")
	}
	if len(convs.inited) != 0 {
		t.Error("pending session must not init a conversation")
	}
}

func TestConfirmCompletingHandshakeActivates(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, convs, clock := newTestManager(pairing)
	m.Request(context.Background())

	session, err := m.Confirm(context.Background(), 9)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if session.Status != model.MatchActive {
		t.Fatalf("status = %s, want active", session.Status)
	}
	if want := clock.t.Add(SessionTTL); !session.ExpiresAt.Equal(want) {
		t.Errorf("expires at %v, want %v", session.ExpiresAt, want)
	}
	if len(convs.inited) != 1 || convs.inited[0] != 9 {
		t.Errorf("conversation init calls = %v", convs.inited)
	}

	active := m.Active()
	if len(active) != 1 || active[0].UserID != 9 {
		t.Errorf("active = %+v", active)
	}
}

func TestConfirmRejectionKeepsProposal(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}, confirmErr: errors.New("match expired")}
	m, _, _ := newTestManager(pairing)
	m.Request(context.Background())

	if _, err := m.Confirm(context.Background(), 9); err == nil {
		t.Fatal("expected error")
	}
	got, _ := m.Session(9)
	if got.Status != model.MatchProposed {
		t.Errorf("status after rejection = %s, want proposed", got.Status)
	}
}

func TestSessionExpiresLazily(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, convs, clock := newTestManager(pairing)
	m.Request(context.Background())
	m.Confirm(context.Background(), 9)

	// Still valid at the boundary instant.
	clock.advance(SessionTTL)
	if got, _ := m.Session(9); got.Status != model.MatchActive {
		t.Fatalf("status at TTL boundary = %s, want active", got.Status)
	}

	// One step past the boundary the session is expired and its
	// conversation leaves the active set.
	clock.advance(time.Millisecond)
	if got, _ := m.Session(9); got.Status != model.MatchExpired {
		t.Fatalf("status past TTL = %s, want expired", got.Status)
	}
	if len(convs.removed) != 1 || convs.removed[0] != 9 {
		t.Errorf("conversation removals = %v", convs.removed)
	}
	if active := m.Active(); len(active) != 0 {
		t.Errorf("active after expiry = %+v", active)
	}
}

func TestExpiredIsTerminal(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, convs, clock := newTestManager(pairing)
	m.Request(context.Background())
	m.Confirm(context.Background(), 9)
	clock.advance(SessionTTL + time.Millisecond)
	m.Active()

	// Observing again must not re-expire or touch conversations.
	m.Active()
	if got, _ := m.Session(9); got.Status != model.MatchExpired {
		t.Fatalf("status = %s", got.Status)
	}
	if len(convs.removed) != 1 {
		t.Errorf("conversation removed %d times, want 1", len(convs.removed))
	}
}

func TestExtendRenewsActiveWindow(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, _, clock := newTestManager(pairing)
	m.Request(context.Background())
	m.Confirm(context.Background(), 9)

	clock.advance(23 * time.Hour)
	if err := m.Extend(context.Background(), 9); err != nil {
		t.Fatalf("extend: %v", err)
	}
	got, _ := m.Session(9)
	if want := clock.t.Add(SessionTTL); !got.ExpiresAt.Equal(want) {
		t.Errorf("expires at %v, want %v (full window from extension)", got.ExpiresAt, want)
	}
	if len(pairing.extended) != 1 {
		t.Errorf("server extend calls = %d, want 1", len(pairing.extended))
	}
}

func TestExtendRejectedWhenExpired(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, _, clock := newTestManager(pairing)
	m.Request(context.Background())
	m.Confirm(context.Background(), 9)

	clock.advance(SessionTTL + time.Millisecond)
	if err := m.Extend(context.Background(), 9); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if len(pairing.extended) != 0 {
		t.Error("expired extension must not reach the server")
	}
}

func TestExtendRejectedWhenNotConfirmed(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, _, _ := newTestManager(pairing)
	m.Request(context.Background())

	if err := m.Extend(context.Background(), 9); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestActiveSortedBySoonestExpiry(t *testing.T) {
	m, _, clock := newTestManager(&fakePairing{})
	m.sessions[9] = &model.MatchSession{UserID: 9, Status: model.MatchActive, ExpiresAt: clock.t.Add(2 * time.Hour)}
	m.sessions[5] = &model.MatchSession{UserID: 5, Status: model.MatchActive, ExpiresAt: clock.t.Add(time.Hour)}

	active := m.Active()
	if len(active) != 2 || active[0].UserID != 5 || active[1].UserID != 9 {
		t.Fatalf("active order = %+v", active)
	}
}

func TestRefreshActivatesServerKnownSessions(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}, confirmPending: true}
	m, convs, clock := newTestManager(pairing)
	m.Request(context.Background())
	m.Confirm(context.Background(), 9)

	// The counterpart completed the handshake server-side.
	pairing.active = []model.MatchSession{
		{UserID: 9, Nickname: "sam", ExpiresAt: clock.t.Add(SessionTTL)},
	}
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	got, _ := m.Session(9)
	if got.Status != model.MatchActive || got.Nickname != "sam" {
		t.Errorf("session = %+v", got)
	}
	if len(convs.inited) != 1 {
		t.Errorf("conversation init calls = %v", convs.inited)
	}
}

func TestRefreshExpiresServerMissingSessions(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, convs, _ := newTestManager(pairing)
	m.Request(context.Background())
	m.Confirm(context.Background(), 9)

	pairing.active = nil
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got, _ := m.Session(9)
	if got.Status != model.MatchExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	if len(convs.removed) != 1 {
		t.Errorf("conversation removals = %v", convs.removed)
	}
}

func TestRefreshKeepsLocalProposals(t *testing.T) {
	pairing := &fakePairing{candidate: &model.UserPublic{ID: 9}}
	m, _, _ := newTestManager(pairing)
	m.Request(context.Background())

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got, ok := m.Session(9)
	if !ok || got.Status != model.MatchProposed {
		t.Errorf("proposal after refresh = %+v, ok=%v", got, ok)
	}
}
