// Package match models ephemeral pairings with strangers: a proposal, a
// mutual confirmation handshake, a 24-hour renewable active window and
// lazy expiry. The server is authoritative; the manager reconciles its
// responses into a local state machine and never runs its own timers.
// Expiry is a pure function of the injected clock, made visible by the
// caller's periodic refresh.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/model"
)

// SessionTTL is the validity window granted on activation or extension.
const SessionTTL = 24 * time.Hour

var (
	// ErrNotActive rejects an extension of a session that is missing,
	// not yet confirmed, or already expired.
	ErrNotActive = errors.New("match session not active")

	// ErrNoProposal rejects a confirmation for a user no pairing was
	// proposed with.
	ErrNoProposal = errors.New("no proposed match for user")
)

// Pairing is the REST collaborator surface for the pairing service.
type Pairing interface {
	RequestMatch(ctx context.Context) (*model.UserPublic, error)
	ConfirmMatch(ctx context.Context, userID int64) (pending bool, err error)
	ExtendMatch(ctx context.Context, userID int64) error
	ActiveMatches(ctx context.Context, now time.Time) ([]model.MatchSession, error)
}

// Conversations is the conversation-store surface the manager drives when
// sessions activate or expire.
type Conversations interface {
	InitConversation(conversationID int64, typ model.ConversationType)
	RemoveConversation(conversationID int64)
}

// Manager holds the client's match sessions keyed by counterpart id.
type Manager struct {
	pairing Pairing
	convs   Conversations
	now     func() time.Time

	mu       sync.Mutex
	sessions map[int64]*model.MatchSession
}

func New(pairing Pairing, convs Conversations) *Manager {
	return &Manager{
		pairing:  pairing,
		convs:    convs,
		now:      time.Now,
		sessions: make(map[int64]*model.MatchSession),
	}
}

// Request asks the pairing service for a candidate. A nil session with a
// nil error means no match is available right now, an expected outcome
// rather than an error.
func (m *Manager) Request(ctx context.Context) (*model.MatchSession, error) {
	candidate, err := m.pairing.RequestMatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("request match: %w", err)
	}
	if candidate == nil {
		return nil, nil
	}

	session := &model.MatchSession{
		UserID:   candidate.ID,
		Nickname: candidate.Nickname,
		Avatar:   candidate.Avatar,
		Status:   model.MatchProposed,
	}

	m.mu.Lock()
	m.sessions[candidate.ID] = session
	m.mu.Unlock()

	out := *session
	return &out, nil
}

// Confirm sends this side's confirmation for a proposed pairing. The
// server's response distinguishes the two outcomes: pending (waiting for
// the counterpart) or active (the handshake just completed). On
// activation the session gets a fresh 24-hour window and a conversation
// is initialized. A rejection leaves the session untouched.
func (m *Manager) Confirm(ctx context.Context, userID int64) (model.MatchSession, error) {
	m.mu.Lock()
	session, ok := m.sessions[userID]
	if !ok || session.Status != model.MatchProposed {
		m.mu.Unlock()
		return model.MatchSession{}, ErrNoProposal
	}
	m.mu.Unlock()

	pending, err := m.pairing.ConfirmMatch(ctx, userID)
	if err != nil {
		return model.MatchSession{}, fmt.Errorf("confirm match with %d: %w", userID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if pending {
		session.Status = model.MatchPendingConfirmation
		session.Initiator = true
	} else {
		session.Status = model.MatchActive
		session.ExpiresAt = m.now().Add(SessionTTL)
		m.convs.InitConversation(userID, model.ConversationMatch)
	}
	return *session, nil
}

// Extend renews an active session's window. Valid only while the session
// is active under the current clock; anything else is rejected without a
// state change.
func (m *Manager) Extend(ctx context.Context, userID int64) error {
	now := m.now()

	m.mu.Lock()
	session, ok := m.sessions[userID]
	if !ok || session.Status != model.MatchActive || session.Expired(now) {
		m.mu.Unlock()
		return ErrNotActive
	}
	m.mu.Unlock()

	if err := m.pairing.ExtendMatch(ctx, userID); err != nil {
		return fmt.Errorf("extend match with %d: %w", userID, err)
	}

	m.mu.Lock()
	session.ExpiresAt = m.now().Add(SessionTTL)
	m.mu.Unlock()
	return nil
}

// Active returns the sessions still valid at the current instant, soonest
// expiry first. Sessions whose window has lapsed transition to expired
// here (expired is terminal) and their conversation leaves the active
// set.
func (m *Manager) Active() []model.MatchSession {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.MatchSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session.Expired(now) {
			m.expireLocked(session)
		}
		if session.Status == model.MatchActive {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

// Session reports one session's state with lazy expiry applied.
func (m *Manager) Session(userID int64) (model.MatchSession, bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[userID]
	if !ok {
		return model.MatchSession{}, false
	}
	if session.Expired(now) {
		m.expireLocked(session)
	}
	return *session, true
}

// Refresh reconciles the local set with the server's authoritative active
// list: server-known sessions become or stay active with the reported
// expiry, local active sessions the server no longer lists expire.
// Proposed and pending sessions are purely local and are kept.
func (m *Manager) Refresh(ctx context.Context) error {
	active, err := m.pairing.ActiveMatches(ctx, m.now())
	if err != nil {
		return fmt.Errorf("refresh active matches: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]struct{}, len(active))
	for _, remote := range active {
		seen[remote.UserID] = struct{}{}
		session, ok := m.sessions[remote.UserID]
		if !ok {
			session = &model.MatchSession{UserID: remote.UserID}
			m.sessions[remote.UserID] = session
		}
		if session.Status != model.MatchActive {
			// Became active remotely (counterpart completed the
			// handshake, or state restored after a relaunch).
			m.convs.InitConversation(remote.UserID, model.ConversationMatch)
		}
		session.Nickname = remote.Nickname
		session.Avatar = remote.Avatar
		session.Status = model.MatchActive
		session.ExpiresAt = remote.ExpiresAt
	}

	for id, session := range m.sessions {
		if _, ok := seen[id]; ok || session.Status != model.MatchActive {
			continue
		}
		m.expireLocked(session)
	}
	return nil
}

// expireLocked finalizes a session: expired is terminal and the paired
// conversation is removed from the active set.
func (m *Manager) expireLocked(session *model.MatchSession) {
	if session.Status == model.MatchExpired {
		return
	}
	session.Status = model.MatchExpired
	m.convs.RemoveConversation(session.UserID)
	logger.Infof("match with %d expired", session.UserID)
}
