package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SueMuBai/nebula/internal/model"
	"github.com/google/uuid"
)

const matchTTL = 24 * time.Hour

type user struct {
	ID       int64
	Phone    string
	Password string
	Nickname string
	Avatar   string
}

type storedMessage struct {
	ID        int64
	MessageID string
	Sender    int64
	Receiver  int64
	ChatType  int
	Kind      string
	Content   string
	// Status: 0 saved, 1 delivered, 2 read.
	Status    int
	Timestamp int64
}

// friendship status: 0 requested (a → b pending), 1 accepted.
type friendship struct {
	from, to int64
	status   int
}

type matchPair struct {
	users     [2]int64
	confirmed [2]bool
	expiresAt time.Time
}

func (p *matchPair) side(id int64) int {
	if p.users[0] == id {
		return 0
	}
	return 1
}

func (p *matchPair) bothConfirmed() bool {
	return p.confirmed[0] && p.confirmed[1]
}

func (p *matchPair) active(now time.Time) bool {
	return p.bothConfirmed() && now.Before(p.expiresAt)
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// state is the stub server's whole world, guarded by one mutex. It only
// has to be convincing enough for the client to run against.
type state struct {
	mu       sync.Mutex
	nextUser int64
	nextMsg  int64
	users    map[int64]*user
	byPhone  map[string]int64
	tokens   map[string]int64
	messages []*storedMessage
	friends  map[[2]int64]*friendship
	matches  map[[2]int64]*matchPair
}

func newState() *state {
	return &state{
		users:   make(map[int64]*user),
		byPhone: make(map[string]int64),
		tokens:  make(map[string]int64),
		friends: make(map[[2]int64]*friendship),
		matches: make(map[[2]int64]*matchPair),
	}
}

func (s *state) register(phone, password, nickname string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPhone[phone]; exists {
		return false
	}
	s.nextUser++
	u := &user{ID: s.nextUser, Phone: phone, Password: password, Nickname: nickname}
	s.users[u.ID] = u
	s.byPhone[phone] = u.ID
	return true
}

func (s *state) login(phone, password string) (string, *user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return "", nil, false
	}
	u := s.users[id]
	if u.Password != password {
		return "", nil, false
	}
	token := uuid.NewString()
	s.tokens[token] = id
	return token, u, true
}

func (s *state) logout(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *state) resolveToken(token string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

func (s *state) userByID(id int64) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (s *state) search(query string) []*user {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*user
	for _, u := range s.users {
		if strings.Contains(u.Nickname, query) || strings.Contains(u.Phone, query) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) saveMessage(m *storedMessage) {
	s.mu.Lock()
	s.nextMsg++
	m.ID = s.nextMsg
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

// history returns private messages between two users, newest first.
func (s *state) history(userID, contactID int64, limit, offset int) []*storedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var between []*storedMessage
	for _, m := range s.messages {
		if m.ChatType != 0 {
			continue
		}
		if (m.Sender == userID && m.Receiver == contactID) || (m.Sender == contactID && m.Receiver == userID) {
			between = append(between, m)
		}
	}
	sort.Slice(between, func(i, j int) bool { return between[i].Timestamp > between[j].Timestamp })
	if offset >= len(between) {
		return nil
	}
	between = between[offset:]
	if limit > 0 && len(between) > limit {
		between = between[:limit]
	}
	out := make([]*storedMessage, len(between))
	for i, m := range between {
		cp := *m
		out[i] = &cp
	}
	return out
}

type recentEntry struct {
	ContactID       int64
	LastMessage     string
	LastMessageTime int64
	Unread          int
}

func (s *state) recent(userID int64) []recentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[int64]*storedMessage)
	unread := make(map[int64]int)
	for _, m := range s.messages {
		if m.ChatType != 0 {
			continue
		}
		var contact int64
		switch {
		case m.Sender == userID:
			contact = m.Receiver
		case m.Receiver == userID:
			contact = m.Sender
		default:
			continue
		}
		if prev, ok := latest[contact]; !ok || m.Timestamp > prev.Timestamp {
			latest[contact] = m
		}
		if m.Receiver == userID && m.Status < 2 {
			unread[contact]++
		}
	}
	out := make([]recentEntry, 0, len(latest))
	for contact, m := range latest {
		out = append(out, recentEntry{
			ContactID:       contact,
			LastMessage:     m.Content,
			LastMessageTime: m.Timestamp,
			Unread:          unread[contact],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageTime > out[j].LastMessageTime })
	return out
}

func (s *state) markRead(userID, fromUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Sender == fromUserID && m.Receiver == userID && m.Status < 2 {
			m.Status = 2
		}
	}
}

func (s *state) markDelivered(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.MessageID == messageID && m.Status < 1 {
			m.Status = 1
		}
	}
}

func (s *state) requestFriend(from, to int64) (okay bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from == to {
		return false, "cannot add yourself"
	}
	if _, ok := s.users[to]; !ok {
		return false, "user not found"
	}
	key := pairKey(from, to)
	if f, ok := s.friends[key]; ok {
		if f.status == 1 {
			return false, "already friends"
		}
		return false, "request already sent"
	}
	s.friends[key] = &friendship{from: from, to: to}
	return true, "friend request sent"
}

func (s *state) approveFriend(userID, fromUserID int64, accept bool) (okay bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, fromUserID)
	f, ok := s.friends[key]
	if !ok || f.status != 0 || f.to != userID {
		return false, "request not found"
	}
	if !accept {
		delete(s.friends, key)
		return true, "request rejected"
	}
	f.status = 1
	return true, "request accepted"
}

func (s *state) friendList(userID int64) []*user {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*user
	for _, f := range s.friends {
		if f.status != 1 {
			continue
		}
		other := f.from
		if other == userID {
			other = f.to
		} else if f.to != userID {
			continue
		}
		if u, ok := s.users[other]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) friendRequests(userID int64) []*user {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*user
	for _, f := range s.friends {
		if f.status == 0 && f.to == userID {
			if u, ok := s.users[f.from]; ok {
				cp := *u
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// randomCandidate picks another user with no live pairing with userID.
func (s *state) randomCandidate(userID int64, now time.Time) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		if id == userID {
			continue
		}
		if p, ok := s.matches[pairKey(userID, id)]; ok && p.active(now) {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	cp := *s.users[ids[0]]
	return &cp, true
}

func (s *state) confirmMatch(userID, otherID int64, now time.Time) (pending bool, okay bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[otherID]; !ok {
		return false, false, "user not found"
	}
	key := pairKey(userID, otherID)
	p, ok := s.matches[key]
	if !ok || (p.bothConfirmed() && now.After(p.expiresAt)) {
		p = &matchPair{users: key}
		s.matches[key] = p
	}
	p.confirmed[p.side(userID)] = true
	if p.bothConfirmed() {
		p.expiresAt = now.Add(matchTTL)
		return false, true, "match established"
	}
	return true, true, "waiting for counterpart"
}

func (s *state) extendMatch(userID, otherID int64, now time.Time) (okay bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.matches[pairKey(userID, otherID)]
	if !ok || !p.active(now) {
		return false, "no active match"
	}
	p.expiresAt = now.Add(matchTTL)
	return true, "match extended"
}

type activeMatchEntry struct {
	User     model.UserPublic
	TimeLeft int64
}

func (s *state) activeMatches(userID int64, now time.Time) []activeMatchEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []activeMatchEntry
	for _, p := range s.matches {
		if !p.active(now) {
			continue
		}
		var other int64
		switch userID {
		case p.users[0]:
			other = p.users[1]
		case p.users[1]:
			other = p.users[0]
		default:
			continue
		}
		u := s.users[other]
		out = append(out, activeMatchEntry{
			User:     model.UserPublic{ID: u.ID, Nickname: u.Nickname, Avatar: u.Avatar},
			TimeLeft: p.expiresAt.Sub(now).Milliseconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out
}
