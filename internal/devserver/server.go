// Package devserver is an in-process stand-in for the real nebula
// backend, just complete enough to run and test the client against: the
// REST surface the client consumes and a websocket endpoint that forwards
// content frames and answers with delivery confirmations. State is in
// memory; friendship is not enforced for message delivery.
package devserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/SueMuBai/nebula/internal/handler"
	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/middleware"
	"github.com/SueMuBai/nebula/internal/model"
	"github.com/SueMuBai/nebula/internal/wire"
)

type Server struct {
	state *state
	hub   *hub
	now   func() time.Time
}

func New() *Server {
	return &Server{
		state: newState(),
		hub:   newHub(),
		now:   time.Now,
	}
}

// Seed registers an account directly, for tests and demo setups.
func (s *Server) Seed(phone, password, nickname string) {
	s.state.register(phone, password, nickname)
}

// Router builds the HTTP surface: REST under /api plus the websocket
// endpoint at /chat.
func (s *Server) Router(corsAllowedOrigins string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(corsAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", s.handleRegister)
		r.Post("/user/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth(s.state.resolveToken))
			r.Post("/user/logout", s.handleLogout)
			r.Get("/user/profile", s.handleProfile)
			r.Get("/user/search", s.handleSearch)

			r.Get("/chat/history", s.handleHistory)
			r.Get("/chat/recent", s.handleRecent)
			r.Post("/chat/read", s.handleMarkRead)

			r.Get("/friend/list", s.handleFriendList)
			r.Get("/friend/requests", s.handleFriendRequests)
			r.Post("/friend/request/{userID}", s.handleFriendRequest)
			r.Post("/friend/approve", s.handleFriendApprove)

			r.Get("/group/list", s.handleGroupList)
			r.Get("/group/members", s.handleGroupMembers)

			r.Post("/match/random", s.handleMatchRandom)
			r.Post("/match/confirm/{userID}", s.handleMatchConfirm)
			r.Post("/match/extend/{userID}", s.handleMatchExtend)
			r.Get("/match/active", s.handleMatchActive)
		})
	})

	r.Get("/chat", s.handleWS)
	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
		Nickname string `json:"nickname"`
	}
	if !handler.ReadJSON(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Password == "" || req.Nickname == "" {
		handler.WriteReject(w, "phone, password and nickname required")
		return
	}
	if !s.state.register(req.Phone, req.Password, req.Nickname) {
		handler.WriteReject(w, "phone already registered")
		return
	}
	handler.WriteOK(w, nil)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !handler.ReadJSON(w, r, &req) {
		return
	}
	token, u, ok := s.state.login(req.Phone, req.Password)
	if !ok {
		handler.WriteReject(w, "invalid phone or password")
		return
	}
	handler.WriteOK(w, map[string]any{
		"token":    token,
		"userId":   u.ID,
		"nickname": u.Nickname,
		"avatar":   u.Avatar,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	s.state.logout(strings.TrimPrefix(header, "Bearer "))
	handler.WriteOK(w, nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := handler.QueryInt64(r, "userId", 0)
	u, ok := s.state.userByID(userID)
	if !ok {
		handler.WriteReject(w, "user not found")
		return
	}
	handler.WriteOK(w, map[string]any{
		"user": model.UserPublic{ID: u.ID, Nickname: u.Nickname, Avatar: u.Avatar},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	users := s.state.search(r.URL.Query().Get("q"))
	out := make([]model.UserPublic, 0, len(users))
	for _, u := range users {
		out = append(out, model.UserPublic{ID: u.ID, Nickname: u.Nickname, Avatar: u.Avatar})
	}
	handler.WriteOK(w, map[string]any{"users": out})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	contactID := handler.QueryInt64(r, "contactId", 0)
	limit := handler.QueryInt(r, "limit", 50)
	offset := handler.QueryInt(r, "offset", 0)

	rows := s.state.history(userID, contactID, limit, offset)
	messages := make([]map[string]any, 0, len(rows))
	for _, m := range rows {
		messages = append(messages, map[string]any{
			"id":         m.ID,
			"message_id": m.MessageID,
			"sender":     m.Sender,
			"receiver":   m.Receiver,
			"content":    m.Content,
			"status":     m.Status,
			"timestamp":  m.Timestamp,
		})
	}
	handler.WriteOK(w, map[string]any{"messages": messages})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	entries := s.state.recent(userID)
	chats := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		chats = append(chats, map[string]any{
			"contactId":       e.ContactID,
			"lastMessage":     e.LastMessage,
			"lastMessageTime": e.LastMessageTime,
			"unread":          e.Unread,
		})
	}
	handler.WriteOK(w, map[string]any{"chats": chats})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromUserID int64 `json:"fromUserId"`
	}
	if !handler.ReadJSON(w, r, &req) {
		return
	}
	s.state.markRead(middleware.GetUserID(r.Context()), req.FromUserID)
	handler.WriteOK(w, nil)
}

func (s *Server) handleFriendList(w http.ResponseWriter, r *http.Request) {
	users := s.state.friendList(middleware.GetUserID(r.Context()))
	out := make([]model.UserPublic, 0, len(users))
	for _, u := range users {
		out = append(out, model.UserPublic{ID: u.ID, Nickname: u.Nickname, Avatar: u.Avatar})
	}
	handler.WriteOK(w, map[string]any{"friends": out})
}

func (s *Server) handleFriendRequests(w http.ResponseWriter, r *http.Request) {
	users := s.state.friendRequests(middleware.GetUserID(r.Context()))
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{"fromUserId": u.ID, "nickname": u.Nickname, "avatar": u.Avatar})
	}
	handler.WriteOK(w, map[string]any{"requests": out})
}

func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	to, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		handler.WriteReject(w, "invalid user id")
		return
	}
	ok, msg := s.state.requestFriend(middleware.GetUserID(r.Context()), to)
	if !ok {
		handler.WriteReject(w, msg)
		return
	}
	handler.WriteOK(w, map[string]any{"message": msg})
}

func (s *Server) handleFriendApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromUserID int64 `json:"fromUserId"`
		Accept     bool  `json:"accept"`
	}
	if !handler.ReadJSON(w, r, &req) {
		return
	}
	ok, msg := s.state.approveFriend(middleware.GetUserID(r.Context()), req.FromUserID, req.Accept)
	if !ok {
		handler.WriteReject(w, msg)
		return
	}
	handler.WriteOK(w, map[string]any{"message": msg})
}

func (s *Server) handleGroupList(w http.ResponseWriter, r *http.Request) {
	// The stub has no group management; the endpoint exists so the
	// client's directory calls succeed.
	handler.WriteOK(w, map[string]any{"groups": []any{}})
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	handler.WriteOK(w, map[string]any{"members": []any{}})
}

func (s *Server) handleMatchRandom(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	candidate, ok := s.state.randomCandidate(userID, s.now())
	if !ok {
		handler.WriteOK(w, map[string]any{"message": "no match available"})
		return
	}
	handler.WriteOK(w, map[string]any{
		"matchedUser": model.UserPublic{ID: candidate.ID, Nickname: candidate.Nickname, Avatar: candidate.Avatar},
	})
}

func (s *Server) handleMatchConfirm(w http.ResponseWriter, r *http.Request) {
	other, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		handler.WriteReject(w, "invalid user id")
		return
	}
	pending, ok, msg := s.state.confirmMatch(middleware.GetUserID(r.Context()), other, s.now())
	if !ok {
		handler.WriteReject(w, msg)
		return
	}
	handler.WriteOK(w, map[string]any{"pending": pending, "message": msg})
}

func (s *Server) handleMatchExtend(w http.ResponseWriter, r *http.Request) {
	other, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		handler.WriteReject(w, "invalid user id")
		return
	}
	ok, msg := s.state.extendMatch(middleware.GetUserID(r.Context()), other, s.now())
	if !ok {
		handler.WriteReject(w, msg)
		return
	}
	handler.WriteOK(w, map[string]any{"message": msg})
}

func (s *Server) handleMatchActive(w http.ResponseWriter, r *http.Request) {
	entries := s.state.activeMatches(middleware.GetUserID(r.Context()), s.now())
	matches := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, map[string]any{
			"userId":   e.User.ID,
			"nickname": e.User.Nickname,
			"avatar":   e.User.Avatar,
			"timeLeft": e.TimeLeft,
		})
	}
	handler.WriteOK(w, map[string]any{"matches": matches})
}

// handleWS authenticates the token carried as a query parameter,
// upgrades, and serves the frame loop for one connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("devserver ws upgrade: %v", err)
		return
	}

	token := r.URL.Query().Get("token")
	userID, ok := s.state.resolveToken(token)
	if !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			time.Now().Add(hubWriteWait))
		conn.Close()
		return
	}

	s.hub.register(userID, conn)
	defer func() {
		s.hub.unregister(userID, conn)
		conn.Close()
	}()
	logger.Infof("devserver ws connected user=%d", userID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wire.Decode(raw)
		if err != nil {
			s.hub.sendTo(userID, wire.Frame{Type: wire.TypeError, Message: "malformed frame"})
			continue
		}
		s.handleFrame(userID, frame)
	}
}

func (s *Server) handleFrame(senderID int64, f wire.Frame) {
	if !f.Type.Content() {
		s.hub.sendTo(senderID, wire.Frame{Type: wire.TypeError, Message: "unknown message type"})
		return
	}

	now := s.now()
	if _, ok := s.state.userByID(f.To); !ok && f.ChatType == wire.ChatPrivate {
		no := false
		s.hub.sendTo(senderID, wire.Frame{
			Type:      wire.TypeDeliveryConfirmation,
			MessageID: f.MessageID,
			Success:   &no,
			Timestamp: now.UnixMilli(),
		})
		s.hub.sendTo(senderID, wire.Frame{Type: wire.TypeError, Message: "recipient not found"})
		return
	}

	s.state.saveMessage(&storedMessage{
		MessageID: f.MessageID,
		Sender:    senderID,
		Receiver:  f.To,
		ChatType:  f.ChatType,
		Kind:      string(f.Type),
		Content:   f.Content,
		Timestamp: now.UnixMilli(),
	})

	forward := wire.Frame{
		Type:      f.Type,
		MessageID: f.MessageID,
		From:      senderID,
		To:        f.To,
		Content:   f.Content,
		ChatType:  f.ChatType,
		Timestamp: now.UnixMilli(),
	}
	if s.hub.sendTo(f.To, forward) {
		s.state.markDelivered(f.MessageID)
	}

	yes := true
	s.hub.sendTo(senderID, wire.Frame{
		Type:      wire.TypeDeliveryConfirmation,
		MessageID: f.MessageID,
		Success:   &yes,
		Timestamp: now.UnixMilli(),
	})
}
