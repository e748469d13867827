package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/castlinker/chatd/internal/database"
	"github.com/castlinker/chatd/internal/presence"
	"github.com/castlinker/chatd/internal/server"
	"github.com/castlinker/chatd/internal/stats"
	"github.com/castlinker/chatd/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	AvatarUrl string `json:"avatar_url"`
}

type UpdateAccountRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AvatarUrl string `json:"avatar_url"`
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateDirectRoomRequest struct {
	PeerId int `json:"peer_id"`
}

type LeaveRoomRequest struct {
	RoomId string `json:"room_id"`
}

type InviteMemberRequest struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
}

type SendMessageRequest struct {
	RoomId      string            `json:"room_id"`
	Kind        types.MessageKind `json:"kind"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ReplyToId   *int64            `json:"reply_to_id,omitempty"`
	ClientMsgId string            `json:"client_msg_id,omitempty"`
}

type EditMessageRequest struct {
	RoomId    string `json:"room_id"`
	MessageId int64  `json:"message_id"`
	Content   string `json:"content"`
}

type ToggleReactionRequest struct {
	RoomId    string `json:"room_id"`
	MessageId int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type HeartbeatRequest struct {
	Status types.PresenceStatus `json:"status"`
}

type TypingRequest struct {
	RoomId     string `json:"room_id"`
	Stop       bool   `json:"stop,omitempty"`
	TtlSeconds int    `json:"ttl_seconds,omitempty"`
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		AvatarUrl:    req.AvatarUrl,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(newUser))
}

func (s *ChatApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		user, err := s.db.GetAccountById(userId)
		if err != nil {
			errResp := fromStoreError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, toUser(user))
	case http.MethodPut:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		curUser, err := s.db.GetAccountById(userId)
		if err != nil {
			errResp := fromStoreError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if req.Username == "" || req.Password == "" {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		pwdHash, err := hashPassword(req.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		params := database.UpdateAccountParams{
			UserId:       curUser.Id,
			Username:     req.Username,
			AvatarUrl:    req.AvatarUrl,
			PasswordHash: pwdHash,
		}

		dbUser, err := s.db.UpdateAccount(params)
		if err != nil {
			errResp := fromStoreError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, toUser(dbUser))
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *ChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func (s *ChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an already expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

// getRooms serves both the room directory listing (no id parameter,
// newest activity first) and a single room with its members.
func (s *ChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		var dbRooms []database.Room
		err := s.withReadRetry(r.Context(), func() error {
			var err error
			dbRooms, err = s.db.ListRoomsForUser(userId)
			return err
		})
		if err != nil {
			s.log.Println("list rooms:", err)
			errResp := fromStoreError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		rooms := make([]types.Room, 0, len(dbRooms))
		for _, dbRoom := range dbRooms {
			rooms = append(rooms, toRoom(dbRoom))
		}

		s.writeJson(w, http.StatusOK, rooms)
		return
	}

	room, _, errResp := s.roomForMember(r, externalId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var withMembers *database.Room
	err := s.withReadRetry(r.Context(), func() error {
		var err error
		withMembers, err = s.db.GetRoomWithMembers(room.Id)
		return err
	})
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := toRoom(*withMembers)
	resp.Members = make([]types.Member, 0, len(withMembers.Members))
	for _, m := range withMembers.Members {
		resp.Members = append(resp.Members, toMember(m))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		OwnerId:     userId,
		ExternalId:  sid,
	}

	newRoom, err := s.db.CreateGroupRoom(params)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toRoom(newRoom))
}

// createDirectRoom returns the one_to_one room with the peer, creating
// it when it does not exist yet. Calling it twice, including
// concurrently from both participants, yields the same room.
func (s *ChatApp) createDirectRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.PeerId <= 0 || req.PeerId == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	peer, err := s.db.GetAccountById(req.PeerId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, created, err := s.db.CreateDirectRoom(sid, userId, peer.Id)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := toRoom(room)

	statusCode := http.StatusOK
	if created {
		statusCode = http.StatusCreated

		// both participants learn about the new room on their live
		// connections
		for _, memberId := range []int{userId, peer.Id} {
			s.cs.NotifyUser(memberId, &server.ServerMessage{
				BaseMessage: server.BaseMessage{
					Timestamp: server.Now(),
				},
				Notification: &server.Notification{
					Room: &resp,
				},
			})
		}
	}

	s.writeJson(w, statusCode, resp)
}

func (s *ChatApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// only the owner may delete a group room; direct rooms are never deleted
	if room.Kind != string(types.RoomGroup) || room.OwnerId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteRoom(room.Id); err != nil {
		s.log.Println("delete room:", err)
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.UnloadRoom(r.Context(), room.ExternalId, true); err != nil {
		s.log.Println("unload room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req LeaveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// direct rooms have a fixed pair of members; a deactivated membership
	// would lock the pair out of their own room
	if room.Kind != string(types.RoomGroup) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeactivateMember(room.Id, userId); err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			Membership: &server.MembershipChange{
				RoomId: room.ExternalId,
				Joined: false,
				User:   toUser(user),
			},
		},
	})

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) inviteMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req InviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" || req.UserId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, requester, errResp := s.roomForMember(r, req.RoomId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// direct rooms have a fixed pair of members; group invites are
	// admin-only
	if room.Kind != string(types.RoomGroup) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if requester.Role != string(types.RoleAdmin) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	invited, err := s.db.GetAccountById(req.UserId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.AddMember(room.Id, invited.Id, string(types.RoleMember))
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomResp := toRoom(room)
	s.cs.NotifyUser(invited.Id, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			Room: &roomResp,
		},
	})

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			Membership: &server.MembershipChange{
				RoomId: room.ExternalId,
				Joined: true,
				User:   toUser(invited),
			},
		},
	})

	resp := toMember(member)
	resp.Username = invited.Username
	resp.AvatarUrl = invited.AvatarUrl
	s.writeJson(w, http.StatusCreated, resp)
}

func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, _, errResp := s.roomForMember(r, externalId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before, after int64
	var limit int
	var err error

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		if before, err = strconv.ParseInt(beforeStr, 10, 64); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		if after, err = strconv.ParseInt(afterStr, 10, 64); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	var dbMessages []database.Message
	err = s.withReadRetry(r.Context(), func() error {
		var err error
		dbMessages, err = s.db.GetMessages(room.Id, after, before, limit)
		return err
	})
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, toMessage(room.ExternalId, msg))
	}

	s.writeJson(w, http.StatusOK, messages)
}

// sendMessage durably stores the message before responding, then fans
// it out to live room clients and pings the other members. Repeated
// sends with the same client_msg_id return the already stored message.
func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = types.TextMessage
	}

	if !kind.Valid() {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if kind == types.TextMessage && strings.TrimSpace(req.Content) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, _, errResp := s.roomForMember(r, req.RoomId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	clientMsgId := req.ClientMsgId
	if clientMsgId == "" {
		clientMsgId = uuid.NewString()
	}

	params := database.CreateMessageParams{
		RoomId:      room.Id,
		SenderId:    userId,
		Kind:        string(kind),
		Content:     req.Content,
		Metadata:    req.Metadata,
		ClientMsgId: clientMsgId,
	}
	if req.ReplyToId != nil {
		params.ReplyToId = *req.ReplyToId
	}

	saved, err := s.db.CreateMessage(params)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.MessagesSent)

	if err := s.presence.ClearTyping(r.Context(), userId); err != nil {
		s.log.Println("clear typing:", err)
	}

	msg := toMessage(room.ExternalId, saved)

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: saved.CreatedAt,
		},
		Message: &msg,
	})

	s.notifyRoomMembers(room.Id, userId, &server.Notification{
		NewMessage: &server.MessagePing{
			RoomId:    room.ExternalId,
			MessageId: saved.Id,
		},
	})

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" || req.MessageId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, _, errResp := s.roomForMember(r, req.RoomId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.GetMessageById(req.MessageId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if msg.RoomId != room.Id {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// only the original sender may edit
	if msg.SenderId != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if msg.IsDeleted {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	edited, err := s.db.EditMessage(req.MessageId, req.Content)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := toMessage(room.ExternalId, edited)

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			MessageEdited: &resp,
		},
	})

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	idStr := r.URL.Query().Get("id")
	if externalId == "" || idStr == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, member, errResp := s.roomForMember(r, externalId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.GetMessageById(messageId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if msg.RoomId != room.Id {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the sender or a room admin may delete
	if msg.SenderId != userId && member.Role != string(types.RoleAdmin) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SoftDeleteMessage(messageId); err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			MessageDeleted: &server.MessageDeleted{
				RoomId:    room.ExternalId,
				MessageId: messageId,
			},
		},
	})

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) getReactions(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("room_id")
	idStr := r.URL.Query().Get("message_id")
	if externalId == "" || idStr == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	_, _, errResp := s.roomForMember(r, externalId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var dbCounts []database.ReactionCount
	err = s.withReadRetry(r.Context(), func() error {
		var err error
		dbCounts, err = s.db.GetReactions(messageId, userId)
		return err
	})
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	counts := make([]types.ReactionCount, 0, len(dbCounts))
	for _, rc := range dbCounts {
		counts = append(counts, types.ReactionCount(rc))
	}

	s.writeJson(w, http.StatusOK, counts)
}

// toggleReaction adds the user's reaction or removes it when already
// present, returning the updated aggregate count for the emoji.
func (s *ChatApp) toggleReaction(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ToggleReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" || req.MessageId <= 0 || req.Emoji == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, _, errResp := s.roomForMember(r, req.RoomId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.GetMessageById(req.MessageId)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if msg.RoomId != room.Id || msg.IsDeleted {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.db.ToggleReaction(req.MessageId, userId, req.Emoji)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.ReactionsToggled)

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			Reaction: &server.ReactionEvent{
				RoomId:    room.ExternalId,
				MessageId: req.MessageId,
				UserId:    userId,
				Emoji:     count.Emoji,
				Count:     count.Count,
				Reacted:   count.Reacted,
			},
		},
	})

	s.writeJson(w, http.StatusOK, types.ReactionCount(count))
}

func (s *ChatApp) getPresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userIdStr := r.URL.Query().Get("user_id")
	userId, err := strconv.Atoi(userIdStr)
	if err != nil || userId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	p, err := s.presence.Get(r.Context(), userId)
	if err != nil {
		s.log.Println("get presence:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, p)
}

func (s *ChatApp) heartbeat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Status == "" {
		req.Status = types.StatusOnline
	}

	if !req.Status.Valid() {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.presence.Heartbeat(r.Context(), userId, req.Status); err != nil {
		s.log.Println("heartbeat:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) setTyping(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, _, errResp := s.roomForMember(r, req.RoomId, userId)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ttl := s.typingTTL
	if req.TtlSeconds > 0 {
		ttl = time.Duration(req.TtlSeconds) * time.Second
	}
	if ttl > presence.MaxTypingTTL {
		ttl = presence.MaxTypingTTL
	}

	if req.Stop {
		err := s.presence.ClearTyping(r.Context(), userId)
		if err != nil {
			s.log.Println("clear typing:", err)
			errResp := NewServiceUnavailableError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	} else {
		if err := s.presence.SetTyping(r.Context(), userId, room.ExternalId, ttl); err != nil {
			s.log.Println("set typing:", err)
			errResp := NewServiceUnavailableError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	s.stats.Incr(stats.TypingEvents)

	ttlSeconds := 0
	if !req.Stop {
		ttlSeconds = int(ttl / time.Second)
	}

	s.cs.RouteRoomEvent(room.ExternalId, &server.ServerMessage{
		BaseMessage: server.BaseMessage{
			Timestamp: server.Now(),
		},
		Notification: &server.Notification{
			Typing: &server.TypingEvent{
				RoomId:     room.ExternalId,
				UserId:     userId,
				Typing:     !req.Stop,
				TtlSeconds: ttlSeconds,
			},
		},
	})

	s.writeJson(w, http.StatusAccepted, nil)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		errResp := fromStoreError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	if err := s.presence.Heartbeat(r.Context(), user.Id, types.StatusOnline); err != nil {
		s.log.Println("heartbeat on connect:", err)
	}

	client := server.NewClient(toUser(user), conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

// roomForMember resolves a room by external id and checks that userId
// is an active member. A missing room maps to NotFound, a missing
// membership to Forbidden.
func (s *ChatApp) roomForMember(r *http.Request, externalId string, userId int) (database.Room, database.Member, *ApiError) {
	var room database.Room
	err := s.withReadRetry(r.Context(), func() error {
		var err error
		room, err = s.db.GetRoomByExternalId(externalId)
		return err
	})
	if err != nil {
		return database.Room{}, database.Member{}, fromStoreError(err)
	}

	member, err := s.db.GetMember(room.Id, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Room{}, database.Member{}, NewForbiddenError()
		}
		return database.Room{}, database.Member{}, fromStoreError(err)
	}

	return room, member, nil
}

// notifyRoomMembers pings every active member of the room except the
// sender on their live connections.
func (s *ChatApp) notifyRoomMembers(roomId, senderId int, n *server.Notification) {
	withMembers, err := s.db.GetRoomWithMembers(roomId)
	if err != nil {
		s.log.Println("notify members:", err)
		return
	}

	for _, m := range withMembers.Members {
		if m.UserId == senderId || !m.Notify {
			continue
		}

		s.cs.NotifyUser(m.UserId, &server.ServerMessage{
			BaseMessage: server.BaseMessage{
				Timestamp: server.Now(),
			},
			Notification: n,
		})
	}
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		AvatarUrl:    u.AvatarUrl,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func toRoom(dbRoom database.Room) types.Room {
	room := types.Room{
		Id:          dbRoom.Id,
		ExternalId:  dbRoom.ExternalId,
		Kind:        types.RoomKind(dbRoom.Kind),
		Name:        dbRoom.Name,
		Description: dbRoom.Description,
		OwnerId:     dbRoom.OwnerId,
		LastMessage: dbRoom.LastMessage,
		MemberCount: dbRoom.MemberCount,
		UnreadCount: dbRoom.UnreadCount,
		CreatedAt:   dbRoom.CreatedAt,
		UpdatedAt:   dbRoom.UpdatedAt,
	}

	if dbRoom.LastMessageAt.Valid {
		t := dbRoom.LastMessageAt.Time
		room.LastMessageAt = &t
	}

	return room
}

func toMember(m database.Member) types.Member {
	return types.Member{
		User: types.User{
			Id:        m.UserId,
			Username:  m.Username,
			AvatarUrl: m.AvatarUrl,
		},
		Role:              types.MemberRole(m.Role),
		JoinedAt:          m.JoinedAt,
		LastReadMessageId: m.LastReadMessageId,
		Notify:            m.Notify,
	}
}

func toMessage(roomExternalId string, msg database.Message) types.Message {
	m := types.Message{
		Id:        msg.Id,
		RoomId:    roomExternalId,
		SenderId:  msg.SenderId,
		Kind:      types.MessageKind(msg.Kind),
		Content:   msg.Content,
		Metadata:  msg.Metadata,
		IsEdited:  msg.IsEdited,
		IsDeleted: msg.IsDeleted,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}

	if msg.ReplyToId.Valid {
		id := msg.ReplyToId.Int64
		m.ReplyToId = &id
	}

	if msg.ClientMsgId.Valid {
		m.ClientMsgId = msg.ClientMsgId.String
	}

	if msg.IsDeleted {
		redacted := msg.Redacted()
		m.Content = redacted.Content
		m.Metadata = redacted.Metadata
	}

	return m
}
