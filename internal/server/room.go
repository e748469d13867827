package server

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/castlinker/chatd/internal/database"
	"github.com/castlinker/chatd/internal/presence"
	"github.com/castlinker/chatd/internal/stats"
	"github.com/castlinker/chatd/internal/types"
)

const idleRoomTimeout = time.Minute

type exitReq struct {
	deleted bool
	done    chan string
}

type Room struct {
	id            int
	externalId    string
	kind          types.RoomKind
	members       []types.Member
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	eventChan     chan *ServerMessage
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer unloads the room once no clients remain
	killTimer *time.Timer
	// exit signals the room to shut down
	exit chan exitReq
	done chan struct{}
}

func newRoom(cs *ChatServer, dbRoom database.Room) *Room {
	return &Room{
		id:            dbRoom.Id,
		externalId:    dbRoom.ExternalId,
		kind:          types.RoomKind(dbRoom.Kind),
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		eventChan:     make(chan *ServerMessage, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Publish != nil:
				r.handlePublish(msg)
			case msg.Read != nil:
				r.handleRead(msg)
			case msg.Typing != nil:
				r.handleTyping(msg)
			}
		case ev := <-r.eventChan:
			r.broadcast(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		// unload queue is busy, try again next idle period
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)
	if e.deleted {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.externalId},
			},
		})

		// members without a live session in the room still learn the
		// room is gone
		for _, member := range r.members {
			r.cs.NotifyUser(member.Id, &ServerMessage{
				BaseMessage: BaseMessage{
					Timestamp: Now(),
				},
				Notification: &Notification{
					RoomDeleted: &RoomDeleted{RoomId: r.externalId},
				},
			})
		}
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- r.externalId
	}

	close(r.done)
}

// handleJoin attaches a client session to the room. Joining requires an
// existing active membership; rooms never auto-subscribe.
func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	if _, err := r.cs.db.GetMember(r.id, c.user.Id); err != nil {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}

		if errors.Is(err, database.ErrNotFound) {
			c.queueMessage(ErrNotAMember(join.Id))
		} else {
			r.log.Println("GetMember:", err)
			c.queueMessage(ErrInternalError(join.Id))
		}
		return
	}

	dbRoom, err := r.cs.db.GetRoomWithMembers(r.id)
	if err != nil {
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}

		r.log.Println("GetRoomWithMembers:", err)
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	r.members = r.members[:0]
	for _, m := range dbRoom.Members {
		r.members = append(r.members, memberInfo(m))
	}

	r.addClient(c)

	c.queueMessage(NoErrOK(join.Id, r.roomInfo(dbRoom)))

	// tell everyone else the user is now present
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &PresenceEvent{
				Present: true,
				RoomId:  r.externalId,
				UserId:  c.user.Id,
			},
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	if leaveMsg.Leave.Unsubscribe {
		// direct rooms have a fixed pair of members; only sessions leave
		if r.kind == types.RoomOneToOne {
			if leaveMsg.client != nil {
				leaveMsg.client.queueMessage(ErrInvalidMessage(leaveMsg.Id, "cannot leave a direct room"))
			}
			return
		}

		r.log.Printf("unsubscribing user %d from room %q", leaveMsg.GetUserId(), r.externalId)
		err := r.cs.db.DeactivateMember(r.id, leaveMsg.GetUserId())
		if err != nil {
			r.log.Println("DeactivateMember:", err)
			if leaveMsg.client != nil {
				leaveMsg.client.queueMessage(ErrInternalError(leaveMsg.Id))
			}
			return
		}

		r.removeAllClientsForUser(leaveMsg.GetUserId())

		var user types.User
		if i := slices.IndexFunc(r.members, func(m types.Member) bool { return m.Id == leaveMsg.GetUserId() }); i >= 0 {
			user = r.members[i].User
			r.members = slices.Delete(r.members, i, i+1)
		}

		if leaveMsg.client != nil {
			leaveMsg.client.queueMessage(NoErrOK(leaveMsg.Id, nil))
		}

		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				Membership: &MembershipChange{
					RoomId: r.externalId,
					Joined: false,
					User:   user,
				},
			},
		})
		return
	}

	client := leaveMsg.client
	r.removeClient(client)

	if leaveMsg.client != nil {
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	// announce the user offline once their last session left
	if r.userMap[client.user.Id] == nil {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				Presence: &PresenceEvent{
					Present: false,
					RoomId:  r.externalId,
					UserId:  client.user.Id,
				},
			},
			SkipClient: client,
		})
	}
}

// handlePublish validates and durably stores a message, then fans it
// out to clients in the room and pings members without a live session.
func (r *Room) handlePublish(msg *ClientMessage) {
	pub := msg.Publish

	kind := pub.Kind
	if kind == "" {
		kind = types.TextMessage
	}

	if !kind.Valid() {
		msg.client.queueMessage(ErrInvalidMessage(msg.Id, "unknown message kind"))
		return
	}

	if kind == types.TextMessage && strings.TrimSpace(pub.Content) == "" {
		msg.client.queueMessage(ErrInvalidMessage(msg.Id, "content cannot be empty"))
		return
	}

	params := database.CreateMessageParams{
		RoomId:      r.id,
		SenderId:    msg.GetUserId(),
		Kind:        string(kind),
		Content:     pub.Content,
		Metadata:    pub.Metadata,
		ClientMsgId: pub.ClientMsgId,
	}
	if pub.ReplyToId != nil {
		params.ReplyToId = *pub.ReplyToId
	}

	saved, err := r.cs.db.CreateMessage(params)
	if err != nil {
		r.log.Println("CreateMessage:", err)
		switch {
		case errors.Is(err, database.ErrInvalidInput):
			msg.client.queueMessage(ErrInvalidMessage(msg.Id, "invalid message"))
		case errors.Is(err, database.ErrUnavailable):
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		default:
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	r.cs.stats.Incr(stats.MessagesSent)

	// sending a message ends the sender's typing state
	if err := r.cs.presence.ClearTyping(context.Background(), msg.GetUserId()); err != nil {
		r.log.Println("ClearTyping:", err)
	}

	msg.client.queueMessage(NoErrOK(msg.Id, map[string]any{
		"message_id": saved.Id,
		"created_at": saved.CreatedAt,
	}))

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: saved.CreatedAt,
		},
		Message: messageInfo(r.externalId, saved),
	})

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Typing: &TypingEvent{
				RoomId: r.externalId,
				UserId: msg.GetUserId(),
				Typing: false,
			},
		},
		SkipClient: msg.client,
	})

	// ping members who aren't attached to the live room
	for _, member := range r.members {
		if r.userMap[member.Id] != nil || !member.Notify {
			continue
		}

		r.cs.NotifyUser(member.Id, &ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Notification: &Notification{
				NewMessage: &MessagePing{
					RoomId:    r.externalId,
					MessageId: saved.Id,
				},
			},
		})
	}
}

func (r *Room) handleRead(msg *ClientMessage) {
	if err := r.cs.db.AdvanceLastRead(r.id, msg.GetUserId(), msg.Read.MessageId); err != nil {
		r.log.Println("AdvanceLastRead:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

func (r *Room) handleTyping(msg *ClientMessage) {
	userId := msg.GetUserId()

	ttl := r.cs.typingTTL
	if msg.Typing.TtlSeconds > 0 {
		ttl = time.Duration(msg.Typing.TtlSeconds) * time.Second
	}
	// the store caps the expiry, so the broadcast must report the same ttl
	if ttl > presence.MaxTypingTTL {
		ttl = presence.MaxTypingTTL
	}

	if msg.Typing.Stop {
		if err := r.cs.presence.ClearTyping(context.Background(), userId); err != nil {
			r.log.Println("ClearTyping:", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
			return
		}
	} else {
		if err := r.cs.presence.SetTyping(context.Background(), userId, r.externalId, ttl); err != nil {
			r.log.Println("SetTyping:", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
			return
		}
	}

	r.cs.stats.Incr(stats.TypingEvents)
	msg.client.queueMessage(NoErrAccepted(msg.Id))

	ttlSeconds := 0
	if !msg.Typing.Stop {
		ttlSeconds = int(ttl / time.Second)
	}

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Typing: &TypingEvent{
				RoomId:     r.externalId,
				UserId:     userId,
				Typing:     !msg.Typing.Stop,
				TtlSeconds: ttlSeconds,
			},
		},
		SkipClient: msg.client,
	})
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if userClients, ok := r.userMap[userId]; ok {
		for client := range userClients {
			delete(r.clients, client)
			client.delRoom(r.externalId)
		}
		delete(r.userMap, userId)
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}

func (r *Room) roomInfo(dbRoom *database.Room) types.Room {
	info := types.Room{
		Id:          dbRoom.Id,
		ExternalId:  dbRoom.ExternalId,
		Kind:        types.RoomKind(dbRoom.Kind),
		Name:        dbRoom.Name,
		Description: dbRoom.Description,
		OwnerId:     dbRoom.OwnerId,
		MemberCount: len(dbRoom.Members),
		CreatedAt:   dbRoom.CreatedAt,
		UpdatedAt:   dbRoom.UpdatedAt,
	}

	if dbRoom.LastMessageAt.Valid {
		t := dbRoom.LastMessageAt.Time
		info.LastMessageAt = &t
	}

	info.Members = make([]types.Member, len(dbRoom.Members))
	for i, m := range dbRoom.Members {
		member := memberInfo(m)
		member.IsPresent = r.userMap[m.UserId] != nil
		info.Members[i] = member
	}

	return info
}

func memberInfo(m database.Member) types.Member {
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

func messageInfo(roomExternalId string, msg database.Message) *types.Message {
	info := &types.Message{
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
		info.ReplyToId = &id
	}

	if msg.ClientMsgId.Valid {
		info.ClientMsgId = msg.ClientMsgId.String
	}

	if msg.IsDeleted {
		redacted := msg.Redacted()
		info.Content = redacted.Content
		info.Metadata = redacted.Metadata
	}

	return info
}
