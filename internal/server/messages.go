package server

import (
	"net/http"
	"time"

	"github.com/castlinker/chatd/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a message received from a connected client. Exactly
// one of the operation fields is expected to be set.
type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Read    *Read    `json:"read,omitempty"`
	Typing  *Typing  `json:"typing,omitempty"`
	UserId  int      `json:"-"`
	client  *Client  `json:"-"`
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}

	if cm.client != nil {
		return cm.client.user.Id
	}

	return 0
}

type Publish struct {
	RoomId      string            `json:"room_id"`
	Kind        types.MessageKind `json:"kind,omitempty"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ReplyToId   *int64            `json:"reply_to_id,omitempty"`
	ClientMsgId string            `json:"client_msg_id,omitempty"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	Unsubscribe bool   `json:"unsubscribe,omitempty"`
	RoomId      string `json:"room_id"`
}

type Read struct {
	RoomId    string `json:"room_id"`
	MessageId int64  `json:"message_id"`
}

type Typing struct {
	RoomId     string `json:"room_id"`
	Stop       bool   `json:"stop,omitempty"`
	TtlSeconds int    `json:"ttl_seconds,omitempty"`
}

// ServerMessage is a message delivered to connected clients. UserId
// addresses all of a user's connections when the message travels
// through the chat server's broadcast channel.
type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
	UserId       int            `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence       *PresenceEvent    `json:"presence,omitempty"`
	Typing         *TypingEvent      `json:"typing,omitempty"`
	NewMessage     *MessagePing      `json:"new_message,omitempty"`
	MessageEdited  *types.Message    `json:"message_edited,omitempty"`
	MessageDeleted *MessageDeleted   `json:"message_deleted,omitempty"`
	Reaction       *ReactionEvent    `json:"reaction,omitempty"`
	Membership     *MembershipChange `json:"membership,omitempty"`
	Room           *types.Room       `json:"room,omitempty"`
	RoomDeleted    *RoomDeleted      `json:"room_deleted,omitempty"`
}

type PresenceEvent struct {
	Present bool   `json:"present"`
	UserId  int    `json:"user_id,omitempty"`
	RoomId  string `json:"room_id"`
}

type TypingEvent struct {
	RoomId     string `json:"room_id"`
	UserId     int    `json:"user_id"`
	Typing     bool   `json:"typing"`
	TtlSeconds int    `json:"ttl_seconds,omitempty"`
}

// MessagePing tells a member who is not joined to the live room that
// the room has a new message.
type MessagePing struct {
	RoomId    string `json:"room_id"`
	MessageId int64  `json:"message_id"`
}

type MessageDeleted struct {
	RoomId    string `json:"room_id"`
	MessageId int64  `json:"message_id"`
}

type ReactionEvent struct {
	RoomId    string `json:"room_id"`
	MessageId int64  `json:"message_id"`
	UserId    int    `json:"user_id"`
	Emoji     string `json:"emoji"`
	Count     int    `json:"count"`
	Reacted   bool   `json:"reacted"`
}

type MembershipChange struct {
	RoomId string     `json:"room_id"`
	Joined bool       `json:"joined"`
	User   types.User `json:"user"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrNotAMember(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not a member of this room",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int, reason string) *ServerMessage {
	if reason == "" {
		reason = "invalid message format"
	}

	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        reason,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
