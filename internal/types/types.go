package types

import (
	"time"
)

type RoomKind string

const (
	RoomOneToOne RoomKind = "one_to_one"
	RoomGroup    RoomKind = "group"
)

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

type MessageKind string

const (
	TextMessage     MessageKind = "text"
	ImageMessage    MessageKind = "image"
	VideoMessage    MessageKind = "video"
	AudioMessage    MessageKind = "audio"
	DocumentMessage MessageKind = "document"
	SystemMessage   MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case TextMessage, ImageMessage, VideoMessage, AudioMessage, DocumentMessage, SystemMessage:
		return true
	}
	return false
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id            int        `json:"id"`
	ExternalId    string     `json:"external_id"`
	Kind          RoomKind   `json:"kind"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	OwnerId       int        `json:"owner_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	LastMessage   string     `json:"last_message,omitempty"`
	MemberCount   int        `json:"member_count,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	Members       []Member   `json:"members,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at,omitempty"`
}

type Member struct {
	User
	Role              MemberRole `json:"role"`
	JoinedAt          time.Time  `json:"joined_at,omitempty"`
	LastReadMessageId int64      `json:"last_read_message_id,omitempty"`
	Notify            bool       `json:"notify"`
	IsPresent         bool       `json:"is_present"`
}

type Message struct {
	Id          int64             `json:"id"`
	RoomId      string            `json:"room_id"`
	SenderId    int               `json:"sender_id"`
	Kind        MessageKind       `json:"kind"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ReplyToId   *int64            `json:"reply_to_id,omitempty"`
	IsEdited    bool              `json:"is_edited,omitempty"`
	IsDeleted   bool              `json:"is_deleted,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
	ClientMsgId string            `json:"client_msg_id,omitempty"`
}

type ReactionCount struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	Reacted bool   `json:"reacted"`
}

type Presence struct {
	UserId       int            `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	LastActive   time.Time      `json:"last_active,omitempty"`
	TypingInRoom string         `json:"typing_in_room,omitempty"`
	TypingUntil  *time.Time     `json:"typing_until,omitempty"`
}
