package database

import (
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	AvatarUrl    string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id            int
	ExternalId    string
	Kind          string
	Name          string
	Description   string
	OwnerId       int
	DirectKey     sql.NullString
	LastMessageAt sql.NullTime
	LastMessage   string
	MemberCount   int
	UnreadCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Members       []Member
}

type Member struct {
	Id                int
	RoomId            int
	UserId            int
	Username          string
	AvatarUrl         string
	Role              string
	JoinedAt          time.Time
	LastReadMessageId int64
	Active            bool
	Notify            bool
	PublicKey         sql.NullString
}

type Message struct {
	Id          int64
	RoomId      int
	SenderId    int
	ClientMsgId sql.NullString
	Kind        string
	Content     string
	Metadata    map[string]string
	ReplyToId   sql.NullInt64
	IsEdited    bool
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Redacted returns a copy of the message with its payload blanked out
// when the message is soft-deleted. Id, SenderId and CreatedAt are kept
// so reply threads stay intact.
func (m Message) Redacted() Message {
	if !m.IsDeleted {
		return m
	}

	m.Content = ""
	m.Metadata = nil
	return m
}

type ReactionCount struct {
	Emoji   string
	Count   int
	Reacted bool
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	AvatarUrl    string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	AvatarUrl    string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Description string
	OwnerId     int
	ExternalId  string
}

type CreateMessageParams struct {
	RoomId      int
	SenderId    int
	Kind        string
	Content     string
	Metadata    map[string]string
	ReplyToId   int64
	ClientMsgId string
}

// DirectKey builds the canonical pair key for a one_to_one room. The
// unique index on rooms.direct_key makes concurrent creation for the
// same pair collapse to a single row.
func DirectKey(userA, userB int) string {
	if userB < userA {
		userA, userB = userB, userA
	}

	return fmt.Sprintf("%d:%d", userA, userB)
}
