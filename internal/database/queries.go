package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	addMemberQuery = "INSERT INTO room_members (room_id, user_id, role, joined_at) " +
		"VALUES ($1, $2, $3, $4) " +
		"ON CONFLICT (room_id, user_id) DO UPDATE SET active = TRUE, role = EXCLUDED.role " +
		"RETURNING id, room_id, user_id, role, joined_at, last_read_message_id, active, notify"

	messageColumns = "id, room_id, sender_id, client_msg_id, kind, content, metadata, " +
		"reply_to_id, is_edited, is_deleted, created_at, updated_at"
)

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, avatar_url, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, avatar_url, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.AvatarUrl,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarUrl,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, storeErr(err)
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, avatar_url = $3, password_hash = $4, updated_at = $5 "+
			"WHERE id = $1 RETURNING id, username, email, avatar_url, created_at, updated_at",
		params.UserId,
		params.Username,
		params.AvatarUrl,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.AvatarUrl,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, storeErr(err)
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, avatar_url, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.AvatarUrl,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, storeErr(err)
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, avatar_url, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.AvatarUrl,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, storeErr(err)
}

func (db *PgChatRepository) CreateGroupRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, kind, name, description, owner_id, created_at, updated_at) "+
			"VALUES ($1, 'group', $2, $3, $4, $5, $5) "+
			"RETURNING id, external_id, kind, name, description, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Description,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Kind,
		&room.Name,
		&room.Description,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, storeErr(err)
	}

	// the creator becomes the room admin
	_, err = tx.Exec(addMemberQuery, room.Id, params.OwnerId, "admin", time.Now().UTC())
	if err != nil {
		return Room{}, storeErr(err)
	}

	if err = tx.Commit(); err != nil {
		return Room{}, storeErr(err)
	}

	return room, nil
}

// CreateDirectRoom returns the one_to_one room for the pair, creating it
// if absent. The returned bool reports whether a new room was created.
// Concurrent calls for the same pair race on the direct_key unique index
// and both resolve to the winning row. The existing-room path reactivates
// both memberships so the returned room is always usable.
func (db *PgChatRepository) CreateDirectRoom(externalId string, userA, userB int) (Room, bool, error) {
	directKey := DirectKey(userA, userB)

	room, err := db.insertDirectRoom(externalId, directKey, userA, userB)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, ErrConflict) {
		return Room{}, false, err
	}

	// lost the race or the room already existed; return the winner
	room, err = db.roomByDirectKey(directKey)
	if err != nil {
		return Room{}, false, err
	}

	for _, userId := range []int{userA, userB} {
		if err := db.reactivateMember(room.Id, userId); err != nil {
			return Room{}, false, err
		}
	}

	return room, false, nil
}

func (db *PgChatRepository) insertDirectRoomTx(externalId, directKey string, userA, userB int) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, kind, direct_key, created_at, updated_at) "+
			"VALUES ($1, 'one_to_one', $2, $3, $3) "+
			"ON CONFLICT (direct_key) DO NOTHING "+
			"RETURNING id, external_id, kind, direct_key, created_at, updated_at",
		externalId,
		directKey,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Kind,
		&room.DirectKey,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// a row for the pair already exists
			return Room{}, ErrConflict
		}
		return Room{}, storeErr(err)
	}

	for _, userId := range []int{userA, userB} {
		if _, err = tx.Exec(addMemberQuery, room.Id, userId, "member", time.Now().UTC()); err != nil {
			return Room{}, storeErr(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, storeErr(err)
	}

	return room, nil
}

func (db *PgChatRepository) reactivateMemberRow(roomId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, 'member', $3) "+
			"ON CONFLICT (room_id, user_id) DO UPDATE SET active = TRUE",
		roomId,
		userId,
		time.Now().UTC(),
	)

	return storeErr(err)
}

func (db *PgChatRepository) getRoomByDirectKey(directKey string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, kind, direct_key, last_message_at, created_at, updated_at FROM rooms "+
			"WHERE direct_key = $1 LIMIT 1",
		directKey,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Kind,
		&room.DirectKey,
		&room.LastMessageAt,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, storeErr(err)
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, kind, name, description, COALESCE(owner_id, 0), last_message_at, "+
			"created_at, updated_at FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Kind,
		&room.Name,
		&room.Description,
		&room.OwnerId,
		&room.LastMessageAt,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, storeErr(err)
}

func (db *PgChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	query := `
		SELECT
				r.id AS room_id,
				r.external_id,
				r.kind,
				r.name AS room_name,
				r.description,
				COALESCE(r.owner_id, 0),
				r.last_message_at,
				r.created_at AS room_created_at,
				r.updated_at AS room_updated_at,
				m.id,
				m.user_id,
				a.username,
				a.avatar_url,
				m.role,
				m.joined_at,
				m.last_read_message_id,
				m.notify
		FROM rooms r
		LEFT JOIN room_members m ON r.id = m.room_id AND m.active
		LEFT JOIN accounts a ON m.user_id = a.id
		WHERE r.id = $1;
`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, fmt.Errorf("fetch room with members: %w", storeErr(err))
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			id                int
			externalId        string
			kind              string
			roomName          string
			description       string
			ownerId           int
			lastMessageAt     sql.NullTime
			roomCreatedAt     time.Time
			roomUpdatedAt     time.Time
			memberId          sql.NullInt64
			userId            sql.NullInt64
			username          sql.NullString
			avatarUrl         sql.NullString
			role              sql.NullString
			joinedAt          sql.NullTime
			lastReadMessageId sql.NullInt64
			notify            sql.NullBool
		)

		err := rows.Scan(
			&id,
			&externalId,
			&kind,
			&roomName,
			&description,
			&ownerId,
			&lastMessageAt,
			&roomCreatedAt,
			&roomUpdatedAt,
			&memberId,
			&userId,
			&username,
			&avatarUrl,
			&role,
			&joinedAt,
			&lastReadMessageId,
			&notify,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			room = &Room{
				Id:            id,
				ExternalId:    externalId,
				Kind:          kind,
				Name:          roomName,
				Description:   description,
				OwnerId:       ownerId,
				LastMessageAt: lastMessageAt,
				CreatedAt:     roomCreatedAt,
				UpdatedAt:     roomUpdatedAt,
				Members:       make([]Member, 0),
			}
		}

		if userId.Valid && username.Valid {
			room.Members = append(room.Members, Member{
				Id:                int(memberId.Int64),
				RoomId:            id,
				UserId:            int(userId.Int64),
				Username:          username.String,
				AvatarUrl:         avatarUrl.String,
				Role:              role.String,
				JoinedAt:          joinedAt.Time,
				LastReadMessageId: lastReadMessageId.Int64,
				Active:            true,
				Notify:            notify.Bool,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", storeErr(err))
	}

	if room == nil {
		return nil, ErrNotFound
	}

	room.MemberCount = len(room.Members)
	return room, nil
}

func (db *PgChatRepository) ListRoomsForUser(userId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.kind, r.name, r.description, COALESCE(r.owner_id, 0), "+
			"r.last_message_at, r.created_at, r.updated_at, "+
			"(SELECT count(*) FROM room_members m2 WHERE m2.room_id = r.id AND m2.active) AS member_count, "+
			"(SELECT count(*) FROM messages msg WHERE msg.room_id = r.id "+
			"AND msg.id > m.last_read_message_id AND msg.sender_id <> m.user_id AND NOT msg.is_deleted) AS unread_count, "+
			"COALESCE((SELECT CASE WHEN msg.is_deleted THEN '' ELSE msg.content END FROM messages msg "+
			"WHERE msg.room_id = r.id ORDER BY msg.created_at DESC, msg.id DESC LIMIT 1), '') AS last_message "+
			"FROM room_members m JOIN rooms r ON r.id = m.room_id "+
			"WHERE m.user_id = $1 AND m.active "+
			"ORDER BY r.last_message_at DESC NULLS LAST, r.id DESC",
		userId,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		err = rows.Scan(
			&room.Id,
			&room.ExternalId,
			&room.Kind,
			&room.Name,
			&room.Description,
			&room.OwnerId,
			&room.LastMessageAt,
			&room.CreatedAt,
			&room.UpdatedAt,
			&room.MemberCount,
			&room.UnreadCount,
			&room.LastMessage,
		)
		if err != nil {
			break
		}

		rooms = append(rooms, room)
	}

	return rooms, storeErr(err)
}

func (db *PgChatRepository) DeleteRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM message_reactions WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)", roomId)
	if err != nil {
		return storeErr(err)
	}

	_, err = tx.Exec("DELETE FROM room_members WHERE room_id = $1", roomId)
	if err != nil {
		return storeErr(err)
	}

	_, err = tx.Exec("UPDATE messages SET reply_to_id = NULL WHERE room_id = $1", roomId)
	if err != nil {
		return storeErr(err)
	}

	_, err = tx.Exec("DELETE FROM messages WHERE room_id = $1", roomId)
	if err != nil {
		return storeErr(err)
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return storeErr(err)
	}

	return storeErr(tx.Commit())
}

func (db *PgChatRepository) GetMember(roomId, userId int) (Member, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.room_id, m.user_id, a.username, a.avatar_url, m.role, m.joined_at, "+
			"m.last_read_message_id, m.active, m.notify, m.public_key "+
			"FROM room_members m JOIN accounts a ON a.id = m.user_id "+
			"WHERE m.room_id = $1 AND m.user_id = $2 AND m.active LIMIT 1",
		roomId,
		userId,
	)

	var member Member
	err := row.Scan(
		&member.Id,
		&member.RoomId,
		&member.UserId,
		&member.Username,
		&member.AvatarUrl,
		&member.Role,
		&member.JoinedAt,
		&member.LastReadMessageId,
		&member.Active,
		&member.Notify,
		&member.PublicKey,
	)

	return member, storeErr(err)
}

func (db *PgChatRepository) AddMember(roomId, userId int, role string) (Member, error) {
	res := db.conn.QueryRow(addMemberQuery, roomId, userId, role, time.Now().UTC())

	var member Member
	err := res.Scan(
		&member.Id,
		&member.RoomId,
		&member.UserId,
		&member.Role,
		&member.JoinedAt,
		&member.LastReadMessageId,
		&member.Active,
		&member.Notify,
	)

	return member, storeErr(err)
}

func (db *PgChatRepository) DeactivateMember(roomId, userId int) error {
	res, err := db.conn.Exec(
		"UPDATE room_members SET active = FALSE WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)
	if err != nil {
		return storeErr(err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// AdvanceLastRead moves the member's read marker forward. A stale
// marker is ignored so the marker never goes backwards.
func (db *PgChatRepository) AdvanceLastRead(roomId, userId int, messageId int64) error {
	_, err := db.conn.Exec(
		"UPDATE room_members SET last_read_message_id = $3 "+
			"WHERE room_id = $1 AND user_id = $2 AND last_read_message_id < $3",
		roomId,
		userId,
		messageId,
	)

	return storeErr(err)
}

// CreateMessage durably appends a message and advances the room's
// last_message_at in one transaction. When a client_msg_id is supplied
// and a message with that token already exists, the existing message is
// returned, making client retries idempotent.
func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	if params.ReplyToId > 0 {
		var replyRoomId int
		err := db.conn.QueryRow("SELECT room_id FROM messages WHERE id = $1 LIMIT 1", params.ReplyToId).
			Scan(&replyRoomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Message{}, fmt.Errorf("%w: reply target does not exist", ErrInvalidInput)
			}
			return Message{}, storeErr(err)
		}

		if replyRoomId != params.RoomId {
			return Message{}, fmt.Errorf("%w: reply target in different room", ErrInvalidInput)
		}
	}

	var metadata []byte
	if len(params.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(params.Metadata)
		if err != nil {
			return Message{}, fmt.Errorf("%w: bad metadata", ErrInvalidInput)
		}
	}

	msg, err := db.insertMessage(params, metadata)
	if err != nil && errors.Is(err, ErrConflict) && params.ClientMsgId != "" {
		// duplicate send with the same dedup token
		return db.messageByClientMsgId(params.ClientMsgId)
	}

	return msg, err
}

func (db *PgChatRepository) insertMessageTx(params CreateMessageParams, metadata []byte) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var clientMsgId sql.NullString
	if params.ClientMsgId != "" {
		clientMsgId = sql.NullString{String: params.ClientMsgId, Valid: true}
	}

	var replyToId sql.NullInt64
	if params.ReplyToId > 0 {
		replyToId = sql.NullInt64{Int64: params.ReplyToId, Valid: true}
	}

	// created_at is assigned server-side in the same statement as the id,
	// so the (created_at, id) ordering key never disagrees with id order
	res := tx.QueryRow(
		"INSERT INTO messages (room_id, sender_id, client_msg_id, kind, content, metadata, reply_to_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now()) RETURNING id, created_at, updated_at",
		params.RoomId,
		params.SenderId,
		clientMsgId,
		params.Kind,
		params.Content,
		metadata,
		replyToId,
	)

	msg := Message{
		RoomId:      params.RoomId,
		SenderId:    params.SenderId,
		ClientMsgId: clientMsgId,
		Kind:        params.Kind,
		Content:     params.Content,
		Metadata:    params.Metadata,
		ReplyToId:   replyToId,
	}
	if err = res.Scan(&msg.Id, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return Message{}, storeErr(err)
	}

	// last_message_at only moves forward
	_, err = tx.Exec(
		"UPDATE rooms SET last_message_at = $2, updated_at = $2 "+
			"WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $2)",
		params.RoomId,
		msg.CreatedAt,
	)
	if err != nil {
		return Message{}, storeErr(err)
	}

	if err = tx.Commit(); err != nil {
		return Message{}, storeErr(err)
	}

	return msg, nil
}

func (db *PgChatRepository) getMessageByClientMsgId(clientMsgId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE client_msg_id = $1 LIMIT 1",
		clientMsgId,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetMessageById(messageId int64) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		messageId,
	)

	return scanMessage(row)
}

// GetMessages returns messages in ordering-key order (created_at, id
// ascending). When before is set the page is the newest messages below
// the cursor; when after is set the page is the oldest above it.
func (db *PgChatRepository) GetMessages(roomId int, after, before int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var upper int64 = 1<<63 - 1
	if before > 0 {
		upper = before
	}

	query := "SELECT " + messageColumns + " FROM messages " +
		"WHERE room_id = $1 AND id > $2 AND id < $3 ORDER BY created_at, id LIMIT $4"
	if before > 0 && after == 0 {
		// page backwards from the cursor, newest first, then restore order
		query = "SELECT * FROM (SELECT " + messageColumns + " FROM messages " +
			"WHERE room_id = $1 AND id > $2 AND id < $3 ORDER BY created_at DESC, id DESC LIMIT $4) page " +
			"ORDER BY created_at, id"
	}

	rows, err := db.conn.Query(query, roomId, after, upper, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if msg, err = scanMessage(rows); err != nil {
			break
		}

		messages = append(messages, msg.Redacted())
	}

	return messages, storeErr(err)
}

func (db *PgChatRepository) EditMessage(messageId int64, content string) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET content = $2, is_edited = TRUE, updated_at = $3 "+
			"WHERE id = $1 AND NOT is_deleted RETURNING "+messageColumns,
		messageId,
		content,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) SoftDeleteMessage(messageId int64) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_deleted = TRUE, updated_at = $2 WHERE id = $1",
		messageId,
		time.Now().UTC(),
	)
	if err != nil {
		return storeErr(err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// ToggleReaction removes the user's reaction if present, otherwise adds
// it, and returns the resulting aggregate count for the emoji. The row
// primary key keeps concurrent toggles from different users independent.
func (db *PgChatRepository) ToggleReaction(messageId int64, userId int, emoji string) (ReactionCount, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return ReactionCount{}, storeErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(
		"DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3",
		messageId,
		userId,
		emoji,
	)
	if err != nil {
		return ReactionCount{}, storeErr(err)
	}

	rc := ReactionCount{Emoji: emoji}

	deleted, _ := res.RowsAffected()
	if deleted == 0 {
		_, err = tx.Exec(
			"INSERT INTO message_reactions (message_id, user_id, emoji, created_at) "+
				"VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING",
			messageId,
			userId,
			emoji,
			time.Now().UTC(),
		)
		if err != nil {
			return ReactionCount{}, storeErr(err)
		}
		rc.Reacted = true
	}

	err = tx.QueryRow(
		"SELECT count(*) FROM message_reactions WHERE message_id = $1 AND emoji = $2",
		messageId,
		emoji,
	).Scan(&rc.Count)
	if err != nil {
		return ReactionCount{}, storeErr(err)
	}

	if err = tx.Commit(); err != nil {
		return ReactionCount{}, storeErr(err)
	}

	return rc, nil
}

func (db *PgChatRepository) GetReactions(messageId int64, userId int) ([]ReactionCount, error) {
	rows, err := db.conn.Query(
		"SELECT emoji, count(*), bool_or(user_id = $2) FROM message_reactions "+
			"WHERE message_id = $1 GROUP BY emoji ORDER BY emoji",
		messageId,
		userId,
	)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var counts = make([]ReactionCount, 0)
	for rows.Next() {
		var rc ReactionCount
		if err = rows.Scan(&rc.Emoji, &rc.Count, &rc.Reacted); err != nil {
			break
		}

		counts = append(counts, rc)
	}

	return counts, storeErr(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	var metadata []byte
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.ClientMsgId,
		&msg.Kind,
		&msg.Content,
		&metadata,
		&msg.ReplyToId,
		&msg.IsEdited,
		&msg.IsDeleted,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, storeErr(err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return Message{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return msg, nil
}
