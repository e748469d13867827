package database

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateGroupRoom(params CreateRoomParams) (Room, error)
	CreateDirectRoom(externalId string, userA, userB int) (Room, bool, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithMembers(roomId int) (*Room, error)
	ListRoomsForUser(userId int) ([]Room, error)
	DeleteRoom(roomId int) error
	GetMember(roomId, userId int) (Member, error)
	AddMember(roomId, userId int, role string) (Member, error)
	DeactivateMember(roomId, userId int) error
	AdvanceLastRead(roomId, userId int, messageId int64) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(messageId int64) (Message, error)
	GetMessages(roomId int, after, before int64, limit int) ([]Message, error)
	EditMessage(messageId int64, content string) (Message, error)
	SoftDeleteMessage(messageId int64) error
	ToggleReaction(messageId int64, userId int, emoji string) (ReactionCount, error)
	GetReactions(messageId int64, userId int) ([]ReactionCount, error)
}
