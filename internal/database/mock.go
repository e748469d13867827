package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateGroupRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) CreateDirectRoom(externalId string, userA, userB int) (Room, bool, error) {
	args := m.Called(externalId, userA, userB)
	return args.Get(0).(Room), args.Bool(1), args.Error(2)
}
func (m *MockChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	args := m.Called(roomId)
	if room, ok := args.Get(0).(*Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) ListRoomsForUser(userId int) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockChatRepository) GetMember(roomId, userId int) (Member, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockChatRepository) AddMember(roomId, userId int, role string) (Member, error) {
	args := m.Called(roomId, userId, role)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockChatRepository) DeactivateMember(roomId, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) AdvanceLastRead(roomId, userId int, messageId int64) error {
	args := m.Called(roomId, userId, messageId)
	return args.Error(0)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessageById(messageId int64) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(roomId int, after, before int64, limit int) ([]Message, error) {
	args := m.Called(roomId, after, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) EditMessage(messageId int64, content string) (Message, error) {
	args := m.Called(messageId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) SoftDeleteMessage(messageId int64) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockChatRepository) ToggleReaction(messageId int64, userId int, emoji string) (ReactionCount, error) {
	args := m.Called(messageId, userId, emoji)
	return args.Get(0).(ReactionCount), args.Error(1)
}
func (m *MockChatRepository) GetReactions(messageId int64, userId int) ([]ReactionCount, error) {
	args := m.Called(messageId, userId)
	return args.Get(0).([]ReactionCount), args.Error(1)
}
