package server

import (
	"context"
	"testing"
	"time"

	"github.com/castlinker/chatd/internal/database"
	"github.com/castlinker/chatd/internal/presence"
	"github.com/castlinker/chatd/internal/stats"
	"github.com/castlinker/chatd/internal/testutil"
	"github.com/castlinker/chatd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestChatServer creates a ChatServer backed by mocks. The caller
// decides whether to run the event loop.
func newTestChatServer(t *testing.T, db database.ChatRepository, ps presence.Store, su *stats.MockStatsUpdater) *ChatServer {
	t.Helper()

	su.On("RegisterMetric", mock.Anything).Return().Times(5)

	cs, err := NewChatServer(testutil.TestLogger(t), db, ps, su, time.Second)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return().Times(5)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, nil, su, 0)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, database.ChatRepository(db), cs.db, "expected database repository to be set")
	assert.Equal(t, presence.DefaultTypingTTL, cs.typingTTL, "expected default typing ttl")
	assert.NotNil(t, cs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, cs.broadcastChan, "expected broadcastChan to be initialized")
	assert.NotNil(t, cs.routeChan, "expected routeChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.userClients, "expected userClients map to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, nil, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded when loop is not running", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, nil, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error")
	})

	t.Run("successful shutdown with active rooms", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockChatRepository{}, nil, su)

		room := newRoom(cs, database.Room{Id: 1, ExternalId: "testroom"})
		cs.rooms[room.externalId] = room
		go room.start()
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown with active rooms")
	})
}

func TestChatServer_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", stats.ActiveConnections).Return().Once()
	su.On("Decr", stats.ActiveConnections).Return().Once()

	cs := newTestChatServer(t, &database.MockChatRepository{}, nil, su)

	c := NewClient(types.User{Id: 1, Username: "testuser"}, nil, cs, cs.log)
	cs.addClient(c)
	assert.Contains(t, cs.clients, c, "expected clients to contain the connection")
	assert.Contains(t, cs.userClients, c.user.Id, "expected userClients entry for the user")

	cs.removeClient(c)
	assert.NotContains(t, cs.clients, c, "expected connection to be removed")
	assert.NotContains(t, cs.userClients, c.user.Id, "expected userClients entry to be dropped")

	// removing twice is a no-op
	cs.removeClient(c)
}

func TestNotifyUser(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.ActiveConnections).Return().Once()

	cs := newTestChatServer(t, &database.MockChatRepository{}, nil, su)

	c := NewClient(types.User{Id: 1, Username: "testuser"}, nil, cs, cs.log)
	cs.addClient(c)

	other := NewClient(types.User{Id: 2, Username: "other"}, nil, cs, cs.log)

	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	cs.NotifyUser(1, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			NewMessage: &MessagePing{RoomId: "testroom", MessageId: 7},
		},
	})

	select {
	case msg := <-c.send:
		assert.NotNil(t, msg.Notification, "expected a notification")
		assert.Equal(t, int64(7), msg.Notification.NewMessage.MessageId, "expected message id to match")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}

	select {
	case <-other.send:
		t.Fatal("expected no delivery to an unrelated user")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouteRoomEvent(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockChatRepository{}, nil, su)

	room := newRoom(cs, database.Room{Id: 1, ExternalId: "testroom"})
	cs.rooms[room.externalId] = room

	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})
	go room.start()

	ev := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Reaction: &ReactionEvent{RoomId: room.externalId, MessageId: 7, Emoji: "👍", Count: 1},
		},
	}
	cs.RouteRoomEvent(room.externalId, ev)

	// events for unloaded rooms are silently dropped
	cs.RouteRoomEvent("no-such-room", ev)
}

func TestUnloadRoom(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Decr", stats.LoadedRooms).Return().Once()

	cs := newTestChatServer(t, &database.MockChatRepository{}, nil, su)

	room := newRoom(cs, database.Room{Id: 1, ExternalId: "testroom"})
	cs.rooms[room.externalId] = room
	go room.start()
	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := cs.UnloadRoom(ctx, room.externalId, false)
	assert.NoError(t, err, "expected unload to complete")

	err = cs.Shutdown(ctx)
	assert.NoError(t, err, "expected shutdown after unload")
	assert.Empty(t, cs.rooms, "expected no rooms after unload")
}

func TestHandleJoinRequest(t *testing.T) {
	dbRoom := database.Room{Id: 1, ExternalId: "testroom", Kind: string(types.RoomGroup)}
	withMembers := dbRoom
	withMembers.Members = []database.Member{
		{RoomId: 1, UserId: 1, Username: "testuser", Role: string(types.RoleAdmin), Active: true, Notify: true},
	}

	t.Run("loads the room and joins", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", dbRoom.ExternalId).Return(dbRoom, nil).Once()
		mockRepo.On("GetMember", dbRoom.Id, 1).Return(withMembers.Members[0], nil).Once()
		mockRepo.On("GetRoomWithMembers", dbRoom.Id).Return(&withMembers, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.LoadedRooms).Return().Once()
		su.On("Decr", stats.LoadedRooms).Return().Maybe()

		cs := newTestChatServer(t, mockRepo, nil, su)
		go cs.Run()
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			cs.Shutdown(ctx)
		})

		c := NewClient(types.User{Id: 1, Username: "testuser"}, nil, cs, cs.log)

		cs.joinChan <- &ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: dbRoom.ExternalId},
			UserId:      1,
			client:      c,
		}

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response, "expected a join response")
			assert.Equal(t, 200, msg.Response.ResponseCode, "expected join to succeed")

			room, ok := msg.Response.Data.(types.Room)
			assert.True(t, ok, "expected room info in response data")
			assert.Equal(t, dbRoom.ExternalId, room.ExternalId)
			assert.Len(t, room.Members, 1, "expected member snapshot in room info")
			assert.True(t, room.Members[0].IsPresent, "expected the joining user to be present")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for join response")
		}
	})

	t.Run("responds with room not found", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomByExternalId", "missing").Return(database.Room{}, database.ErrNotFound).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, mockRepo, nil, su)
		go cs.Run()
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			cs.Shutdown(ctx)
		})

		c := NewClient(types.User{Id: 1, Username: "testuser"}, nil, cs, cs.log)

		cs.joinChan <- &ClientMessage{
			BaseMessage: BaseMessage{Id: 2, Timestamp: Now()},
			Join:        &Join{RoomId: "missing"},
			UserId:      1,
			client:      c,
		}

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response, "expected a response")
			assert.Equal(t, 404, msg.Response.ResponseCode, "expected a not found response")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for response")
		}
	})
}
