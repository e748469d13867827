package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/castlinker/chatd/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestGetUserId(t *testing.T) {
	t.Run("extracts id from UserId", func(t *testing.T) {
		cm := &ClientMessage{
			BaseMessage: BaseMessage{
				Id:        1,
				Timestamp: Now(),
			},
			UserId: 42,
		}

		res := cm.GetUserId()
		assert.Equal(t, 42, res, "expected UserId to be returned directly")
	})

	t.Run("extracts id from client", func(t *testing.T) {
		cm := &ClientMessage{
			BaseMessage: BaseMessage{
				Id:        1,
				Timestamp: Now(),
			},
			client: &Client{
				user: types.User{
					Id: 42,
				},
			},
		}

		res := cm.GetUserId()
		assert.Equal(t, 42, res, "expected UserId to be extracted from client user")
	})
}

func TestNoErrOk(t *testing.T) {
	result := NoErrOK(1, map[string]any{
		"testkey": "testvalue",
	})

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.WithinDuration(t, Now(), result.Timestamp, time.Second, "expected Timestamp to be within 1 second")
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data, "expected Data to match")
}

func TestNoErrAccepted(t *testing.T) {
	result := NoErrAccepted(1)

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusAccepted, result.Response.ResponseCode, "expected ResponseCode to match")
}

func TestErrRoomNotFound(t *testing.T) {
	result := ErrRoomNotFound(1)

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusNotFound, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "room not found", result.Response.Error, "expected Error message to match")
}

func TestErrNotAMember(t *testing.T) {
	result := ErrNotAMember(1)

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusForbidden, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "not a member of this room", result.Response.Error, "expected Error message to match")
}

func TestErrInvalidMessage(t *testing.T) {
	t.Run("with custom reason", func(t *testing.T) {
		result := ErrInvalidMessage(1, "content cannot be empty")

		assert.Equal(t, 1, result.Id, "expected Id to match")
		assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
		assert.Equal(t, "content cannot be empty", result.Response.Error, "expected Error message to match")
	})

	t.Run("with default reason", func(t *testing.T) {
		result := ErrInvalidMessage(0, "")

		assert.Equal(t, 0, result.Id, "expected no Id")
		assert.Equal(t, "invalid message format", result.Response.Error, "expected default Error message")
	})
}

func TestErrServiceUnavailable(t *testing.T) {
	result := ErrServiceUnavailable(7)

	assert.Equal(t, 7, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusServiceUnavailable, result.Response.ResponseCode, "expected ResponseCode to match")
}

func TestClientMessageDecoding(t *testing.T) {
	raw := `{
		"id": 3,
		"publish": {
			"room_id": "EoGKUXPHgz",
			"content": "hello",
			"client_msg_id": "retry-1"
		}
	}`

	var cm ClientMessage
	err := json.Unmarshal([]byte(raw), &cm)
	assert.NoError(t, err, "failed to decode client message")
	assert.Equal(t, 3, cm.Id)
	assert.NotNil(t, cm.Publish, "expected publish operation to be set")
	assert.Equal(t, "EoGKUXPHgz", cm.Publish.RoomId)
	assert.Equal(t, "hello", cm.Publish.Content)
	assert.Equal(t, "retry-1", cm.Publish.ClientMsgId)
	assert.Nil(t, cm.Join, "expected join to be unset")
}

func TestServerMessageEncoding(t *testing.T) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Typing: &TypingEvent{
				RoomId:     "EoGKUXPHgz",
				UserId:     2,
				Typing:     true,
				TtlSeconds: 5,
			},
		},
		SkipClient: &Client{},
		UserId:     2,
	}

	data, err := json.Marshal(msg)
	assert.NoError(t, err, "failed to encode server message")

	// routing-only fields never reach the wire
	assert.NotContains(t, string(data), "SkipClient")
	assert.NotContains(t, string(data), "UserId")
	assert.Contains(t, string(data), `"typing":true`)
}
