package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/castlinker/chatd/internal/config"
	"github.com/castlinker/chatd/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func TestJwtRoundTrip(t *testing.T) {
	app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, nil, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})

	token, err := app.createJwtForSession(42, defaultJwtExpiration)
	assert.NoError(t, err, "failed to create jwt token")

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err, "failed to extract user id")
	assert.Equal(t, 42, userId, "expected user id to round-trip")
}

func TestJwtWrongKey(t *testing.T) {
	app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, nil, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})

	token, err := app.createJwtForSession(42, defaultJwtExpiration)
	assert.NoError(t, err, "failed to create jwt token")

	other := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, nil, nil, &config.Config{
		SigningKey: []byte("a-different-key"),
	})

	_, err = other.extractUserIdFromToken(token)
	assert.Error(t, err, "expected token signed with another key to be rejected")
}

func TestJwtExpired(t *testing.T) {
	app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, nil, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})

	token, err := app.createJwtForSession(42, -1)
	assert.NoError(t, err, "failed to create jwt token")

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err, "expected expired token to be rejected")
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("password123")
	assert.NoError(t, err, "failed to hash password")
	assert.NotEqual(t, "password123", hash, "expected hash to differ from the password")

	assert.True(t, verifyPassword(hash, "password123"), "expected correct password to verify")
	assert.False(t, verifyPassword(hash, "wrong-password"), "expected wrong password to fail")
}
