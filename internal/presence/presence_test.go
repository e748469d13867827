package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_presenceKey(t *testing.T) {
	assert.Equal(t, "presence:1", presenceKey(1), "expected presence key to include the user id")
	assert.Equal(t, "presence:42", presenceKey(42), "expected presence key to include the user id")
}

func Test_typingKey(t *testing.T) {
	assert.Equal(t, "typing:1", typingKey(1), "expected typing key to include the user id")
	assert.Equal(t, "typing:42", typingKey(42), "expected typing key to include the user id")
}
