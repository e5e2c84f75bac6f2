package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Эталонный SHA-256 от "hello" (lowercase hex)
const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestHashTextDeterministic(t *testing.T) {
	assert.Equal(t, helloSHA256, HashText("hello"))
	assert.Equal(t, HashText("hello"), HashText("hello"))
	assert.NotEqual(t, HashText("hello"), HashText("hello "))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		claimed string
		want    bool
	}{
		{"matching hash", "hello", helloSHA256, true},
		{"mismatched hash", "hello", "deadbeef", false},
		{"uppercase hex rejected", "hello", "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", false},
		{"absent hash skips validation", "hello", "", true},
		{"unicode text", "привет 👋", HashText("привет 👋"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.text, tt.claimed))
		})
	}
}
