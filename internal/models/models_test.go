package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_String(t *testing.T) {
	u := User{ID: 7, Username: "testuser", Email: "test@test.com"}
	assert.Equal(t, "<User #7: testuser, test@test.com>", u.String())
}

func TestMessage_String(t *testing.T) {
	m := Message{ID: 3, UserID: 7}
	assert.Equal(t, "<Message #3, Author ID:7>", m.String())
}

func TestUser_ApplyImageDefaults(t *testing.T) {
	u := User{}
	u.ApplyImageDefaults()
	assert.Equal(t, DefaultImageURL, u.ImageURL)
	assert.Equal(t, DefaultHeaderImageURL, u.HeaderImageURL)

	custom := User{ImageURL: "http://img/a.png", HeaderImageURL: "http://img/b.png"}
	custom.ApplyImageDefaults()
	assert.Equal(t, "http://img/a.png", custom.ImageURL)
	assert.Equal(t, "http://img/b.png", custom.HeaderImageURL)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", NewNotFoundError("User", 1), CodeNotFound},
		{"wrapped conflict", fmt.Errorf("signup: %w", NewConflictError("taken", nil)), CodeConflict},
		{"plain error", errors.New("boom"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	root := errors.New("db down")
	err := NewInternalError(root)

	assert.ErrorIs(t, err, root)
	assert.Equal(t, "Internal server error: db down", err.Error())
}
