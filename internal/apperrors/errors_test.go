package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("title is required"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("Invalid email or password"), http.StatusUnauthorized},
		{"forbidden", Forbidden("You do not own this task"), http.StatusForbidden},
		{"not found", NotFound("Task not found"), http.StatusNotFound},
		{"conflict", Conflict("email taken"), http.StatusConflict},
		{"wrapped", fmt.Errorf("service: %w", NotFound("Task not found")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("get task: %w", Forbidden("You do not own this task"))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPublicMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("dial tcp: refused")))
	assert.Equal(t, "Task not found", PublicMessage(NotFound("Task not found")))

	wrapped := Wrap(KindConflict, "An account with this email already exists", errors.New("duplicate"))
	assert.Equal(t, "An account with this email already exists", PublicMessage(wrapped))
	assert.ErrorIs(t, wrapped, ErrConflict)
}
