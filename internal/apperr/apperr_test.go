package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	errExpired := New(Expired, "expired_code", "attendance code has expired")
	errInvalid := New(NotFound, "invalid_code", "invalid attendance code")

	wrapped := fmt.Errorf("submit: %w", errExpired.Wrap(errors.New("boom")))

	assert.True(t, errors.Is(wrapped, errExpired))
	assert.False(t, errors.Is(wrapped, errInvalid))
	assert.Equal(t, Expired, KindOf(wrapped))
	assert.Equal(t, "expired_code", As(wrapped).Code)
}

func TestKindOfUnclassified(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, Storage, KindOf(err))
	e := As(err)
	assert.Equal(t, "storage_error", e.Code)
	assert.Equal(t, "storage unavailable", e.Message)
	assert.ErrorIs(t, e, err)
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Validation, "validation"},
		{NotFound, "not_found"},
		{Expired, "expired"},
		{Conflict, "conflict"},
		{Forbidden, "forbidden"},
		{Storage, "storage"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
