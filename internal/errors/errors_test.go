package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(10003, "Invalid token."),
			expected: "[10003] Invalid token.",
		},
		{
			name:     "with wrapped error",
			err:      NewError(10003, "Invalid token.").Wrap(errors.New("signature is invalid")),
			expected: "[10003] Invalid token.: signature is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_WrapKeepsCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ErrStoreUnavailable.Wrap(cause)

	assert.Equal(t, CodeStoreUnavailable, err.Code)
	assert.Equal(t, ErrStoreUnavailable.Message, err.Message)
	assert.ErrorIs(t, err, cause)
	// 包装不应修改预定义错误
	assert.Nil(t, ErrStoreUnavailable.Err)
}

func TestIs(t *testing.T) {
	wrapped := fmt.Errorf("handshake: %w", ErrTokenExpired.Wrap(errors.New("exp claim")))

	assert.True(t, Is(wrapped, ErrTokenExpired))
	assert.False(t, Is(wrapped, ErrTokenInvalid))
	assert.False(t, Is(errors.New("plain"), ErrTokenExpired))
	assert.False(t, Is(nil, ErrTokenExpired))
}

func TestAppError_StdlibIs(t *testing.T) {
	err := fmt.Errorf("auth: %w", ErrTokenRevoked.Wrap(errors.New("blocked")))

	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}

func TestWrapNil(t *testing.T) {
	assert.Same(t, ErrTokenMissing, ErrTokenMissing.Wrap(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"auth", ErrTokenExpired, 401},
		{"wrapped auth", fmt.Errorf("gate: %w", ErrTokenRevoked.Wrap(errors.New("x"))), 401},
		{"event", ErrEmptyRoomName, 400},
		{"store", ErrStoreUnavailable, 503},
		{"plain", errors.New("boom"), 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestFrom_HidesCause(t *testing.T) {
	cause := errors.New("redis: connection refused")
	appErr := From(cause)

	assert.Equal(t, CodeServerError, appErr.Code)
	assert.Equal(t, "Internal server error.", appErr.Message)
	assert.ErrorIs(t, appErr, cause)
}

func TestGetCodeAndMessage(t *testing.T) {
	assert.Equal(t, CodeTokenMissing, GetCode(ErrTokenMissing))
	assert.Equal(t, "Token is missing.", GetMessage(ErrTokenMissing))

	plain := errors.New("boom")
	assert.Equal(t, CodeServerError, GetCode(plain))
	assert.Equal(t, "Internal server error.", GetMessage(plain))
}
