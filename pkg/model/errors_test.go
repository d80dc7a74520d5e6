package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCanceled(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context.Canceled", context.Canceled, true},
		{"context.DeadlineExceeded", context.DeadlineExceeded, true},
		{"ErrCanceled", ErrCanceled, true},
		{"wrapped context.Canceled", fmt.Errorf("wrapped: %w", context.Canceled), true},
		{"wrapped ErrCanceled", fmt.Errorf("wrapped: %w", ErrCanceled), true},
		{"string contains context canceled", errors.New("sqlite: context canceled"), true},
		{"unrelated error", errors.New("some other error"), false},
		{"ErrNotFound", ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCanceled(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil))
	assert.Equal(t, ErrCanceled, WrapError(context.Canceled))
	assert.Equal(t, ErrCanceled, WrapError(context.DeadlineExceeded))
	assert.Equal(t, ErrNotFound, WrapError(ErrNotFound))
}

func TestErrorKinds(t *testing.T) {
	err := NewError(ErrNotFound, "entity missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrServer)
	assert.Equal(t, "NotFoundError: entity missing", err.Error())

	wrapped := fmt.Errorf("read: %w", Errorf(ErrQuery, "bad operator %s", "$foo"))
	assert.ErrorIs(t, wrapped, ErrQuery)

	var kerr *Error
	assert.True(t, errors.As(wrapped, &kerr))
	assert.Equal(t, "bad operator $foo", kerr.Message)

	assert.Equal(t, "KinveyError", ErrKinvey.Error())
}
