package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorIsMatchesByCode(t *testing.T) {
	wrapped := ErrPersistence.Wrap(errors.New("connection refused"))

	assert.ErrorIs(t, wrapped, ErrPersistence)
	assert.NotErrorIs(t, wrapped, ErrForbidden)
	assert.ErrorIs(t, fmt.Errorf("send: %w", wrapped), ErrPersistence)
}

func TestAppErrorUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrArchivalFailure.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPublicMessageHidesDetail(t *testing.T) {
	err := ErrPersistence.Wrap(errors.New("pq: relation messages does not exist"))

	assert.Equal(t, "storage unavailable, retry later", PublicMessage(err))
	assert.Equal(t, CodePersistence, CodeOf(err))
	assert.Equal(t, "internal error", PublicMessage(errors.New("boom")))
	assert.Equal(t, "internal", CodeOf(errors.New("boom")))
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := ErrInvalidRequest.WithMessage("text is empty")

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "text is empty", PublicMessage(err))
	assert.Equal(t, "invalid request", ErrInvalidRequest.Message)
}
