package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := InvalidInput("username is required")
	assert.Equal(t, "INVALID_INPUT: username is required", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
}

func TestAppError_WrapKeepsCause(t *testing.T) {
	cause := stderrors.New("redis down")
	err := Internal(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
}

func TestRoomFull_CarriesRoom(t *testing.T) {
	err := RoomFull("r1")
	assert.Equal(t, ErrCodeRoomFull, err.Code)
	assert.Equal(t, "r1", err.Details["room_id"])
}

func TestAs_FindsWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("issuing token: %w", Unauthorized("bad password"))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeUnauthorized, appErr.Code)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)

	_, ok = As(nil)
	assert.False(t, ok)
}
