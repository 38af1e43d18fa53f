package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("TestError", func(t *testing.T) {
		ErrBaseErr := New("base error")
		assert.Equal(t, "base error", ErrBaseErr.Error())
		assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
		assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

		ErrFirstLevel := ErrBaseErr.New("first level")
		assert.Equal(t, "first level", ErrFirstLevel.Error())
		assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

		ErrAnotherErr := New("another error")
		ErrAnotherErrMsg := ErrAnotherErr.Msg("another error msg")
		ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErrMsg)
		assert.Equal(t, "first level", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrFirstLevel)
		assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)

		err := errors.New("error")
		ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
		assert.Equal(t, "msg", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, err)

		ErrGoErr := fmt.Errorf("go error")
		assert.ErrorIs(t, ErrFirstLevel.Err(ErrGoErr), ErrGoErr)
	})
}

func TestKindAndStatusInheritance(t *testing.T) {
	ErrRequestFailed := New("request failed").SetKind("RequestFailed")

	derived := ErrRequestFailed.New("Animal not found").SetStatusCode(http.StatusNotFound)
	assert.Equal(t, "Animal not found", derived.Error())
	assert.Equal(t, Kind("RequestFailed"), derived.Kind())
	assert.Equal(t, http.StatusNotFound, derived.StatusCode())
	assert.ErrorIs(t, derived, ErrRequestFailed)

	// the template is untouched by derived copies
	assert.Equal(t, 0, ErrRequestFailed.StatusCode())
}

func TestKindOf(t *testing.T) {
	ErrOffline := New("offline").SetKind("NetworkUnavailable").SetStatusCode(0)

	wrapped := fmt.Errorf("loading animals: %w", ErrOffline.New("no route"))
	assert.Equal(t, Kind("NetworkUnavailable"), KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, 0, StatusCodeOf(errors.New("plain")))
	assert.Equal(t, http.StatusConflict, StatusCodeOf(ErrOffline.New("x").SetStatusCode(http.StatusConflict)))
}

func TestPrefix(t *testing.T) {
	err := New("tag number is required").Prefix("invalid animal")
	assert.Equal(t, "invalid animal: tag number is required", err.Error())
}
