package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeError_Error(t *testing.T) {
	err := errclass.ErrSession.WithMessage("connection refused")
	assert.Equal(t, "E_SESSION: connection refused", err.Error())
}

func TestBridgeError_Error_WithoutMessage(t *testing.T) {
	assert.Equal(t, "E_SYNC", errclass.ErrSync.Error())
}

func TestBridgeError_Is(t *testing.T) {
	err := errclass.ErrInitialization.WithMessage("specific message")
	require.True(t, errors.Is(err, errclass.ErrInitialization))
	require.False(t, errors.Is(err, errclass.ErrSession))
	require.False(t, errors.Is(err, errors.New("E_INITIALIZATION")))
}

func TestBridgeError_WithMessage_LeavesBaseUntouched(t *testing.T) {
	err1 := errclass.ErrSync.WithMessage("one")
	err2 := errclass.ErrSync.WithMessagef("two %d", 2)

	assert.Equal(t, "one", err1.Message)
	assert.Equal(t, "two 2", err2.Message)
	assert.Empty(t, errclass.ErrSync.Message)
	assert.Equal(t, errclass.StatusSync, err2.Status())
}

func TestBridgeError_Wrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", errors.New("connection refused"))

	err := errclass.ErrSession.Wrap(cause, "open session")
	assert.Equal(t, "E_SESSION: open session: dial tcp: connection refused", err.Error())
	assert.ErrorIs(t, err, errclass.ErrSession)
	assert.ErrorIs(t, err, cause)

	bare := errclass.ErrSession.Wrap(cause, "")
	assert.Equal(t, "E_SESSION: dial tcp: connection refused", bare.Error())

	noCause := errclass.ErrSession.Wrap(nil, "nothing")
	assert.Equal(t, "E_SESSION: nothing", noCause.Error())
	assert.Nil(t, errors.Unwrap(noCause))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errclass.Status
	}{
		{"nil", nil, errclass.StatusOK},
		{"init", errclass.ErrInitialization.WithMessage("x"), errclass.StatusInitialization},
		{"session", errclass.ErrSession.WithMessage("x"), errclass.StatusSession},
		{"sync", errclass.ErrSync, errclass.StatusSync},
		{"config", errclass.ErrConfigInvalid, errclass.StatusConfigInvalid},
		{"wrapped", fmt.Errorf("outer: %w", errclass.ErrSession.WithMessage("x")), errclass.StatusSession},
		{"unclassified", errors.New("boom"), errclass.StatusInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errclass.StatusOf(tt.err))
		})
	}
}

func TestClasses_StableStatuses(t *testing.T) {
	// Published values; changing any of these breaks managed callers.
	want := map[string]errclass.Status{
		"E_INITIALIZATION": 1,
		"E_SESSION":        2,
		"E_SYNC":           3,
		"E_CONFIG_INVALID": 4,
		"E_INTERNAL":       5,
	}
	classes := errclass.Classes()
	require.Len(t, classes, len(want))
	for _, c := range classes {
		assert.Equal(t, want[c.Code], c.Status(), c.Code)
	}
}
