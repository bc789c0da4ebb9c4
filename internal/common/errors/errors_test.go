// Package errors 错误码和错误处理单元测试
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndWithError(t *testing.T) {
	err := New(2000, "table not found")
	require.NotNil(t, err)
	assert.Equal(t, 2000, err.Code)
	assert.Nil(t, err.Err)

	cause := stderrors.New("connection refused")
	wrapped := ErrFetchRows.WithError(cause)
	assert.Equal(t, cause, wrapped.Err)
	assert.Equal(t, cause, stderrors.Unwrap(wrapped))
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "[2000] table not found", ErrTableNotFound.Error())
	assert.Equal(t,
		"[2001] failed to fetch rows: timeout",
		ErrFetchRows.WithError(stderrors.New("timeout")).Error(),
	)
}

func TestAppError_Is(t *testing.T) {
	err := fmt.Errorf("list rows: %w", ErrFetchRows.WithError(stderrors.New("503")))

	assert.True(t, Is(err, ErrFetchRows))
	assert.False(t, Is(err, ErrTableNotFound))
	assert.False(t, Is(err, stderrors.New("other")))
}

func TestWithMessage_KeepsCode(t *testing.T) {
	err := ErrTableNotFound.WithMessage("table Общак not found")
	assert.Equal(t, ErrTableNotFound.Code, err.Code)
	assert.True(t, Is(err, ErrTableNotFound))
	// 原始哨兵错误不被修改
	assert.Equal(t, "table not found", ErrTableNotFound.Message)
}

func TestGetAppError(t *testing.T) {
	t.Run("wrapped app error", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", ErrCreateRow)
		assert.Equal(t, ErrCreateRow.Code, GetAppError(err).Code)
	})

	t.Run("plain error becomes unknown", func(t *testing.T) {
		plain := stderrors.New("boom")
		appErr := GetAppError(plain)
		assert.Equal(t, ErrUnknown.Code, appErr.Code)
		assert.Equal(t, plain, appErr.Err)
	})
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		degradable bool
		bestEffort bool
	}{
		{"nil", nil, false, false},
		{"table not found", ErrTableNotFound, true, false},
		{"fetch rows", ErrFetchRows.WithError(stderrors.New("x")), true, false},
		{"row parse", ErrRowParse, true, false},
		{"create row", ErrCreateRow, false, true},
		{"ensure field", ErrEnsureField, false, true},
		{"store unavailable", ErrStoreUnavailable, false, false},
		{"notify failed", ErrNotifyFailed, false, false},
		{"plain", stderrors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.degradable, IsDegradable(tt.err))
			assert.Equal(t, tt.bestEffort, IsBestEffort(tt.err))
		})
	}
}
