package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection reset")

	// When: wrapping with CodeError
	ce := New(ErrCodeBackendUnavailable, "vector backend unavailable", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, ce)
	assert.Equal(t, originalErr, errors.Unwrap(ce))
	assert.True(t, errors.Is(ce, originalErr))
}

func TestCodeError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "weights error",
			code:     ErrCodeInvalidWeights,
			message:  "weights must sum to 1",
			expected: "[ERR_402_INVALID_WEIGHTS] weights must sum to 1",
		},
		{
			name:     "sparse unavailable",
			code:     ErrCodeSparseUnavailable,
			message:  "sparse index unavailable",
			expected: "[ERR_506_SPARSE_UNAVAILABLE] sparse index unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCodeError_Is_MatchesByCode(t *testing.T) {
	// Given: a sentinel and a wrapped error with the same code
	sentinel := New(ErrCodeSparseUnavailable, "sparse index unavailable", nil)
	wrapped := fmt.Errorf("search: %w", New(ErrCodeSparseUnavailable, "no documents indexed", nil))

	// Then: errors.Is matches through the chain
	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, New(ErrCodeInvalidWeights, "x", nil)))
}

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeBackendTimeout, CategoryBackend, SeverityWarning, true},
		{ErrCodeInvalidWeights, CategoryValidation, SeverityError, false},
		{ErrCodeSparseUnavailable, CategoryInternal, SeverityWarning, false},
		{ErrCodeSearchFailed, CategoryInternal, SeverityWarning, true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestCodeError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeSearchFailed, "search failed", nil).
		WithDetail("source", "dense").
		WithSuggestion("run 'coderag index'")

	assert.Equal(t, "dense", err.Details["source"])
	assert.Equal(t, "run 'coderag index'", err.Suggestion)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_WorkThroughWrapping(t *testing.T) {
	// Given: a CodeError wrapped by fmt.Errorf
	err := fmt.Errorf("outer: %w", New(ErrCodeBackendTimeout, "timed out", nil))

	// Then: helpers find it in the chain
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrCodeBackendTimeout, GetCode(err))
	assert.Equal(t, CategoryBackend, GetCategory(err))

	// And: plain errors report nothing
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeIndexMissing, "no index found", nil).WithSuggestion("run 'coderag index' first")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: no index found")
	assert.Contains(t, out, "Hint: run 'coderag index' first")
	assert.Contains(t, out, "Code: ERR_203_INDEX_MISSING")
	assert.Contains(t, FormatForCLI(errors.New("boom")), "ERR_501_INTERNAL")
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	err := New(ErrCodeInvalidWeights, "bad weights", errors.New("sum 1.2"))

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ERR_402_INVALID_WEIGHTS", decoded["code"])
	assert.Equal(t, "VALIDATION", decoded["category"])
	assert.Equal(t, "sum 1.2", decoded["cause"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeSearchFailed, "failed", nil).WithDetail("source", "sparse"))

	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeSearchFailed)
	assert.Contains(t, attrs, "detail_source")
	assert.Equal(t, []any{"error", "plain"}, LogAttrs(errors.New("plain")))
	assert.Nil(t, LogAttrs(nil))
}
