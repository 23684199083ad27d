package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an engine failure
	cause := errors.New("connection refused")

	// When: wrapping it as a search failure
	err := New(ErrCodeSearchFailed, "search posts", cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestError_Error_IncludesCodeAndCause(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "no cause",
			err:      New(ErrCodeConfigNotFound, "config file not found", nil),
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "distinct cause",
			err:      New(ErrCodeSearchFailed, "search posts", errors.New("timeout")),
			expected: "[ERR_503_SEARCH_FAILED] search posts: timeout",
		},
		{
			name:     "wrapped cause is not repeated",
			err:      Wrap(ErrCodeStorage, errors.New("disk I/O error")),
			expected: "[ERR_201_STORAGE] disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("query: %w", New(ErrCodeSearchFailed, "a", nil))

	assert.True(t, errors.Is(err, New(ErrCodeSearchFailed, "b", nil)))
	assert.False(t, errors.Is(err, New(ErrCodeIndexFailed, "a", nil)))
}

func TestError_WithDetailAndSuggestion(t *testing.T) {
	err := ValidationError("page must be positive", nil).
		WithDetail("page", "-1").
		WithSuggestion("use page=1")

	assert.Equal(t, "-1", err.Details["page"])
	assert.Equal(t, "use page=1", err.Suggestion)
}

func TestError_ClassificationFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStorage, CategoryStorage, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{ErrCodeLocked, CategoryStorage, SeverityWarning, true},
		{ErrCodeNetworkUnavailable, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidQuery, CategoryValidation, SeverityError, false},
		{ErrCodeSearchFailed, CategoryInternal, SeverityError, false},
		{"BAD", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "x", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestHelpers_ReadThroughWrappedChains(t *testing.T) {
	// Given: a structured error wrapped by fmt.Errorf
	err := fmt.Errorf("reindex: %w", NetworkError("redis down", nil))

	// Then: helpers still find it
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrCodeNetworkUnavailable, GetCode(err))
	assert.Equal(t, CategoryNetwork, GetCategory(err))

	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Empty(t, GetCode(nil))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeSearchFailed, "search posts", errors.New("engine offline")).
		WithSuggestion("check search.backend")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: search posts")
	assert.Contains(t, out, "Cause: engine offline")
	assert.Contains(t, out, "Hint: check search.backend")
	assert.Contains(t, out, "Code: ERR_503_SEARCH_FAILED")
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	// Given: a plain error
	data, err := FormatJSON(errors.New("boom"))
	require.NoError(t, err)

	// Then: it is reported as internal
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeInternal, got["code"])
	assert.Equal(t, "boom", got["message"])
	assert.Equal(t, string(CategoryInternal), got["category"])

	// And: details survive
	data, err = FormatJSON(New(ErrCodeUnknownIndex, "unknown collection", nil).WithDetail("collection", "comment"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "comment", got["details"].(map[string]any)["collection"])
}
