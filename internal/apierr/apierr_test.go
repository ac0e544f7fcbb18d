package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeValidation: http.StatusBadRequest,
		CodeNotFound:   http.StatusNotFound,
		CodeConflict:   http.StatusConflict,
		CodeOverloaded: http.StatusServiceUnavailable,
		CodeDependency: http.StatusServiceUnavailable,
		CodeRuntime:    http.StatusInternalServerError,
	}

	for code, want := range cases {
		e := New(code, "boom")
		assert.Equal(t, want, e.HTTPStatus(), "code %s", code)
	}
}

func TestOverloadedCarriesRetryAfter(t *testing.T) {
	e := Overloaded("breaker_open", 42)

	require.NotNil(t, e.RetryAfter)
	assert.Equal(t, 42, *e.RetryAfter)
	assert.True(t, e.Retryable)
	assert.Equal(t, SeverityServer, e.Severity)
	assert.Equal(t, "breaker_open", e.Tags["reason"])
}

func TestValidationIsNotRetryable(t *testing.T) {
	e := New(CodeValidation, "bad input")
	assert.False(t, e.Retryable)
	assert.Equal(t, SeverityClient, e.Severity)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	e := New(CodeDependency, "downstream call failed").Wrap(cause)

	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "connection reset")
}

func TestAsExtractsTaxonomyError(t *testing.T) {
	e := New(CodeConflict, "stale version")
	wrapped := fmt.Errorf("service layer: %w", e)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, got.Code)
}

func TestToBodyIncludesCorrelationID(t *testing.T) {
	e := New(CodeRuntime, "unexpected").WithCorrelationID("corr-123")
	body := e.ToBody(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Equal(t, "corr-123", body.Details["correlationId"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body.Timestamp)
}
