package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_EncodesJSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	pkghttp.WriteError(rec, 400, "bad_request", "email is required")

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request", resp.Error)
	assert.Equal(t, "email is required", resp.Message)
	assert.Empty(t, resp.Details)
}

func TestWriteLocked_SetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	until := time.Now().Add(10 * time.Minute)
	pkghttp.WriteLocked(rec, "account temporarily locked", until)

	assert.Equal(t, 423, rec.Code)

	seconds, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, seconds, 590)
	assert.LessOrEqual(t, seconds, 601)
}

func TestWriteLocked_PastDeadlineStillPositive(t *testing.T) {
	rec := httptest.NewRecorder()
	pkghttp.WriteLocked(rec, "account temporarily locked", time.Now().Add(-time.Minute))

	seconds, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 1)
}

func TestWriteUnauthorized_UsesStableErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	pkghttp.WriteUnauthorized(rec, "Authentication failed")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 401, rec.Code)
	assert.Equal(t, "unauthorized", resp.Error)
}
