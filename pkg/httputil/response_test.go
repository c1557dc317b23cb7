package httputil

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, 200, map[string]string{"id": "site-a"}))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "site-a", body["id"])
}

func TestWriteDenied(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDenied(rec, "SITE_OUT_OF_SCOPE")

	assert.Equal(t, 403, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body.Error)
	assert.Equal(t, "SITE_OUT_OF_SCOPE", body.Reason)
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(rec *httptest.ResponseRecorder)
		status int
	}{
		{"bad request", func(r *httptest.ResponseRecorder) { WriteBadRequest(r, "nope") }, 400},
		{"unauthorized", func(r *httptest.ResponseRecorder) { WriteUnauthorized(r, "nope") }, 401},
		{"forbidden", func(r *httptest.ResponseRecorder) { WriteForbidden(r, "nope") }, 403},
		{"not found", func(r *httptest.ResponseRecorder) { WriteNotFoundError(r, "nope") }, 404},
		{"conflict", func(r *httptest.ResponseRecorder) { WriteConflict(r, "nope") }, 409},
		{"rate limited", func(r *httptest.ResponseRecorder) { WriteTooManyRequests(r, "nope") }, 429},
		{"internal", func(r *httptest.ResponseRecorder) { WriteInternalError(r, errors.New("nope")) }, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "nope", body.Error)
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, 204, rec.Code)
	assert.Zero(t, rec.Body.Len())
}
