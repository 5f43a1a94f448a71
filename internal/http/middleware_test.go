package httpx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/mmk-pipeline/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal","message":"internal server error"}`, rec.Body.String())

	abort := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		field   string
	}{
		{
			name:    "validation keeps cause",
			err:     apperrors.ValidationField("target", "unknown pipeline stage"),
			status:  http.StatusBadRequest,
			code:    "validation",
			message: "unknown pipeline stage",
			field:   "target",
		},
		{
			name:    "not found",
			err:     fmt.Errorf("load: %w", apperrors.NotFound("reminder not found")),
			status:  http.StatusNotFound,
			code:    "not_found",
			message: "reminder not found",
		},
		{
			name:    "conflict hides cause",
			err:     apperrors.Wrap(errors.New("pq: row locked"), apperrors.ErrCodeConflict, "reminder is locked"),
			status:  http.StatusConflict,
			code:    "conflict",
			message: "reminder is locked",
		},
		{
			name:    "plain error is internal",
			err:     errors.New("dial tcp 10.0.0.1:5432: refused"),
			status:  http.StatusInternalServerError,
			code:    "internal",
			message: "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAppError(rec, tt.err)
			require.Equal(t, tt.status, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.code, body.Error)
			assert.Contains(t, body.Message, tt.message)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}
