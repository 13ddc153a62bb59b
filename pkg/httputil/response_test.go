package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"success"}`, w.Body.String())
}

func TestWriteErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		errs    []string
		want    string
	}{
		{
			name:    "message only",
			status:  http.StatusNotFound,
			message: "not found",
			want:    `{"message":"not found"}`,
		},
		{
			name:    "message with errors",
			status:  http.StatusUnprocessableEntity,
			message: "could not create user",
			errs:    []string{"id required"},
			want:    `{"message":"could not create user","errors":["id required"]}`,
		},
		{
			name:   "empty message defaults to status text",
			status: http.StatusTooManyRequests,
			want:   `{"message":"429 Too Many Requests"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorMessage(w, tt.status, tt.message, tt.errs...)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestWriteInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"500 Internal Server Error"}`, w.Body.String())
}
