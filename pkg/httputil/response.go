package httputil

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/platinummonkey/apigate/pkg/apierrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorBody is the wire shape of every terminal API error
type ErrorBody struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a {"message": ...} error body
func WriteErrorMessage(w http.ResponseWriter, status int, message string, errs ...string) {
	if message == "" {
		message = apierrors.StatusMessage(status)
	}
	_ = WriteJSON(w, status, ErrorBody{Message: message, Errors: errs})
}

// WriteInternalError writes a generic 500 without leaking the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "")
}
