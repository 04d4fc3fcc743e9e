// Package httputil provides JSON response helpers and the outbound HTTP client
// used for third-party API calls.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

// MaxRequestBodyBytes caps JSON request bodies accepted by handlers.
const MaxRequestBodyBytes = 1 << 20

// ErrorBody is the JSON envelope for errors.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes the error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	payload := ErrorPayload{Code: code, Message: message, Details: details}
	if r != nil {
		payload.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, ErrorBody{Error: payload})
}

// WriteError renders any error; non-ServiceErrors become a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("Internal server error", err)
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

func Unauthorized(w http.ResponseWriter, message string) {
	se := errors.Unauthorized(message)
	WriteErrorResponse(w, nil, se.HTTPStatus, string(se.Code), se.Message, nil)
}

// DecodeJSON decodes a size-limited request body, rejecting unknown fields.
// An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return errors.InvalidInputf("invalid JSON body: %v", err)
	}
	return nil
}

// ReadAllWithLimit reads at most limit bytes and reports whether the body was
// longer.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads the body and fails if it exceeds limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}
