package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

func TestWriteError_ServiceError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-9"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, errors.NotFound("brand", "acme"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" || body.Error.TraceID != "trace-9" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestWriteError_PlainErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), stderrors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	if err := DecodeJSON(req, &v); err != nil || v.Name != "a" {
		t.Fatalf("DecodeJSON() = %v, name=%q", err, v.Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":1}`))
	if err := DecodeJSON(req, &v); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for unknown field, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(req, &v); err != nil {
		t.Fatalf("empty body should be accepted, got %v", err)
	}
}
