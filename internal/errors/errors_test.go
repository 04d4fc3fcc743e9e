package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceError_Wrapped(t *testing.T) {
	base := NotFound("product", "p1")
	wrapped := fmt.Errorf("load product: %w", base)

	got := GetServiceError(wrapped)
	if got == nil {
		t.Fatal("GetServiceError() returned nil for wrapped error")
	}
	if got.Code != CodeNotFound {
		t.Errorf("Code = %s, want %s", got.Code, CodeNotFound)
	}
	if got.Details["id"] != "p1" {
		t.Errorf("Details[id] = %v, want p1", got.Details["id"])
	}
	if HTTPStatus(wrapped) != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want 404", HTTPStatus(wrapped))
	}
}

func TestGetServiceError_Plain(t *testing.T) {
	if GetServiceError(stderrors.New("boom")) != nil {
		t.Fatal("expected nil for plain error")
	}
	if HTTPStatus(stderrors.New("boom")) != http.StatusInternalServerError {
		t.Fatal("expected 500 for plain error")
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := Forbidden("")
	extended := base.WithDetails("permission", "manage_orders")

	if len(base.Details) != 0 {
		t.Fatalf("base details mutated: %v", base.Details)
	}
	if extended.Details["permission"] != "manage_orders" {
		t.Fatalf("extended details missing permission: %v", extended.Details)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Conflict("slug taken"))
	if !stderrors.Is(err, &ServiceError{Code: CodeConflict}) {
		t.Fatal("errors.Is should match on code")
	}
	if !IsCode(err, CodeConflict) {
		t.Fatal("IsCode should match on code")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("IsCode matched wrong code")
	}
}

func TestUpstreamUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: timeout")
	err := Upstream("shipping", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("Upstream error should unwrap to cause")
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("HTTPStatus = %d, want 502", err.HTTPStatus)
	}
}
