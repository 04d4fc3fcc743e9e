package catalog

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC)
	cursor := EncodeCursor(now, "prod-1")

	ts, id, err := ParseCursor(cursor)
	if err != nil {
		t.Fatalf("ParseCursor returned error: %v", err)
	}
	if !ts.Equal(now) || id != "prod-1" {
		t.Fatalf("round trip mismatch: %v %q", ts, id)
	}
}

func TestParseCursorInvalid(t *testing.T) {
	for _, c := range []string{"abc", "12:", "x:id"} {
		if _, _, err := ParseCursor(c); err != ErrInvalidCursor {
			t.Errorf("ParseCursor(%q) error = %v, want ErrInvalidCursor", c, err)
		}
	}
	if ts, _, err := ParseCursor(""); err != nil || !ts.IsZero() {
		t.Fatalf("empty cursor should be zero, got %v %v", ts, err)
	}
}

func TestPurchasable(t *testing.T) {
	p := Product{Status: StatusActive, Stock: 2}
	if !p.Purchasable(2) {
		t.Fatal("expected purchasable")
	}
	if p.Purchasable(3) || p.Purchasable(0) {
		t.Fatal("quantity outside stock should not be purchasable")
	}
	p.Status = StatusDraft
	if p.Purchasable(1) {
		t.Fatal("draft product should not be purchasable")
	}
}

func TestBefore(t *testing.T) {
	ts := time.Now()
	older := Product{ID: "b", CreatedAt: ts.Add(-time.Second)}
	same := Product{ID: "a", CreatedAt: ts}
	if !older.Before(ts, "z") || !same.Before(ts, "b") || same.Before(ts, "a") {
		t.Fatal("unexpected keyset ordering")
	}
}
