package content

import (
	"testing"
	"time"
)

func TestBannerLiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		banner Banner
		want   bool
	}{
		{"inactive", Banner{Active: false}, false},
		{"open window", Banner{Active: true}, true},
		{"not started", Banner{Active: true, StartsAt: &future}, false},
		{"ended", Banner{Active: true, EndsAt: &past}, false},
		{"inside window", Banner{Active: true, StartsAt: &past, EndsAt: &future}, true},
	}
	for _, tt := range tests {
		if got := tt.banner.LiveAt(now); got != tt.want {
			t.Errorf("%s: LiveAt = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLegalKindValid(t *testing.T) {
	if !LegalRefund.Valid() {
		t.Fatal("refund should be valid")
	}
	if LegalKind("imprint").Valid() {
		t.Fatal("imprint should be invalid")
	}
}
