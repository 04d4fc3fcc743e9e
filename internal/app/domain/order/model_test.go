package order

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPaid, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusCancelled, false},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusReturnRequested, true},
		{StatusReturnRequested, StatusReturned, true},
		{StatusCancelled, StatusPaid, false},
		{StatusReturned, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusCancelled, StatusReturned, StatusDelivered} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("lost").Valid() {
		t.Error("unknown status should be invalid")
	}
}
