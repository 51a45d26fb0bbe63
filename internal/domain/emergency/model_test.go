package emergency

import (
	"testing"
	"time"
)

func TestComputeExpiry(t *testing.T) {
	now := time.Now()
	cases := []struct {
		eta  int
		want time.Duration
	}{
		{20, 30 * time.Minute}, // 1.5*20=30, floor not needed
		{40, 60 * time.Minute},
		{0, 30 * time.Minute},  // floor
		{10, 30 * time.Minute}, // 1.5*10=15, floored to 30
		{60, 90 * time.Minute},
	}
	for _, tc := range cases {
		got := ComputeExpiry(now, tc.eta)
		if got.Sub(now) != tc.want {
			t.Errorf("ComputeExpiry(eta=%d) = +%v, want +%v", tc.eta, got.Sub(now), tc.want)
		}
	}
}

func TestDefaultTransitions(t *testing.T) {
	table := DefaultTransitions()

	allowed := [][2]Status{
		{StatusReserved, StatusPatientOnWay},
		{StatusReserved, StatusArrived},
		{StatusReserved, StatusCancelled},
		{StatusReserved, StatusExpired},
		{StatusPatientOnWay, StatusArrived},
		{StatusPatientOnWay, StatusExpired},
		{StatusArrived, StatusAdmitted},
		{StatusArrived, StatusCancelled},
		{StatusAdmitted, StatusDischarged},
	}
	for _, p := range allowed {
		if !table.Allows(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be allowed", p[0], p[1])
		}
	}

	forbidden := [][2]Status{
		{StatusReserved, StatusAdmitted},
		{StatusReserved, StatusDischarged},
		{StatusArrived, StatusExpired},
		{StatusAdmitted, StatusCancelled},
		{StatusAdmitted, StatusExpired},
		{StatusDischarged, StatusArrived},
		{StatusCancelled, StatusReserved},
		{StatusExpired, StatusArrived},
		{StatusArrived, StatusReserved},
	}
	for _, p := range forbidden {
		if table.Allows(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be forbidden", p[0], p[1])
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusDischarged, StatusCancelled, StatusExpired} {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range ActiveStatuses() {
		if s.IsTerminal() {
			t.Errorf("expected %s to be active", s)
		}
	}
}

func TestReleasesCapacity(t *testing.T) {
	for _, s := range []Status{StatusAdmitted, StatusCancelled, StatusExpired} {
		if !releasesCapacity(s) {
			t.Errorf("expected %s to release capacity", s)
		}
	}
	for _, s := range []Status{StatusReserved, StatusPatientOnWay, StatusArrived, StatusDischarged} {
		if releasesCapacity(s) {
			t.Errorf("expected %s not to release capacity", s)
		}
	}
}
