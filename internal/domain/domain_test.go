package domain

import (
	"math"
	"testing"
)

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from  MissionStatus
		event MissionEvent
		to    MissionStatus
		ok    bool
	}{
		{MissionPending, EventAccept, MissionAccepted, true},
		{MissionPending, EventCancel, MissionCancelled, true},
		{MissionPending, EventDispute, MissionDisputed, true},
		{MissionPending, EventStart, "", false},
		{MissionPending, EventComplete, "", false},
		{MissionAccepted, EventStart, MissionInProgress, true},
		{MissionAccepted, EventComplete, "", false},
		{MissionAccepted, EventAccept, "", false},
		{MissionInProgress, EventComplete, MissionCompleted, true},
		{MissionInProgress, EventCancel, MissionCancelled, true},
		{MissionInProgress, EventDispute, MissionDisputed, true},
		{MissionCompleted, EventCancel, "", false},
		{MissionCancelled, EventAccept, "", false},
		{MissionDisputed, EventComplete, "", false},
	}
	for _, tc := range cases {
		to, ok := NextStatus(tc.from, tc.event)
		if ok != tc.ok || to != tc.to {
			t.Errorf("NextStatus(%s, %s) = (%s, %v), want (%s, %v)", tc.from, tc.event, to, ok, tc.to, tc.ok)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []MissionStatus{MissionCompleted, MissionCancelled, MissionDisputed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []MissionStatus{MissionPending, MissionAccepted, MissionInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	// a completed payment can still be refunded
	if PaymentCompleted.Terminal() {
		t.Errorf("completed payment must accept a refund")
	}
	for _, s := range []PaymentStatus{PaymentFailed, PaymentCancelled, PaymentRefunded} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in    string
		units int64
		ok    bool
	}{
		{"45.00", 4500, true},
		{"45", 4500, true},
		{"45.5", 4550, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{".50", 50, true},
		{"92233720368547758.07", 9223372036854775807, true},
		{"45.005", 0, false},
		{"-1.00", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"45,00", 0, false},
		// would wrap int64 if accumulated unchecked
		{"9999999999999999999", 0, false},
		{"92233720368547758.08", 0, false},
	}
	for _, tc := range cases {
		units, err := ParseAmount(tc.in, "EUR")
		if tc.ok && (err != nil || units != tc.units) {
			t.Errorf("ParseAmount(%q) = (%d, %v), want %d", tc.in, units, err, tc.units)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseAmount(%q) should fail", tc.in)
		}
	}
	if _, err := ParseAmount("10.00", "JPY"); err == nil {
		t.Errorf("unsupported currency should fail")
	}
}

func TestCommission(t *testing.T) {
	cases := []struct {
		units int64
		bps   int
		want  int64
	}{
		{3250, 1000, 325},
		{4500, 1250, 562}, // floors the half cent
		{0, 1000, 0},
		{4500, 0, 0},
		{9, 10000, 9},
		{math.MaxInt64, 10000, math.MaxInt64},
	}
	for _, tc := range cases {
		if got := Commission(tc.units, tc.bps); got != tc.want {
			t.Errorf("Commission(%d, %d) = %d, want %d", tc.units, tc.bps, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		units int64
		want  string
	}{
		{4500, "45.00"},
		{1, "0.01"},
		{0, "0.00"},
		{100050, "1000.50"},
		{-250, "-2.50"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.units, "EUR"); got != tc.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tc.units, got, tc.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "0.01", "45.00", "99999.99"} {
		units, err := ParseAmount(s, "USD")
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := FormatAmount(units, "USD"); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
