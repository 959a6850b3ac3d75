package timeutil

import (
	"errors"
	"testing"
	"time"
)

func TestParseRelativeDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want RelativeDay
		ok   bool
	}{
		{"today", Today, true},
		{" Tomorrow ", Tomorrow, true},
		{"overmorrow", Overmorrow, true},
		{"day_after_tomorrow", Overmorrow, true},
		{"yesterday", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseRelativeDay(tt.raw)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("ParseRelativeDay(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("ParseRelativeDay(%q) succeeded, want error", tt.raw)
		}
	}
}

func TestResolveTrigger(t *testing.T) {
	t.Parallel()
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 2026-03-01 10:00 UTC is 17:00 in Jakarta (UTC+7).
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("today later in the user zone", func(t *testing.T) {
		at, err := ResolveTrigger(Today, "20:30", jakarta, now)
		if err != nil {
			t.Fatalf("ResolveTrigger: %v", err)
		}
		want := time.Date(2026, 3, 1, 20, 30, 0, 0, jakarta)
		if !at.Equal(want) {
			t.Fatalf("resolved %v, want %v", at, want)
		}
	})

	t.Run("today earlier in the user zone is past", func(t *testing.T) {
		_, err := ResolveTrigger(Today, "09:00", jakarta, now)
		if !errors.Is(err, ErrPastTime) {
			t.Fatalf("got %v, want ErrPastTime", err)
		}
	})

	t.Run("tomorrow crosses the local date line", func(t *testing.T) {
		at, err := ResolveTrigger(Tomorrow, "09:00", jakarta, now)
		if err != nil {
			t.Fatalf("ResolveTrigger: %v", err)
		}
		want := time.Date(2026, 3, 2, 9, 0, 0, 0, jakarta)
		if !at.Equal(want) {
			t.Fatalf("resolved %v, want %v", at, want)
		}
	})

	t.Run("overmorrow", func(t *testing.T) {
		at, err := ResolveTrigger(Overmorrow, "00:00", jakarta, now)
		if err != nil {
			t.Fatalf("ResolveTrigger: %v", err)
		}
		want := time.Date(2026, 3, 3, 0, 0, 0, 0, jakarta)
		if !at.Equal(want) {
			t.Fatalf("resolved %v, want %v", at, want)
		}
	})

	t.Run("nil location defaults to UTC", func(t *testing.T) {
		at, err := ResolveTrigger(Today, "23:59", nil, now)
		if err != nil {
			t.Fatalf("ResolveTrigger: %v", err)
		}
		want := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
		if !at.Equal(want) {
			t.Fatalf("resolved %v, want %v", at, want)
		}
	})
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := parseHHMM("23:15")
	if err != nil {
		t.Fatalf("parseHHMM: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}

	for _, raw := range []string{"24:00", "12:60", "noon", "12", "12:3:4", "-1:00"} {
		if _, _, err := parseHHMM(raw); err == nil {
			t.Fatalf("parseHHMM(%q) succeeded, want error", raw)
		}
	}
}
