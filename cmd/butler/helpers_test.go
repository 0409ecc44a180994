package main

import (
	"testing"
	"time"

	"butler/internal/rules"
)

func TestPrettyLabel(t *testing.T) {
	cases := map[string]string{
		"":                  "-",
		"add_to":            "Add To",
		"force_in":          "Force In",
		"success_completed": "Success Completed",
		"running":           "Running",
	}
	for input, want := range cases {
		if got := prettyLabel(input); got != want {
			t.Errorf("prettyLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a long hash value", 10); got != "a long ..." {
		t.Errorf("truncate long = %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Errorf("truncate tiny limit = %q", got)
	}
}

func TestScheduleLabel(t *testing.T) {
	if got := scheduleLabel(rules.ScheduleOverride{}); got != "default" {
		t.Errorf("default override = %q", got)
	}
	custom := rules.ScheduleOverride{Mode: rules.OverrideCustom, IntervalSeconds: 2 * 24 * 60 * 60}
	if got := scheduleLabel(custom); got != "every 2d" {
		t.Errorf("custom override = %q", got)
	}
}

func TestFormatInterval(t *testing.T) {
	cases := []struct {
		input time.Duration
		want  string
	}{
		{48 * time.Hour, "2d"},
		{24 * time.Hour, "1d"},
		{6 * time.Hour, "6h"},
		{90 * time.Minute, "90m"},
		{36*time.Hour + 30*time.Minute, "2190m"},
		{45 * time.Second, "45s"},
	}
	for _, tc := range cases {
		if got := formatInterval(tc.input); got != tc.want {
			t.Errorf("formatInterval(%v) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestFormatOptionalTime(t *testing.T) {
	if got := formatOptionalTime(nil); got != "-" {
		t.Errorf("nil time = %q", got)
	}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	if got := formatOptionalTime(&ts); got != "2024-05-01 12:00:00" {
		t.Errorf("timestamp = %q", got)
	}
}
