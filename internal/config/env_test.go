// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	t.Setenv("SPRINT_TEST_STR", "from-env")
	if got := ParseString("SPRINT_TEST_STR", "dflt"); got != "from-env" {
		t.Errorf("got %q", got)
	}
	if got := ParseString("SPRINT_TEST_STR_UNSET", "dflt"); got != "dflt" {
		t.Errorf("got %q", got)
	}
	t.Setenv("SPRINT_TEST_STR_EMPTY", "")
	if got := ParseString("SPRINT_TEST_STR_EMPTY", "dflt"); got != "dflt" {
		t.Errorf("empty env var must fall back, got %q", got)
	}
}

func TestParseStringSlice(t *testing.T) {
	t.Setenv("SPRINT_TEST_SLICE", " a.example.com , ,b.example.com,")
	got := ParseStringSlice("SPRINT_TEST_SLICE", []string{"dflt"})
	if len(got) != 2 || got[0] != "a.example.com" || got[1] != "b.example.com" {
		t.Errorf("got %v", got)
	}

	t.Setenv("SPRINT_TEST_SLICE_BLANK", " , ,")
	if got := ParseStringSlice("SPRINT_TEST_SLICE_BLANK", []string{"dflt"}); len(got) != 1 || got[0] != "dflt" {
		t.Errorf("all-blank list must fall back, got %v", got)
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("SPRINT_TEST_INT", "42")
	if got := ParseInt("SPRINT_TEST_INT", 7); got != 42 {
		t.Errorf("got %d", got)
	}
	t.Setenv("SPRINT_TEST_INT_BAD", "many")
	if got := ParseInt("SPRINT_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("invalid int must fall back, got %d", got)
	}
}

func TestParseFloat(t *testing.T) {
	t.Setenv("SPRINT_TEST_FLOAT", "0.25")
	if got := ParseFloat("SPRINT_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("got %g", got)
	}
	t.Setenv("SPRINT_TEST_FLOAT_BAD", "a lot")
	if got := ParseFloat("SPRINT_TEST_FLOAT_BAD", 1); got != 1 {
		t.Errorf("invalid float must fall back, got %g", got)
	}
}

func TestParseDuration(t *testing.T) {
	t.Setenv("SPRINT_TEST_DUR", "1500ms")
	if got := ParseDuration("SPRINT_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("got %s", got)
	}
	t.Setenv("SPRINT_TEST_DUR_BAD", "90") // bare number, no unit
	if got := ParseDuration("SPRINT_TEST_DUR_BAD", time.Second); got != time.Second {
		t.Errorf("invalid duration must fall back, got %s", got)
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"true": true, "1": true, "YES": true,
		"false": false, "0": false, "No": false,
	}
	for raw, want := range cases {
		t.Setenv("SPRINT_TEST_BOOL", raw)
		if got := ParseBool("SPRINT_TEST_BOOL", !want); got != want {
			t.Errorf("%q parsed to %v", raw, got)
		}
	}
	t.Setenv("SPRINT_TEST_BOOL", "maybe")
	if got := ParseBool("SPRINT_TEST_BOOL", true); got != true {
		t.Error("invalid boolean must fall back")
	}
}
