package calsync

import (
	"strings"
	"testing"
)

func TestNormalizeTimedEvent(t *testing.T) {
	payloads, err := Normalize([]RawEvent{{
		ID:      "ext-1",
		Summary: "Club night",
		Start:   RawEventTime{DateTime: "2026-06-15T21:00:00+03:00", TimeZone: "Europe/Helsinki"},
		End:     RawEventTime{DateTime: "2026-06-16T02:00:00+03:00", TimeZone: "Europe/Helsinki"},
		Status:  "confirmed",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	event := payloads[0]
	if event.StartTime != "2026-06-15T18:00:00Z" {
		t.Fatalf("start not converted to UTC, got %q", event.StartTime)
	}
	if event.EndTime != "2026-06-15T23:00:00Z" {
		t.Fatalf("end not converted to UTC, got %q", event.EndTime)
	}
	if event.AllDay {
		t.Fatalf("timed event must not be all-day")
	}
	if event.Timezone != "Europe/Helsinki" {
		t.Fatalf("unexpected timezone %q", event.Timezone)
	}
}

func TestNormalizeAllDayEvent(t *testing.T) {
	payloads, err := Normalize([]RawEvent{{
		ID:      "ext-1",
		Summary: "Festival",
		Start:   RawEventTime{Date: "2026-07-01"},
		End:     RawEventTime{Date: "2026-07-03"},
		Status:  "confirmed",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	event := payloads[0]
	if !event.AllDay {
		t.Fatalf("date-only event must be all-day")
	}
	if event.StartTime != "2026-07-01T00:00:00Z" || event.EndTime != "2026-07-03T00:00:00Z" {
		t.Fatalf("unexpected times %q .. %q", event.StartTime, event.EndTime)
	}
	if event.Timezone != "UTC" {
		t.Fatalf("expected UTC fallback, got %q", event.Timezone)
	}
}

func TestNormalizeFillsMissingSummary(t *testing.T) {
	payloads, err := Normalize([]RawEvent{{
		ID:    "ext-1",
		Start: RawEventTime{Date: "2026-07-01"},
		End:   RawEventTime{Date: "2026-07-02"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payloads[0].Title != "Untitled Event" {
		t.Fatalf("unexpected title %q", payloads[0].Title)
	}
}

func TestNormalizeRejectsMissingStart(t *testing.T) {
	_, err := Normalize([]RawEvent{{ID: "ext-broken"}})
	if err == nil {
		t.Fatalf("expected error for event without start")
	}
	if !strings.Contains(err.Error(), "ext-broken") {
		t.Fatalf("error should name the offending event, got %v", err)
	}
}

func TestNormalizeRejectsMalformedTimestamp(t *testing.T) {
	_, err := Normalize([]RawEvent{{
		ID:    "ext-1",
		Start: RawEventTime{DateTime: "yesterday"},
		End:   RawEventTime{DateTime: "tomorrow"},
	}})
	if err == nil {
		t.Fatalf("expected error for malformed timestamp")
	}
}
