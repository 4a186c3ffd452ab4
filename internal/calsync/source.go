package calsync

import (
	"context"
	"fmt"
	"time"
)

// RawEventTime is a calendar timestamp: timed events carry DateTime, all-day
// events carry Date only.
type RawEventTime struct {
	DateTime string
	Date     string
	TimeZone string
}

// RawEvent is one change item as delivered by a calendar source.
type RawEvent struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       RawEventTime
	End         RawEventTime
	Status      string
}

// ChangeSet is the outcome of one incremental fetch.
type ChangeSet struct {
	Events        []RawEvent
	NextSyncToken *string
}

// EventSource fetches calendar changes since the given cursor token. A nil
// token requests a full resync. The concrete calendar client lives behind
// this seam; the poller only sees normalized change sets.
type EventSource interface {
	FetchChanges(ctx context.Context, syncToken *string) (ChangeSet, error)
}

// Normalize converts raw calendar items into the bridge payload: timed events
// become UTC RFC 3339 instants, all-day events pin to midnight UTC, and an
// empty summary falls back to a placeholder title.
func Normalize(raw []RawEvent) ([]EventPayload, error) {
	payloads := make([]EventPayload, 0, len(raw))
	for _, event := range raw {
		startTime, endTime, allDay, err := normalizeTimes(event)
		if err != nil {
			return nil, fmt.Errorf("calsync: event %s: %w", event.ID, err)
		}

		title := event.Summary
		if title == "" {
			title = "Untitled Event"
		}
		timezone := event.Start.TimeZone
		if timezone == "" {
			timezone = "UTC"
		}

		payloads = append(payloads, EventPayload{
			CalendarID:  event.ID,
			Title:       title,
			Description: event.Description,
			Location:    event.Location,
			StartTime:   startTime,
			EndTime:     endTime,
			Timezone:    timezone,
			AllDay:      allDay,
			Status:      event.Status,
		})
	}
	return payloads, nil
}

func normalizeTimes(event RawEvent) (string, string, bool, error) {
	if event.Start.DateTime != "" {
		start, err := time.Parse(time.RFC3339, event.Start.DateTime)
		if err != nil {
			return "", "", false, fmt.Errorf("invalid start time: %w", err)
		}
		end, err := time.Parse(time.RFC3339, event.End.DateTime)
		if err != nil {
			return "", "", false, fmt.Errorf("invalid end time: %w", err)
		}
		return start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), false, nil
	}

	if event.Start.Date != "" {
		return event.Start.Date + "T00:00:00Z", event.End.Date + "T00:00:00Z", true, nil
	}

	return "", "", false, fmt.Errorf("missing start time")
}
