package calsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

// GoogleSourceConfig configures the Google Calendar event source.
type GoogleSourceConfig struct {
	APIKey      string
	CalendarID  string
	HTTPTimeout time.Duration
}

// GoogleSource fetches event changes from the Google Calendar REST API using
// incremental sync tokens. Expired tokens (HTTP 410) fall back to a full
// resync on the same cycle.
type GoogleSource struct {
	apiKey     string
	calendarID string
	http       *http.Client
}

// NewGoogleSource constructs a Google Calendar source.
func NewGoogleSource(cfg GoogleSourceConfig) (*GoogleSource, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("calsync: google api key required")
	}
	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		return nil, errors.New("calsync: google calendar id required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleSource{
		apiKey:     apiKey,
		calendarID: calendarID,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

type googleEventsPage struct {
	Items []struct {
		ID          string `json:"id"`
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Status      string `json:"status"`
		Start       struct {
			DateTime string `json:"dateTime"`
			Date     string `json:"date"`
			TimeZone string `json:"timeZone"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
			Date     string `json:"date"`
			TimeZone string `json:"timeZone"`
		} `json:"end"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
	NextSyncToken string `json:"nextSyncToken"`
}

// FetchChanges implements EventSource.
func (s *GoogleSource) FetchChanges(ctx context.Context, syncToken *string) (ChangeSet, error) {
	changes, err := s.fetchAll(ctx, syncToken)
	if err == nil || !errors.Is(err, errSyncTokenExpired) {
		return changes, err
	}
	// 410 Gone: the stored token is no longer valid, resync from scratch.
	return s.fetchAll(ctx, nil)
}

var errSyncTokenExpired = errors.New("calsync: sync token expired")

func (s *GoogleSource) fetchAll(ctx context.Context, syncToken *string) (ChangeSet, error) {
	var (
		changeSet ChangeSet
		pageToken string
	)

	for {
		page, err := s.fetchPage(ctx, syncToken, pageToken)
		if err != nil {
			return ChangeSet{}, err
		}

		for _, item := range page.Items {
			changeSet.Events = append(changeSet.Events, RawEvent{
				ID:          item.ID,
				Summary:     item.Summary,
				Description: item.Description,
				Location:    item.Location,
				Status:      item.Status,
				Start: RawEventTime{
					DateTime: item.Start.DateTime,
					Date:     item.Start.Date,
					TimeZone: item.Start.TimeZone,
				},
				End: RawEventTime{
					DateTime: item.End.DateTime,
					Date:     item.End.Date,
					TimeZone: item.End.TimeZone,
				},
			})
		}

		if page.NextSyncToken != "" {
			token := page.NextSyncToken
			changeSet.NextSyncToken = &token
		}
		if page.NextPageToken == "" {
			return changeSet, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *GoogleSource) fetchPage(ctx context.Context, syncToken *string, pageToken string) (googleEventsPage, error) {
	query := url.Values{}
	query.Set("key", s.apiKey)
	query.Set("singleEvents", "true")
	query.Set("maxResults", "250")
	if syncToken != nil && *syncToken != "" {
		query.Set("syncToken", *syncToken)
	} else {
		query.Set("timeMin", time.Now().UTC().Format(time.RFC3339))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s",
		googleCalendarBaseURL, url.PathEscape(s.calendarID), query.Encode())

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return googleEventsPage{}, err
	}

	response, err := s.http.Do(request)
	if err != nil {
		return googleEventsPage{}, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusGone {
		return googleEventsPage{}, errSyncTokenExpired
	}
	if response.StatusCode != http.StatusOK {
		return googleEventsPage{}, fmt.Errorf("calsync: calendar api returned %d", response.StatusCode)
	}

	var page googleEventsPage
	if err := json.NewDecoder(response.Body).Decode(&page); err != nil {
		return googleEventsPage{}, err
	}
	return page, nil
}
