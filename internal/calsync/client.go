package calsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	errMissingBaseURL = errors.New("calsync: main app url required")
	errMissingSecret  = errors.New("calsync: shared secret required")
)

// SyncState mirrors the cursor payload served by the forum API.
type SyncState struct {
	SyncToken     *string `json:"sync_token"`
	LastSyncAt    int64   `json:"last_sync_at_s"`
	LastSuccessAt *int64  `json:"last_success_at_s"`
	ErrorCount    int64   `json:"error_count"`
	LastError     *string `json:"last_error"`
}

// EventPayload is one normalized event as the forum API accepts it.
type EventPayload struct {
	CalendarID  string `json:"calendar_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone"`
	AllDay      bool   `json:"all_day"`
	Status      string `json:"status"`
}

// ClientConfig configures the bridge client.
type ClientConfig struct {
	MainAppURL   string
	SharedSecret string
	HTTPTimeout  time.Duration
}

// Client talks to the forum API's sync bridge endpoints using the shared
// secret bearer token.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient constructs a bridge client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.MainAppURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	secret := strings.TrimSpace(cfg.SharedSecret)
	if secret == "" {
		return nil, errMissingSecret
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// GetSyncState fetches the current cursor, or nil when never synced.
func (c *Client) GetSyncState(ctx context.Context) (*SyncState, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sync/state", nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Cursor *SyncState `json:"cursor"`
	}
	if err := c.do(request, &response); err != nil {
		return nil, err
	}
	return response.Cursor, nil
}

// SubmitEvents posts a batch of normalized events and the next cursor token.
func (c *Client) SubmitEvents(ctx context.Context, events []EventPayload, syncToken *string) error {
	body := struct {
		Events    []EventPayload `json:"events"`
		SyncToken *string        `json:"sync_token"`
	}{Events: events, SyncToken: syncToken}

	return c.post(ctx, "/api/sync/events", body)
}

// RecordSyncError reports a failed sync attempt without advancing the cursor.
func (c *Client) RecordSyncError(ctx context.Context, message string) error {
	body := struct {
		Error string `json:"error"`
	}{Error: message}

	return c.post(ctx, "/api/sync/error", body)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	return c.do(request, nil)
}

func (c *Client) do(request *http.Request, out interface{}) error {
	request.Header.Set("Authorization", "Bearer "+c.secret)

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("calsync: %s %s returned %d", request.Method, request.URL.Path, response.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}
