// Package calendar is a minimal Google Calendar v3 events client used by the
// API server to proxy the signed-in user's primary calendar.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prepcal/internal/domain"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	defaultTimeout = 15 * time.Second

	// Google Calendar serves up to 250 events per page; fetch full pages
	// and paginate so no event inside the window is missed.
	pageSize = 250
)

// Typed provider failures. Auth expiry is non-retriable and must surface as
// needs-re-authentication; the other two are candidates for retry.
var (
	ErrAuthExpired  = errors.New("calendar authentication expired")
	ErrAccessDenied = errors.New("calendar access denied")
	ErrRateLimited  = errors.New("calendar rate limit exceeded")
)

// APIError wraps any other non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to one user's primary calendar. The HTTP client is expected
// to carry OAuth credentials (see TokenTransport).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Sleep is swapped in tests to skip real backoff waits. When nil the
	// wait is a cancellable timer.
	Sleep func(time.Duration)
}

// New returns a client with sane defaults around the given HTTP client.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		BaseURL:    defaultBaseURL,
		HTTPClient: httpClient,
	}
}

type eventsPage struct {
	Items         []domain.ProviderEvent `json:"items"`
	NextPageToken string                 `json:"nextPageToken"`
}

// Events lists provider events between timeMin and timeMax, following
// nextPageToken until exhausted. Recurring events are expanded server-side
// and ordered by start time.
func (c *Client) Events(ctx context.Context, timeMin, timeMax time.Time) ([]domain.ProviderEvent, error) {
	var all []domain.ProviderEvent
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", timeMin.Format(time.RFC3339))
		q.Set("timeMax", timeMax.Format(time.RFC3339))
		q.Set("maxResults", fmt.Sprintf("%d", pageSize))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page eventsPage
		if err := c.do(ctx, http.MethodGet, "/calendars/primary/events?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

const (
	retryAttempts = 2
	retryBase     = time.Second
	retryCap      = 30 * time.Second
)

// EventsWithRetry wraps Events with the caller-side retry policy: up to two
// retries with exponential backoff for transient and rate-limit failures.
// Auth failures are returned immediately.
func (c *Client) EventsWithRetry(ctx context.Context, timeMin, timeMax time.Time) ([]domain.ProviderEvent, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		items, err := c.Events(ctx, timeMin, timeMax)
		if err == nil {
			return items, nil
		}
		if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrAccessDenied) {
			return nil, err
		}
		lastErr = err
		if attempt >= retryAttempts {
			return nil, lastErr
		}
		delay := retryBase << attempt
		if delay > retryCap {
			delay = retryCap
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		c.Sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EventInput is the writable subset of a provider event.
type EventInput struct {
	Summary     string        `json:"summary,omitempty"`
	Description string        `json:"description,omitempty"`
	Location    string        `json:"location,omitempty"`
	Start       boundaryInput `json:"start"`
	End         boundaryInput `json:"end"`
}

type boundaryInput struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// NewEventInput builds an insert/update payload from a span.
func NewEventInput(summary, description, location string, start, end time.Time, allDay bool) EventInput {
	in := EventInput{Summary: summary, Description: description, Location: location}
	if allDay {
		in.Start = boundaryInput{Date: start.Format("2006-01-02")}
		in.End = boundaryInput{Date: end.Format("2006-01-02")}
	} else {
		in.Start = boundaryInput{DateTime: start.Format(time.RFC3339)}
		in.End = boundaryInput{DateTime: end.Format(time.RFC3339)}
	}
	return in
}

// Insert creates an event on the primary calendar.
func (c *Client) Insert(ctx context.Context, in EventInput) (domain.ProviderEvent, error) {
	var out domain.ProviderEvent
	err := c.do(ctx, http.MethodPost, "/calendars/primary/events", in, &out)
	return out, err
}

// Update replaces an event by id.
func (c *Client) Update(ctx context.Context, eventID string, in EventInput) (domain.ProviderEvent, error) {
	var out domain.ProviderEvent
	err := c.do(ctx, http.MethodPut, "/calendars/primary/events/"+url.PathEscape(eventID), in, &out)
	return out, err
}

// Delete removes an event by id.
func (c *Client) Delete(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, "/calendars/primary/events/"+url.PathEscape(eventID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+endpoint, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrAuthExpired
	case resp.StatusCode == http.StatusForbidden:
		return ErrAccessDenied
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
