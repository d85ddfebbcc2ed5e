package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	streamBaseDelay = 5 * time.Second
	streamMaxDelay  = 60 * time.Second
)

// StreamClient consumes a text/event-stream endpoint and dispatches decoded
// frames to a handler. A dropped connection is reconnected automatically
// with capped exponential backoff; the user sees only a transient loss of
// liveness. Malformed frames are dropped without terminating the stream.
type StreamClient struct {
	URL        string
	HTTPClient *http.Client
	Handler    func(Event)
	Logger     *log.Logger

	// BaseDelay/MaxDelay override the reconnect backoff in tests.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NewStreamClient builds a client delivering frames to handler.
func NewStreamClient(url string, handler func(Event)) *StreamClient {
	return &StreamClient{
		URL:        url,
		HTTPClient: &http.Client{},
		Handler:    handler,
	}
}

func (c *StreamClient) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Run blocks consuming the stream until ctx is cancelled.
func (c *StreamClient) Run(ctx context.Context) {
	base := c.BaseDelay
	if base <= 0 {
		base = streamBaseDelay
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = streamMaxDelay
	}
	delay := base
	for {
		connected, err := c.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			// The outage is over; start the next backoff run from scratch.
			delay = base
		}
		if err != nil {
			c.logger().Printf("relay: stream disconnected: %v (reconnect in %s)", err, delay)
		} else {
			c.logger().Printf("relay: stream closed by server (reconnect in %s)", delay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// consume opens one connection and reads frames until it drops. connected
// reports whether the server accepted the stream; a nil error means it ended
// the stream cleanly.
func (c *StreamClient) consume(ctx context.Context) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &APIStatusError{StatusCode: resp.StatusCode}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			c.dispatch(data.String())
			data.Reset()
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// comments, event: and id: fields are irrelevant here
		}
	}
	if data.Len() > 0 {
		c.dispatch(data.String())
	}
	return true, scanner.Err()
}

func (c *StreamClient) dispatch(payload string) {
	if strings.TrimSpace(payload) == "" {
		return
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		c.logger().Printf("relay: dropping malformed stream payload: %v", err)
		return
	}
	if c.Handler != nil {
		c.Handler(ev)
	}
}

// APIStatusError reports a non-200 response on stream connect.
type APIStatusError struct {
	StatusCode int
}

func (e *APIStatusError) Error() string {
	return "stream endpoint returned status " + http.StatusText(e.StatusCode)
}
