package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookClient submits user messages to the external workflow endpoint.
// The response body is logged but not otherwise interpreted; any 2xx counts
// as acceptance.
type WebhookClient struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewWebhookClient builds a submitter for the given endpoint.
func NewWebhookClient(url, apiKey string) *WebhookClient {
	return &WebhookClient{
		URL:        url,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

func (w *WebhookClient) logger() *log.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return log.Default()
}

// Submit posts {message} to the workflow webhook.
func (w *WebhookClient) Submit(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(w.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+w.APIKey)
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("workflow webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	w.logger().Printf("workflow webhook accepted message (%d bytes response)", len(body))
	return nil
}
