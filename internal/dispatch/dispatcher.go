// Package dispatch delivers approved media to its destinations. A cron
// driven processor claims approved queue entries in batches and routes
// each one through the dispatcher's per-type upload table.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mediagatehq/mediagate/internal/destinations"
	"github.com/mediagatehq/mediagate/internal/media"
)

// UploadRequest carries everything one delivery needs. MediaURL is a
// signed, short-lived download link; destinations fetch the bytes
// themselves.
type UploadRequest struct {
	MediaURL    string
	Item        media.Item
	Destination destinations.Destination
}

// Dispatcher routes upload requests by destination type.
type Dispatcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher using the given HTTP client for
// webhook and API deliveries.
func NewDispatcher(log *slog.Logger, httpClient *http.Client) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{
		httpClient: httpClient,
		logger:     log.With(slog.String("service", "dispatch")),
	}
}

// Dispatch delivers one request and returns a human-readable outcome
// message. Unknown and unimplemented destination types return errors so
// the queue records them as failures.
func (d *Dispatcher) Dispatch(ctx context.Context, req UploadRequest) (string, error) {
	switch req.Destination.Type {
	case destinations.TypeWebhook:
		return d.uploadToWebhook(ctx, req)
	case destinations.TypeAPI:
		return d.uploadToAPI(ctx, req)
	case destinations.TypeCMS:
		// CMS targets speak the same endpoint/api_key contract.
		return d.uploadToAPI(ctx, req)
	case destinations.TypeYouTube:
		return "", fmt.Errorf("youtube upload not implemented, requires oauth setup")
	case destinations.TypeInstagram:
		return "", fmt.Errorf("instagram upload not implemented, requires oauth setup")
	case destinations.TypeFacebook:
		return "", fmt.Errorf("facebook upload not implemented, requires oauth setup")
	case destinations.TypeS3:
		return "", fmt.Errorf("s3 upload not implemented, requires bucket credentials")
	case destinations.TypeFTP:
		return "", fmt.Errorf("ftp upload not implemented")
	default:
		return "", fmt.Errorf("unknown destination type %q", req.Destination.Type)
	}
}

func (d *Dispatcher) uploadToWebhook(ctx context.Context, req UploadRequest) (string, error) {
	rawURL, _ := req.Destination.Config["url"].(string)
	if rawURL == "" {
		return "", fmt.Errorf("webhook url not configured")
	}

	payload := map[string]any{
		"media_url":   req.MediaURL,
		"media_type":  req.Item.MediaType,
		"caption":     req.Item.Caption,
		"sender":      senderLabel(req.Item),
		"received_at": req.Item.ReceivedAt,
		"metadata":    req.Item.Metadata,
	}

	headers := http.Header{}
	if apiKey, _ := req.Destination.Config["api_key"].(string); apiKey != "" {
		headers.Set("Authorization", "Bearer "+apiKey)
	}
	if err := d.postJSON(ctx, rawURL, payload, headers); err != nil {
		return "", err
	}
	return "webhook delivered", nil
}

func (d *Dispatcher) uploadToAPI(ctx context.Context, req UploadRequest) (string, error) {
	endpoint, _ := req.Destination.Config["endpoint"].(string)
	if endpoint == "" {
		return "", fmt.Errorf("api endpoint not configured")
	}

	payload := map[string]any{
		"url":     req.MediaURL,
		"type":    req.Item.MediaType,
		"caption": req.Item.Caption,
		"metadata": map[string]any{
			"sender":      senderLabel(req.Item),
			"received_at": req.Item.ReceivedAt,
		},
	}

	headers := http.Header{}
	if apiKey, _ := req.Destination.Config["api_key"].(string); apiKey != "" {
		headers.Set("X-API-Key", apiKey)
	}
	if err := d.postJSON(ctx, endpoint, payload, headers); err != nil {
		return "", err
	}
	return "uploaded to api", nil
}

func (d *Dispatcher) postJSON(ctx context.Context, url string, payload map[string]any, headers http.Header) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("destination returned %d", resp.StatusCode)
	}
	return nil
}

func senderLabel(item media.Item) string {
	if item.SenderName != "" {
		return item.SenderName
	}
	return item.SenderPhone
}
