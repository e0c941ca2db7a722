// Package whatsapp talks to the Meta Graph API: resolving and downloading
// inbound media, and sending outbound messages.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mediagatehq/mediagate/internal/config"
)

// ErrNotConfigured indicates the Graph API credentials are missing.
var ErrNotConfigured = errors.New("whatsapp access token not configured")

// Client is a thin Graph API client. One-shot calls only; retry policy
// belongs to the callers.
type Client struct {
	baseURL       string
	version       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient builds a Graph API client from config.
func NewClient(log *slog.Logger, cfg config.WhatsAppConfig, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.GraphBaseURL, "/"),
		version:       cfg.GraphVersion,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        log.With(slog.String("service", "whatsapp")),
	}
}

// ResolveMediaURL looks up the short-lived download URL for a provider
// media ID.
func (c *Client) ResolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	if c.accessToken == "" {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/%s/%s?fields=url", c.baseURL, c.version, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build media lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media lookup returned %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode media lookup response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("media lookup returned no url")
	}
	return out.URL, nil
}

// DownloadMedia fetches the bytes behind a resolved media URL. The caller
// must close the returned reader.
func (c *Client) DownloadMedia(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build media download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("media download returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// SendRequest describes one outbound message.
type SendRequest struct {
	To               string `json:"to" validate:"required"`
	Type             string `json:"type" validate:"omitempty,oneof=text template image video"`
	Message          string `json:"message,omitempty"`
	TemplateName     string `json:"templateName,omitempty"`
	TemplateLanguage string `json:"templateLanguage,omitempty"`
	MediaURL         string `json:"mediaUrl,omitempty"`
	Caption          string `json:"caption,omitempty"`
}

// SendResult reports a successful outbound send.
type SendResult struct {
	MessageID string
	To        string
}

var phoneJunk = regexp.MustCompile(`[\s\-\(\)]`)

// CleanPhone normalizes a recipient number: spaces, dashes, and parens are
// stripped, as is a leading plus.
func CleanPhone(phone string) string {
	return strings.TrimPrefix(phoneJunk.ReplaceAllString(phone, ""), "+")
}

// SendMessage delivers one message through the Cloud API. Direct one-shot
// call; failures surface to the caller without retry.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendResult, error) {
	if c.accessToken == "" {
		return SendResult{}, ErrNotConfigured
	}
	if c.phoneNumberID == "" {
		return SendResult{}, fmt.Errorf("whatsapp phone number id not configured")
	}

	to := CleanPhone(req.To)
	payload, err := buildSendPayload(to, req)
	if err != nil {
		return SendResult{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal send payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("build send request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SendResult{}, fmt.Errorf("decode send response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := "failed to send message"
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return SendResult{}, fmt.Errorf("graph api returned %d: %s", resp.StatusCode, msg)
	}

	result := SendResult{To: to}
	if len(out.Messages) > 0 {
		result.MessageID = out.Messages[0].ID
	}
	c.logger.Info("message sent",
		slog.String("to", to), slog.String("message_id", result.MessageID))
	return result, nil
}

func buildSendPayload(to string, req SendRequest) (map[string]any, error) {
	msgType := req.Type
	if msgType == "" {
		msgType = "text"
	}

	switch {
	case msgType == "image" && req.MediaURL != "":
		return map[string]any{
			"messaging_product": "whatsapp",
			"recipient_type":    "individual",
			"to":                to,
			"type":              "image",
			"image":             mediaLink(req.MediaURL, req.Caption),
		}, nil
	case msgType == "video" && req.MediaURL != "":
		return map[string]any{
			"messaging_product": "whatsapp",
			"recipient_type":    "individual",
			"to":                to,
			"type":              "video",
			"video":             mediaLink(req.MediaURL, req.Caption),
		}, nil
	case msgType == "template" && req.TemplateName != "":
		lang := req.TemplateLanguage
		if lang == "" {
			lang = "en"
		}
		return map[string]any{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "template",
			"template": map[string]any{
				"name":     req.TemplateName,
				"language": map[string]any{"code": lang},
			},
		}, nil
	default:
		if req.Message == "" {
			return nil, fmt.Errorf("message text is required for text messages")
		}
		return map[string]any{
			"messaging_product": "whatsapp",
			"recipient_type":    "individual",
			"to":                to,
			"type":              "text",
			"text": map[string]any{
				"preview_url": true,
				"body":        req.Message,
			},
		}, nil
	}
}

func mediaLink(url, caption string) map[string]any {
	link := map[string]any{"link": url}
	if caption != "" {
		link["caption"] = caption
	}
	return link
}
