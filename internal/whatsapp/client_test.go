package whatsapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mediagatehq/mediagate/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(slog.Default(), config.WhatsAppConfig{
		AccessToken:   "token-123",
		PhoneNumberID: "555001",
		GraphBaseURL:  srv.URL,
		GraphVersion:  "v18.0",
	}, 5*time.Second)
	return client, srv
}

func TestCleanPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "+1 (555) 123-4567", want: "15551234567"},
		{in: "491701234567", want: "491701234567"},
		{in: "+49 170 1234567", want: "491701234567"},
	}
	for _, tt := range tests {
		if got := CleanPhone(tt.in); got != tt.want {
			t.Fatalf("CleanPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveMediaURL(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v18.0/media-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("fields"); got != "url" {
			t.Errorf("unexpected fields param %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/file"})
	}))

	url, err := client.ResolveMediaURL(context.Background(), "media-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example/file" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestResolveMediaURL_Failure(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if _, err := client.ResolveMediaURL(context.Background(), "gone"); err == nil {
		t.Fatalf("expected error for 404 lookup")
	}
}

func TestSendMessage_TextPayload(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v18.0/555001/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.OUT1"}},
		})
	}))

	result, err := client.SendMessage(context.Background(), SendRequest{
		To:      "+1 (555) 000-1111",
		Message: "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MessageID != "wamid.OUT1" {
		t.Fatalf("unexpected message id %q", result.MessageID)
	}
	if result.To != "15550001111" {
		t.Fatalf("unexpected recipient %q", result.To)
	}
	if captured["type"] != "text" {
		t.Fatalf("unexpected payload type %v", captured["type"])
	}
	text, _ := captured["text"].(map[string]any)
	if text["body"] != "hello" {
		t.Fatalf("unexpected text body %v", text["body"])
	}
}

func TestSendMessage_VideoPayload(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.OUT2"}},
		})
	}))

	_, err := client.SendMessage(context.Background(), SendRequest{
		To:       "15550001111",
		Type:     "video",
		MediaURL: "https://cdn.example/v.mp4",
		Caption:  "clip",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured["type"] != "video" {
		t.Fatalf("unexpected payload type %v", captured["type"])
	}
	video, _ := captured["video"].(map[string]any)
	if video["link"] != "https://cdn.example/v.mp4" || video["caption"] != "clip" {
		t.Fatalf("unexpected video payload %v", video)
	}
}

func TestSendMessage_GraphError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid recipient"},
		})
	}))

	_, err := client.SendMessage(context.Background(), SendRequest{
		To:      "15550001111",
		Message: "hi",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "graph api returned 400: invalid recipient" {
		t.Fatalf("unexpected error message %q", got)
	}
}

func TestSendMessage_MissingText(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}))

	if _, err := client.SendMessage(context.Background(), SendRequest{To: "15550001111"}); err == nil {
		t.Fatalf("expected error for missing text")
	}
}
