package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mediagatehq/mediagate/internal/destinations"
	"github.com/mediagatehq/mediagate/internal/media"
)

func testItem() media.Item {
	return media.Item{
		ID:          "media-1",
		MessageID:   "SM1_0",
		GroupID:     "group-1",
		SenderPhone: "+15550001111",
		SenderName:  "Alice",
		MediaType:   media.TypePhoto,
		Caption:     "hello",
		ReceivedAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Metadata:    map[string]any{"source": "twilio"},
	}
}

func TestDispatch_Webhook(t *testing.T) {
	t.Parallel()

	var (
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), srv.Client())
	msg, err := d.Dispatch(context.Background(), UploadRequest{
		MediaURL: "https://signed.example/blob",
		Item:     testItem(),
		Destination: destinations.Destination{
			Type:   destinations.TypeWebhook,
			Config: map[string]any{"url": srv.URL, "api_key": "secret"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == "" {
		t.Fatal("expected outcome message")
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["media_url"] != "https://signed.example/blob" {
		t.Fatalf("unexpected media_url %v", gotBody["media_url"])
	}
	if gotBody["sender"] != "Alice" {
		t.Fatalf("expected sender name over phone, got %v", gotBody["sender"])
	}
	if gotBody["media_type"] != "photo" {
		t.Fatalf("unexpected media_type %v", gotBody["media_type"])
	}
}

func TestDispatch_APIHeaders(t *testing.T) {
	t.Parallel()

	var (
		gotKey  string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), srv.Client())
	item := testItem()
	item.SenderName = ""

	_, err := d.Dispatch(context.Background(), UploadRequest{
		MediaURL: "https://signed.example/blob",
		Item:     item,
		Destination: destinations.Destination{
			Type:   destinations.TypeAPI,
			Config: map[string]any{"endpoint": srv.URL, "api_key": "k1"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "k1" {
		t.Fatalf("unexpected api key header %q", gotKey)
	}
	meta, _ := gotBody["metadata"].(map[string]any)
	if meta["sender"] != "+15550001111" {
		t.Fatalf("expected phone fallback sender, got %v", meta["sender"])
	}
}

func TestDispatch_CMSUsesAPIContract(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), srv.Client())
	if _, err := d.Dispatch(context.Background(), UploadRequest{
		Item: testItem(),
		Destination: destinations.Destination{
			Type:   destinations.TypeCMS,
			Config: map[string]any{"endpoint": srv.URL},
		},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatch_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), srv.Client())
	_, err := d.Dispatch(context.Background(), UploadRequest{
		Item: testItem(),
		Destination: destinations.Destination{
			Type:   destinations.TypeWebhook,
			Config: map[string]any{"url": srv.URL},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDispatch_UnimplementedAndUnknownTypes(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(slog.Default(), nil)
	for _, dtype := range []destinations.Type{
		destinations.TypeYouTube,
		destinations.TypeInstagram,
		destinations.TypeFacebook,
		destinations.TypeS3,
		destinations.TypeFTP,
	} {
		if _, err := d.Dispatch(context.Background(), UploadRequest{
			Item:        testItem(),
			Destination: destinations.Destination{Type: dtype},
		}); err == nil {
			t.Errorf("%s should not be deliverable", dtype)
		}
	}

	_, err := d.Dispatch(context.Background(), UploadRequest{
		Item:        testItem(),
		Destination: destinations.Destination{Type: "carrier-pigeon"},
	})
	if err == nil || !strings.Contains(err.Error(), "unknown destination type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestDispatch_MissingConfig(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(slog.Default(), nil)
	if _, err := d.Dispatch(context.Background(), UploadRequest{
		Item:        testItem(),
		Destination: destinations.Destination{Type: destinations.TypeWebhook},
	}); err == nil {
		t.Fatal("webhook without url should fail")
	}
	if _, err := d.Dispatch(context.Background(), UploadRequest{
		Item:        testItem(),
		Destination: destinations.Destination{Type: destinations.TypeAPI},
	}); err == nil {
		t.Fatal("api without endpoint should fail")
	}
}
