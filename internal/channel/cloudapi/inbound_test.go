package cloudapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mediagatehq/mediagate/internal/media"
	"github.com/mediagatehq/mediagate/internal/webhooklog"
)

type fakeMediaStore struct {
	existing map[string]bool
	failFor  map[string]error
	ingested []media.IngestInput
}

func (f *fakeMediaStore) Exists(_ context.Context, messageID string) (bool, error) {
	return f.existing[messageID], nil
}

func (f *fakeMediaStore) Ingest(_ context.Context, input media.IngestInput) (media.Item, error) {
	if err := f.failFor[input.MessageID]; err != nil {
		return media.Item{}, err
	}
	f.ingested = append(f.ingested, input)
	return media.Item{ID: "item-" + input.MessageID, FilePath: "path/" + input.MessageID}, nil
}

type fakeLogStore struct {
	created   []map[string]any
	enriched  []map[string]any
	processed []string
	errors    []string
}

func (f *fakeLogStore) Create(_ context.Context, payload map[string]any) (string, error) {
	f.created = append(f.created, payload)
	return fmt.Sprintf("log-%d", len(f.created)), nil
}

func (f *fakeLogStore) Enrich(_ context.Context, _ string, payload map[string]any) error {
	f.enriched = append(f.enriched, payload)
	return nil
}

func (f *fakeLogStore) MarkProcessed(_ context.Context, id string) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeLogStore) SetError(_ context.Context, _ string, message string) error {
	f.errors = append(f.errors, message)
	return nil
}

type fakeGroups struct {
	ensured []string
}

func (f *fakeGroups) Ensure(_ context.Context, groupID string) error {
	f.ensured = append(f.ensured, groupID)
	return nil
}

type fakeFetcher struct {
	resolveErr  error
	downloadErr error
}

func (f *fakeFetcher) ResolveMediaURL(_ context.Context, mediaID string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "https://lookaside.example/" + mediaID, nil
}

func (f *fakeFetcher) DownloadMedia(_ context.Context, _ string) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return io.NopCloser(strings.NewReader("media-bytes")), nil
}

func newTestProcessor(store *fakeMediaStore, logs *fakeLogStore, groups *fakeGroups, fetcher *fakeFetcher) *Processor {
	return NewProcessor(slog.Default(), store, logs, groups, fetcher)
}

func imagePayload(messageID string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "biz-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550001111", "phone_number_id": "pn-42"},
					"contacts": [{"profile": {"name": "Alice"}, "wa_id": "15552223333"}],
					"messages": [{
						"from": "15552223333",
						"id": %q,
						"timestamp": "1717171717",
						"type": "image",
						"image": {"id": "media-7", "mime_type": "image/jpeg", "sha256": "abc123", "caption": "hello"}
					}]
				}
			}]
		}]
	}`, messageID))
}

func TestProcess_ImageMessage(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	groups := &fakeGroups{}
	proc := newTestProcessor(store, logs, groups, &fakeFetcher{})

	result, err := proc.Process(context.Background(), imagePayload("wamid.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventType != webhooklog.EventTypeMessage || result.Ingested != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	input := store.ingested[0]
	if input.MessageID != "wamid.1" {
		t.Fatalf("unexpected message id %q", input.MessageID)
	}
	if input.GroupID != "cloud_pn-42" {
		t.Fatalf("unexpected group id %q", input.GroupID)
	}
	if input.SenderName != "Alice" || input.SenderPhone != "15552223333" {
		t.Fatalf("unexpected sender: %q %q", input.SenderName, input.SenderPhone)
	}
	if input.Caption != "hello" || input.MediaType != media.TypePhoto {
		t.Fatalf("unexpected attachment fields: %+v", input)
	}
	if input.Metadata["source"] != "cloud_api" || input.Metadata["media_id"] != "media-7" {
		t.Fatalf("unexpected metadata: %v", input.Metadata)
	}
	if input.Metadata["sha256"] != "abc123" {
		t.Fatalf("expected sha256 in metadata, got %v", input.Metadata)
	}
	if input.ReceivedAt.Unix() != 1717171717 {
		t.Fatalf("unexpected received at %v", input.ReceivedAt)
	}
	if len(groups.ensured) != 1 || groups.ensured[0] != "cloud_pn-42" {
		t.Fatalf("expected group registration, got %v", groups.ensured)
	}
	if len(logs.processed) != 1 {
		t.Fatalf("expected log marked processed")
	}
}

func TestProcess_TextMessagePreview(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 300)
	payload := []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "biz-1", "changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "pn-42"},
			"messages": [{"from": "15552223333", "id": "wamid.2", "timestamp": "1717171717", "type": "text", "text": {"body": %q}}]
		}}]}]
	}`, long))

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	proc := newTestProcessor(store, logs, &fakeGroups{}, &fakeFetcher{})

	result, err := proc.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventType != webhooklog.EventTypeMessage || result.Ingested != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	enriched := logs.enriched[0]
	preview, _ := enriched[webhooklog.KeyTextPreview].(string)
	if len(preview) != 200 {
		t.Fatalf("expected 200 char preview, got %d", len(preview))
	}
	if enriched[webhooklog.KeyMessageType] != "text" {
		t.Fatalf("unexpected message type: %v", enriched[webhooklog.KeyMessageType])
	}
}

func TestProcess_MultibytePreviewStaysValidUTF8(t *testing.T) {
	t.Parallel()

	// 250 two-byte runes: a byte-indexed cut at 200 would land mid-rune.
	long := strings.Repeat("ф", 250)
	payload := []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "biz-1", "changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "pn-42"},
			"messages": [{"from": "15552223333", "id": "wamid.9", "timestamp": "1717171717", "type": "text", "text": {"body": %q}}]
		}}]}]
	}`, long))

	logs := &fakeLogStore{}
	proc := newTestProcessor(&fakeMediaStore{}, logs, &fakeGroups{}, &fakeFetcher{})

	if _, err := proc.Process(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	preview, _ := logs.enriched[0][webhooklog.KeyTextPreview].(string)
	if !utf8.ValidString(preview) {
		t.Fatalf("preview is not valid UTF-8: %q", preview)
	}
	if got := utf8.RuneCountInString(preview); got != 200 {
		t.Fatalf("expected 200 character preview, got %d", got)
	}
}

func TestTruncate_CountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	// 100 three-byte runes is 300 bytes but only 100 characters, so it
	// must come through untouched.
	short := strings.Repeat("€", 100)
	if got := truncate(short, 200); got != short {
		t.Fatalf("expected %d-character message untouched, got %d runes",
			utf8.RuneCountInString(short), utf8.RuneCountInString(got))
	}
	if got := truncate("plain ascii", 200); got != "plain ascii" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestProcess_IgnoresOtherObjects(t *testing.T) {
	t.Parallel()

	logs := &fakeLogStore{}
	proc := newTestProcessor(&fakeMediaStore{}, logs, &fakeGroups{}, &fakeFetcher{})

	result, err := proc.Process(context.Background(), []byte(`{"object": "instagram", "entry": []}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventType != webhooklog.EventTypeUnknown {
		t.Fatalf("unexpected event type %q", result.EventType)
	}
	// Ignored deliveries still get closed out.
	if len(logs.processed) != 1 {
		t.Fatalf("expected log marked processed")
	}
}

func TestProcess_StatusDelivery(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "biz-1", "changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "pn-42"},
			"statuses": [{"id": "wamid.3", "status": "delivered", "timestamp": "1717171717", "recipient_id": "15552223333"}]
		}}]}]
	}`)

	logs := &fakeLogStore{}
	proc := newTestProcessor(&fakeMediaStore{}, logs, &fakeGroups{}, &fakeFetcher{})

	result, err := proc.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventType != webhooklog.EventTypeStatus {
		t.Fatalf("unexpected event type %q", result.EventType)
	}
}

func TestProcess_DuplicateSkipped(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{existing: map[string]bool{"wamid.1": true}}
	logs := &fakeLogStore{}
	proc := newTestProcessor(store, logs, &fakeGroups{}, &fakeFetcher{})

	result, err := proc.Process(context.Background(), imagePayload("wamid.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Ingested != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(logs.errors) != 0 {
		t.Fatalf("duplicates are not errors, got %v", logs.errors)
	}
}

func TestProcess_FetchFailureRecorded(t *testing.T) {
	t.Parallel()

	logs := &fakeLogStore{}
	fetcher := &fakeFetcher{resolveErr: fmt.Errorf("graph api returned 404")}
	proc := newTestProcessor(&fakeMediaStore{}, logs, &fakeGroups{}, fetcher)

	result, err := proc.Process(context.Background(), imagePayload("wamid.4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(logs.errors) != 1 || !strings.Contains(logs.errors[0], "wamid.4") {
		t.Fatalf("expected failure recorded, got %v", logs.errors)
	}
	// Failed deliveries are still closed out so they never stay pending.
	if len(logs.processed) != 1 {
		t.Fatalf("expected log marked processed")
	}
}

func TestProcess_UnsupportedTypeSkipped(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "biz-1", "changes": [{"field": "messages", "value": {
			"metadata": {"phone_number_id": "pn-42"},
			"messages": [{"from": "15552223333", "id": "wamid.5", "timestamp": "1717171717", "type": "audio"}]
		}}]}]
	}`)

	logs := &fakeLogStore{}
	proc := newTestProcessor(&fakeMediaStore{}, logs, &fakeGroups{}, &fakeFetcher{})

	result, err := proc.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcess_MalformedPayload(t *testing.T) {
	t.Parallel()

	logs := &fakeLogStore{}
	proc := newTestProcessor(&fakeMediaStore{}, logs, &fakeGroups{}, &fakeFetcher{})

	if _, err := proc.Process(context.Background(), []byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if len(logs.created) != 0 {
		t.Fatalf("expected no log entry for undecodable payload")
	}
}
