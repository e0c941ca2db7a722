package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mediagatehq/mediagate/internal/config"
	"github.com/mediagatehq/mediagate/internal/media"
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
	return media.Item{ID: "item-" + input.MessageID, MessageID: input.MessageID}, nil
}

type fakeLogStore struct {
	created   []map[string]any
	processed []string
	errors    []string
}

func (f *fakeLogStore) Create(_ context.Context, payload map[string]any) (string, error) {
	f.created = append(f.created, payload)
	return fmt.Sprintf("log-%d", len(f.created)), nil
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

func newTestProcessor(t *testing.T, store *fakeMediaStore, logs *fakeLogStore, groups *fakeGroups) (*Processor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("media-bytes"))
	}))
	t.Cleanup(srv.Close)

	proc := NewProcessor(slog.Default(), store, logs, groups, srv.Client(), config.TwilioConfig{})
	return proc, srv
}

func baseForm(srv *httptest.Server, numMedia int) url.Values {
	form := url.Values{}
	form.Set("MessageSid", "SM100")
	form.Set("From", "whatsapp:+15550001111")
	form.Set("To", "whatsapp:+15559990000")
	form.Set("Body", "caption text")
	form.Set("ProfileName", "Alice")
	form.Set("WaId", "15550001111")
	form.Set("NumMedia", fmt.Sprint(numMedia))
	for i := 0; i < numMedia; i++ {
		form.Set(fmt.Sprintf("MediaUrl%d", i), srv.URL+fmt.Sprintf("/media/%d", i))
		form.Set(fmt.Sprintf("MediaContentType%d", i), "image/jpeg")
	}
	return form
}

func TestProcess_NoMedia(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	proc, srv := newTestProcessor(t, store, logs, &fakeGroups{})

	result, err := proc.Process(context.Background(), baseForm(srv, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ingested != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.ingested) != 0 {
		t.Fatalf("expected no ingests")
	}
	if len(logs.processed) != 1 {
		t.Fatalf("expected log entry marked processed")
	}
	if len(logs.created) != 1 {
		t.Fatalf("expected one log entry")
	}
}

func TestProcess_MultipleAttachments(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	groups := &fakeGroups{}
	proc, srv := newTestProcessor(t, store, logs, groups)

	form := baseForm(srv, 2)
	form.Set("MediaContentType1", "video/mp4")

	result, err := proc.Process(context.Background(), form)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ingested != 2 {
		t.Fatalf("expected 2 ingests, got %+v", result)
	}

	first, second := store.ingested[0], store.ingested[1]
	if first.MessageID != "SM100_0" || second.MessageID != "SM100_1" {
		t.Fatalf("unexpected message ids: %q %q", first.MessageID, second.MessageID)
	}
	if first.Caption != "caption text" {
		t.Fatalf("expected caption on first attachment")
	}
	if second.Caption != "" {
		t.Fatalf("expected no caption on second attachment")
	}
	if first.MediaType != media.TypePhoto || second.MediaType != media.TypeVideo {
		t.Fatalf("unexpected media types: %q %q", first.MediaType, second.MediaType)
	}
	if first.GroupID != "15550001111" {
		t.Fatalf("unexpected group id %q", first.GroupID)
	}
	if first.SenderPhone != "+15550001111" {
		t.Fatalf("unexpected sender phone %q", first.SenderPhone)
	}
	if first.Metadata["original_url"] == "" {
		t.Fatalf("expected original_url in metadata")
	}
	if len(groups.ensured) != 1 || groups.ensured[0] != "15550001111" {
		t.Fatalf("expected group registration, got %v", groups.ensured)
	}
}

func TestProcess_AttachmentFailureIsolated(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{
		failFor: map[string]error{"SM100_1": fmt.Errorf("storage write failed")},
	}
	logs := &fakeLogStore{}
	proc, srv := newTestProcessor(t, store, logs, &fakeGroups{})

	result, err := proc.Process(context.Background(), baseForm(srv, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Ingested != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(logs.errors) != 1 || !strings.Contains(logs.errors[0], "Media 1") {
		t.Fatalf("expected attachment error recorded, got %v", logs.errors)
	}
	// The whole call is still acknowledged and marked processed.
	if len(logs.processed) != 1 {
		t.Fatalf("expected log entry marked processed")
	}
}

func TestProcess_DuplicateSkipped(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{existing: map[string]bool{"SM100_0": true}}
	logs := &fakeLogStore{}
	proc, srv := newTestProcessor(t, store, logs, &fakeGroups{})

	result, err := proc.Process(context.Background(), baseForm(srv, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Ingested != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(logs.errors) != 0 {
		t.Fatalf("duplicates are not errors, got %v", logs.errors)
	}
}

func TestProcess_MissingMediaURLSkipped(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	proc, srv := newTestProcessor(t, store, logs, &fakeGroups{})

	form := baseForm(srv, 2)
	form.Del("MediaUrl0")

	result, err := proc.Process(context.Background(), form)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Ingested != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcess_DownloadFailure(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	proc, srv := newTestProcessor(t, store, logs, &fakeGroups{})

	form := baseForm(srv, 1)
	form.Set("MediaUrl0", srv.URL+"/missing")

	result, err := proc.Process(context.Background(), form)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected download failure, got %+v", result)
	}
	if len(logs.errors) != 1 || !strings.Contains(logs.errors[0], "status 404") {
		t.Fatalf("expected status in error, got %v", logs.errors)
	}
}

func TestProcess_GroupFallbackFromSender(t *testing.T) {
	t.Parallel()

	store := &fakeMediaStore{}
	logs := &fakeLogStore{}
	proc, srv := newTestProcessor(t, store, logs, &fakeGroups{})

	form := baseForm(srv, 1)
	form.Del("WaId")

	if _, err := proc.Process(context.Background(), form); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.ingested[0].GroupID != "+15550001111" {
		t.Fatalf("expected group derived from sender, got %q", store.ingested[0].GroupID)
	}
}
