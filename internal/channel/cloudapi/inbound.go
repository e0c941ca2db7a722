// Package cloudapi ingests Meta WhatsApp Cloud API webhook deliveries.
// Attachment bytes are not carried in the webhook; they are fetched from
// the Graph media endpoint before being handed to the media store.
package cloudapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mediagatehq/mediagate/internal/media"
	"github.com/mediagatehq/mediagate/internal/webhooklog"
	"github.com/mediagatehq/mediagate/internal/whatsapp"
)

// textPreviewLimit caps the stored preview of inbound text messages.
const textPreviewLimit = 200

// MediaStore persists ingested attachments.
type MediaStore interface {
	Exists(ctx context.Context, messageID string) (bool, error)
	Ingest(ctx context.Context, input media.IngestInput) (media.Item, error)
}

// LogStore records webhook deliveries and their outcome.
type LogStore interface {
	Create(ctx context.Context, payload map[string]any) (string, error)
	Enrich(ctx context.Context, id string, payload map[string]any) error
	MarkProcessed(ctx context.Context, id string) error
	SetError(ctx context.Context, id, message string) error
}

// GroupRegistry tracks known source groups.
type GroupRegistry interface {
	Ensure(ctx context.Context, groupID string) error
}

// MediaFetcher resolves and downloads Graph-hosted media. Satisfied by
// *whatsapp.Client.
type MediaFetcher interface {
	ResolveMediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, url string) (io.ReadCloser, error)
}

// Result summarizes one processed delivery.
type Result struct {
	LogID     string
	EventType string
	Ingested  int
	Skipped   int
	Failed    int
}

// Processor handles Cloud API webhook deliveries.
type Processor struct {
	logger     *slog.Logger
	mediaStore MediaStore
	logStore   LogStore
	groups     GroupRegistry
	fetcher    MediaFetcher
}

// NewProcessor creates a Cloud API inbound processor.
func NewProcessor(log *slog.Logger, mediaStore MediaStore, logStore LogStore, groups GroupRegistry, fetcher MediaFetcher) *Processor {
	return &Processor{
		logger:     log.With(slog.String("service", "cloudapi")),
		mediaStore: mediaStore,
		logStore:   logStore,
		groups:     groups,
		fetcher:    fetcher,
	}
}

// Process ingests one webhook delivery. The raw payload is logged before
// any parsing; per-message failures are recorded on the log entry without
// failing the call, and the entry is always marked processed at the end so
// no delivery stays pending.
func (p *Processor) Process(ctx context.Context, body []byte) (Result, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("decode payload: %w", err)
	}

	logID, err := p.logStore.Create(ctx, raw)
	if err != nil {
		return Result{}, fmt.Errorf("log webhook: %w", err)
	}
	result := Result{LogID: logID}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("decode payload: %w", err)
	}

	derived := map[string]any{}
	var failures []string

	if payload.Object != whatsapp.ObjectBusinessAccount {
		p.logger.Info("ignoring delivery", slog.String("object", payload.Object))
		derived[webhooklog.KeyEventType] = webhooklog.EventTypeUnknown
		result.EventType = webhooklog.EventTypeUnknown
	} else {
		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				if change.Field != whatsapp.FieldMessages {
					continue
				}
				p.processChange(ctx, change.Value, derived, &result, &failures)
			}
		}
		if result.EventType == "" {
			result.EventType = webhooklog.EventTypeUnknown
			derived[webhooklog.KeyEventType] = webhooklog.EventTypeUnknown
		}
	}

	for k, v := range derived {
		raw[k] = v
	}
	if err := p.logStore.Enrich(ctx, logID, raw); err != nil {
		p.logger.Error("enrich log failed", slog.Any("error", err))
	}
	if len(failures) > 0 {
		if err := p.logStore.SetError(ctx, logID, strings.Join(failures, "; ")); err != nil {
			p.logger.Error("record error failed", slog.Any("error", err))
		}
	}
	if err := p.logStore.MarkProcessed(ctx, logID); err != nil {
		p.logger.Error("mark processed failed", slog.Any("error", err))
	}
	return result, nil
}

func (p *Processor) processChange(ctx context.Context, value whatsapp.ChangeValue, derived map[string]any, result *Result, failures *[]string) {
	if len(value.Statuses) > 0 && len(value.Messages) == 0 {
		derived[webhooklog.KeyEventType] = webhooklog.EventTypeStatus
		result.EventType = webhooklog.EventTypeStatus
		return
	}

	groupID := "cloud_" + value.Metadata.PhoneNumberID
	if p.groups != nil && len(value.Messages) > 0 {
		if err := p.groups.Ensure(ctx, groupID); err != nil {
			p.logger.Warn("group registration failed",
				slog.String("group_id", groupID), slog.Any("error", err))
		}
	}

	for _, msg := range value.Messages {
		derived[webhooklog.KeyEventType] = webhooklog.EventTypeMessage
		derived[webhooklog.KeyMessageType] = msg.Type
		derived[webhooklog.KeySenderPhone] = msg.From
		derived[webhooklog.KeySenderName] = value.SenderName(msg.From)
		derived[webhooklog.KeyReceivedAt] = parseTimestamp(msg.Timestamp).UTC().Format(time.RFC3339)
		result.EventType = webhooklog.EventTypeMessage

		switch msg.Type {
		case "text":
			if msg.Text != nil {
				derived[webhooklog.KeyTextPreview] = truncate(msg.Text.Body, textPreviewLimit)
			}
		case "image", "video":
			item, err := p.ingestMessage(ctx, value, msg, groupID)
			switch {
			case err == nil:
				derived[webhooklog.KeyMediaFile] = item.FilePath
				result.Ingested++
			case errors.Is(err, errAlreadyIngested), errors.Is(err, media.ErrDuplicateMessage):
				result.Skipped++
			default:
				p.logger.Error("attachment ingest failed",
					slog.String("message_id", msg.ID), slog.Any("error", err))
				*failures = append(*failures, fmt.Sprintf("Message %s: %v", msg.ID, err))
				result.Failed++
			}
		default:
			p.logger.Info("unsupported message type skipped",
				slog.String("type", msg.Type), slog.String("message_id", msg.ID))
			result.Skipped++
		}
	}
}

// errAlreadyIngested marks the pre-check duplicate fast path.
var errAlreadyIngested = errors.New("already ingested")

func (p *Processor) ingestMessage(ctx context.Context, value whatsapp.ChangeValue, msg whatsapp.Message, groupID string) (media.Item, error) {
	mc := msg.Media()
	if mc == nil {
		return media.Item{}, fmt.Errorf("message %s has no media content", msg.ID)
	}

	exists, err := p.mediaStore.Exists(ctx, msg.ID)
	if err != nil {
		return media.Item{}, fmt.Errorf("dedupe check: %w", err)
	}
	if exists {
		p.logger.Info("duplicate message skipped", slog.String("message_id", msg.ID))
		return media.Item{}, errAlreadyIngested
	}

	mediaURL, err := p.fetcher.ResolveMediaURL(ctx, mc.ID)
	if err != nil {
		return media.Item{}, fmt.Errorf("resolve media url: %w", err)
	}
	body, err := p.fetcher.DownloadMedia(ctx, mediaURL)
	if err != nil {
		return media.Item{}, fmt.Errorf("download media: %w", err)
	}
	defer body.Close()

	return p.mediaStore.Ingest(ctx, media.IngestInput{
		MessageID:   msg.ID,
		GroupID:     groupID,
		SenderPhone: msg.From,
		SenderName:  value.SenderName(msg.From),
		MediaType:   media.TypeFromMime(mc.MimeType),
		Mime:        mc.MimeType,
		Caption:     mc.Caption,
		ReceivedAt:  parseTimestamp(msg.Timestamp),
		Metadata: map[string]any{
			"source":          "cloud_api",
			"media_id":        mc.ID,
			"phone_number_id": value.Metadata.PhoneNumberID,
			"sha256":          mc.SHA256,
		},
		Reader: body,
	})
}

func parseTimestamp(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

// truncate caps s at limit characters, never cutting mid-rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
