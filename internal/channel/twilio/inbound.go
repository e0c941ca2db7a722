// Package twilio parses Twilio form-encoded WhatsApp webhooks into
// canonical media records. One inbound call may carry several attachments;
// each is processed independently so a bad attachment never aborts its
// siblings.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mediagatehq/mediagate/internal/config"
	"github.com/mediagatehq/mediagate/internal/media"
)

// TwiMLAck is the empty acknowledgment body Twilio expects on every
// successfully handled webhook.
const TwiMLAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

const addressPrefix = "whatsapp:"

// MediaStore is the subset of the media service the processor needs.
type MediaStore interface {
	Exists(ctx context.Context, messageID string) (bool, error)
	Ingest(ctx context.Context, input media.IngestInput) (media.Item, error)
}

// LogStore is the subset of the webhook log service the processor needs.
type LogStore interface {
	Create(ctx context.Context, payload map[string]any) (string, error)
	MarkProcessed(ctx context.Context, id string) error
	SetError(ctx context.Context, id, message string) error
}

// GroupRegistry registers group IDs on first sight.
type GroupRegistry interface {
	Ensure(ctx context.Context, groupID string) error
}

// Result summarizes one processed webhook call.
type Result struct {
	LogID     string
	MessageID string
	NumMedia  int
	Ingested  int
	Skipped   int
	Failed    int
}

// Processor handles one inbound Twilio webhook delivery at a time. It is
// stateless; all coordination happens through the stores.
type Processor struct {
	mediaStore MediaStore
	logStore   LogStore
	groups     GroupRegistry
	httpClient *http.Client
	accountSID string
	authToken  string
	logger     *slog.Logger
}

// NewProcessor creates a Twilio inbound processor. httpClient must carry a
// bounded timeout; Twilio credentials are optional (media URLs on trial
// accounts are fetchable unauthenticated).
func NewProcessor(log *slog.Logger, mediaStore MediaStore, logStore LogStore, groups GroupRegistry, httpClient *http.Client, cfg config.TwilioConfig) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Processor{
		mediaStore: mediaStore,
		logStore:   logStore,
		groups:     groups,
		httpClient: httpClient,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		logger:     log.With(slog.String("channel", "twilio")),
	}
}

// Process ingests one webhook delivery. The log entry is written before any
// parsing; per-attachment failures are recorded on it without failing the
// call. The returned error is reserved for top-level faults (log insert
// failure), which the handler maps to a 500.
func (p *Processor) Process(ctx context.Context, form url.Values) (Result, error) {
	payload := make(map[string]any, len(form))
	for key := range form {
		payload[key] = form.Get(key)
	}

	logID, err := p.logStore.Create(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("log webhook: %w", err)
	}

	messageSID := form.Get("MessageSid")
	if messageSID == "" {
		messageSID = form.Get("SmsMessageSid")
	}
	from := form.Get("From")
	to := form.Get("To")
	body := form.Get("Body")
	profileName := form.Get("ProfileName")
	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))

	groupID := form.Get("WaId")
	if groupID == "" {
		groupID = strings.TrimPrefix(from, addressPrefix)
	}

	result := Result{LogID: logID, MessageID: messageSID, NumMedia: numMedia}

	if numMedia == 0 {
		p.logger.Info("no media in message",
			slog.String("message_sid", messageSID), slog.String("from", from))
		if err := p.logStore.MarkProcessed(ctx, logID); err != nil {
			p.logger.Error("mark processed failed", slog.Any("error", err))
		}
		return result, nil
	}

	if p.groups != nil && groupID != "" {
		if err := p.groups.Ensure(ctx, groupID); err != nil {
			p.logger.Warn("group registration failed",
				slog.String("group_id", groupID), slog.Any("error", err))
		}
	}

	for i := 0; i < numMedia; i++ {
		mediaURL := form.Get(fmt.Sprintf("MediaUrl%d", i))
		contentType := form.Get(fmt.Sprintf("MediaContentType%d", i))

		if mediaURL == "" {
			p.logger.Warn("missing media url field",
				slog.String("message_sid", messageSID), slog.Int("index", i))
			result.Skipped++
			continue
		}

		messageID := media.AttachmentMessageID(messageSID, i)

		exists, err := p.mediaStore.Exists(ctx, messageID)
		if err == nil && exists {
			p.logger.Info("duplicate media delivery",
				slog.String("message_id", messageID))
			result.Skipped++
			continue
		}

		err = p.ingestAttachment(ctx, attachment{
			index:       i,
			messageID:   messageID,
			mediaURL:    mediaURL,
			contentType: contentType,
			groupID:     groupID,
			from:        strings.TrimPrefix(from, addressPrefix),
			to:          to,
			body:        body,
			profileName: profileName,
		})
		if errors.Is(err, media.ErrDuplicateMessage) {
			// Lost the race against a concurrent redelivery.
			p.logger.Info("duplicate media delivery",
				slog.String("message_id", messageID))
			result.Skipped++
			continue
		}
		if err != nil {
			p.logger.Error("attachment ingest failed",
				slog.String("message_id", messageID), slog.Any("error", err))
			if logErr := p.logStore.SetError(ctx, logID, fmt.Sprintf("Media %d: %v", i, err)); logErr != nil {
				p.logger.Error("record attachment error failed", slog.Any("error", logErr))
			}
			result.Failed++
			continue
		}
		result.Ingested++
	}

	if err := p.logStore.MarkProcessed(ctx, logID); err != nil {
		p.logger.Error("mark processed failed", slog.Any("error", err))
	}
	return result, nil
}

type attachment struct {
	index       int
	messageID   string
	mediaURL    string
	contentType string
	groupID     string
	from        string
	to          string
	body        string
	profileName string
}

func (p *Processor) ingestAttachment(ctx context.Context, att attachment) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.mediaURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	if p.accountSID != "" && p.authToken != "" {
		req.SetBasicAuth(p.accountSID, p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	caption := ""
	if att.index == 0 {
		caption = att.body
	}

	_, err = p.mediaStore.Ingest(ctx, media.IngestInput{
		MessageID:   att.messageID,
		GroupID:     att.groupID,
		SenderPhone: att.from,
		SenderName:  att.profileName,
		MediaType:   media.TypeFromMime(att.contentType),
		Mime:        att.contentType,
		Caption:     caption,
		Metadata: map[string]any{
			"source":       "twilio",
			"to":           att.to,
			"original_url": att.mediaURL,
		},
		Reader: resp.Body,
	})
	return err
}
