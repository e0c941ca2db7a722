package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediagatehq/mediagate/internal/config"
	"github.com/mediagatehq/mediagate/internal/destinations"
	"github.com/mediagatehq/mediagate/internal/media"
	"github.com/mediagatehq/mediagate/internal/queue"
)

// QueueStore is the slice of the queue service the processor needs.
type QueueStore interface {
	Claim(ctx context.Context, limit int) ([]queue.Entry, error)
	Complete(ctx context.Context, id string) (queue.Entry, error)
	Fail(ctx context.Context, id, message string) error
	FailOrRequeue(ctx context.Context, id, message string, maxRetries int) (queue.Status, error)
}

// MediaStore loads items and mints signed download URLs.
type MediaStore interface {
	Get(ctx context.Context, id string) (media.Item, error)
	SignedURL(ctx context.Context, item media.Item, ttl time.Duration) (string, error)
}

// DestinationStore loads destination records.
type DestinationStore interface {
	Get(ctx context.Context, id string) (destinations.Destination, error)
}

// Uploader delivers one request. Satisfied by *Dispatcher.
type Uploader interface {
	Dispatch(ctx context.Context, req UploadRequest) (string, error)
}

// Summary reports one dispatch pass.
type Summary struct {
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// Processor claims approved queue entries and pushes them through the
// dispatcher.
type Processor struct {
	queue      QueueStore
	media      MediaStore
	dests      DestinationStore
	uploader   Uploader
	logger     *slog.Logger
	batchSize  int
	maxRetries int
	signedTTL  time.Duration
}

// NewProcessor creates a dispatch processor.
func NewProcessor(log *slog.Logger, queueStore QueueStore, mediaStore MediaStore, destStore DestinationStore, uploader Uploader, cfg config.DispatchConfig, signedTTLSeconds int) *Processor {
	if log == nil {
		log = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = config.DefaultBatchSize
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = config.DefaultMaxRetries
	}
	ttl := time.Duration(signedTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Processor{
		queue:      queueStore,
		media:      mediaStore,
		dests:      destStore,
		uploader:   uploader,
		logger:     log.With(slog.String("service", "dispatch")),
		batchSize:  batch,
		maxRetries: retries,
		signedTTL:  ttl,
	}
}

// Run executes one dispatch pass: claim a batch of approved entries,
// deliver each, and settle its status. Per-entry failures are absorbed
// into the summary; the pass itself only fails when the claim does.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	entries, err := p.queue.Claim(ctx, p.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("claim batch: %w", err)
	}
	if len(entries) == 0 {
		return Summary{Message: "no approved uploads"}, nil
	}

	summary := Summary{Total: len(entries)}
	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			p.logger.Warn("entry dispatch failed",
				slog.String("entry_id", entry.ID), slog.Any("error", err))
			summary.Failed++
			continue
		}
		summary.Processed++
	}
	summary.Message = fmt.Sprintf("processed %d of %d uploads", summary.Processed, summary.Total)

	p.logger.Info("dispatch pass finished",
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed),
		slog.Int("total", summary.Total))
	return summary, nil
}

// processEntry delivers one claimed entry. Transient errors settle the
// entry via FailOrRequeue; entries whose media item or destination no
// longer exists fail permanently without spending a retry.
func (p *Processor) processEntry(ctx context.Context, entry queue.Entry) error {
	deliver := func() (string, error) {
		item, err := p.media.Get(ctx, entry.MediaID)
		if err != nil {
			return "", fmt.Errorf("load media item: %w", err)
		}
		dest, err := p.dests.Get(ctx, entry.DestinationID)
		if err != nil {
			return "", fmt.Errorf("load destination: %w", err)
		}
		mediaURL, err := p.media.SignedURL(ctx, item, p.signedTTL)
		if err != nil {
			return "", fmt.Errorf("sign media url: %w", err)
		}
		return p.uploader.Dispatch(ctx, UploadRequest{
			MediaURL:    mediaURL,
			Item:        item,
			Destination: dest,
		})
	}

	message, err := deliver()
	if err != nil {
		var failErr error
		if errors.Is(err, media.ErrNotFound) || errors.Is(err, destinations.ErrNotFound) {
			failErr = p.queue.Fail(ctx, entry.ID, err.Error())
		} else {
			_, failErr = p.queue.FailOrRequeue(ctx, entry.ID, err.Error(), p.maxRetries)
		}
		if failErr != nil {
			p.logger.Error("settle failed entry",
				slog.String("entry_id", entry.ID), slog.Any("error", failErr))
		}
		return err
	}

	if _, err := p.queue.Complete(ctx, entry.ID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.logger.Info("upload delivered",
		slog.String("entry_id", entry.ID), slog.String("message", message))
	return nil
}
