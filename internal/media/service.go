// Package media persists ingested WhatsApp attachments: blob bytes go to
// the storage provider, metadata to the media_items table. The message_id
// unique constraint is the idempotency gate shared by both inbound channels.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/mediagatehq/mediagate/internal/db"
	"github.com/mediagatehq/mediagate/internal/storage"
)

const uniqueViolation = "23505"

// Service provides media persistence operations.
type Service struct {
	pool     *pgxpool.Pool
	provider storage.Provider
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService creates a media service with the given storage provider.
func NewService(log *slog.Logger, pool *pgxpool.Pool, provider storage.Provider) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		provider: provider,
		logger:   log.With(slog.String("service", "media")),
		clock:    time.Now,
	}
}

// Ingest persists one attachment. The bytes are written to the blob store
// first, then the metadata row is inserted; a message_id conflict at insert
// time reports ErrDuplicateMessage so redeliveries that slipped past the
// Exists pre-check stay idempotent.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (Item, error) {
	if s.provider == nil {
		return Item{}, ErrProviderUnavailable
	}
	if strings.TrimSpace(input.MessageID) == "" {
		return Item{}, fmt.Errorf("message id is required")
	}
	if strings.TrimSpace(input.GroupID) == "" {
		return Item{}, fmt.Errorf("group id is required")
	}
	if input.Reader == nil {
		return Item{}, fmt.Errorf("reader is required")
	}

	data, err := ReadAllWithLimit(input.Reader, MaxAssetBytes)
	if err != nil {
		return Item{}, fmt.Errorf("read payload: %w", err)
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.clock()
	}

	key := StorageKey(input.GroupID, input.MessageID, input.Mime, s.clock())
	if err := s.provider.Put(ctx, key, bytes.NewReader(data), input.Mime); err != nil {
		return Item{}, fmt.Errorf("store media: %w", err)
	}

	metaBytes, err := json.Marshal(nonNilMap(input.Metadata))
	if err != nil {
		metaBytes = []byte("{}")
	}

	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`INSERT INTO media_items
		   (message_id, group_id, sender_phone, sender_name, media_type,
		    file_path, mime_type, file_size, caption, received_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		input.MessageID,
		input.GroupID,
		input.SenderPhone,
		dbpkg.Text(input.SenderName),
		string(input.MediaType),
		key,
		dbpkg.Text(input.Mime),
		int64(len(data)),
		dbpkg.Text(input.Caption),
		receivedAt,
		metaBytes,
	).Scan(&id, &createdAt)
	if err != nil {
		// An insert that lost the check-then-insert race is a duplicate
		// delivery, not a failure. Clean up the orphaned blob.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			_ = s.provider.Delete(ctx, key)
			return Item{}, ErrDuplicateMessage
		}
		return Item{}, fmt.Errorf("insert media item: %w", err)
	}

	s.logger.Info("media ingested",
		slog.String("message_id", input.MessageID),
		slog.String("group_id", input.GroupID),
		slog.String("file_path", key),
		slog.Int64("file_size", int64(len(data))))

	return Item{
		ID:          dbpkg.UUIDString(id),
		MessageID:   input.MessageID,
		GroupID:     input.GroupID,
		SenderPhone: input.SenderPhone,
		SenderName:  input.SenderName,
		MediaType:   input.MediaType,
		FilePath:    key,
		MimeType:    input.Mime,
		FileSize:    int64(len(data)),
		Caption:     input.Caption,
		ReceivedAt:  receivedAt,
		Metadata:    input.Metadata,
		CreatedAt:   dbpkg.TimeOrZero(createdAt),
	}, nil
}

// Exists reports whether an item with the given message_id was already
// ingested. Used by the parsers as the redelivery fast path.
func (s *Service) Exists(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM media_items WHERE message_id = $1`, messageID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check message id: %w", err)
	}
	return true, nil
}

// Get returns an item by its ID.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Item{}, fmt.Errorf("invalid media id: %w", err)
	}
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, pgID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("get media item: %w", err)
	}
	return item, nil
}

// List returns items newest-first with optional filters.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.GroupID != "" {
		conds = append(conds, "group_id = "+arg(filter.GroupID))
	}
	if filter.MediaType != "" {
		conds = append(conds, "media_type = "+arg(string(filter.MediaType)))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "received_at >= "+arg(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "received_at <= "+arg(filter.Until))
	}

	query := selectColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY received_at DESC LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes an item, its blob, and (via FK cascade) any queue entries
// referencing it.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.provider != nil {
		if err := s.provider.Delete(ctx, item.FilePath); err != nil {
			s.logger.Warn("blob delete failed, removing row anyway",
				slog.String("file_path", item.FilePath), slog.Any("error", err))
		}
	}
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid media id: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM media_items WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("delete media item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SignedURL mints a short-lived download URL for the item's blob.
func (s *Service) SignedURL(ctx context.Context, item Item, ttl time.Duration) (string, error) {
	if s.provider == nil {
		return "", ErrProviderUnavailable
	}
	return s.provider.SignedURL(ctx, item.FilePath, ttl)
}

const selectColumns = `SELECT id, message_id, group_id, sender_phone, sender_name,
	media_type, file_path, mime_type, file_size, caption, received_at,
	metadata, created_at FROM media_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		id         pgtype.UUID
		messageID  string
		groupID    string
		phone      string
		name       pgtype.Text
		mediaType  string
		filePath   string
		mime       pgtype.Text
		fileSize   pgtype.Int8
		caption    pgtype.Text
		receivedAt pgtype.Timestamptz
		metaBytes  []byte
		createdAt  pgtype.Timestamptz
	)
	err := row.Scan(&id, &messageID, &groupID, &phone, &name, &mediaType,
		&filePath, &mime, &fileSize, &caption, &receivedAt, &metaBytes, &createdAt)
	if err != nil {
		return Item{}, err
	}
	var meta map[string]any
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &meta)
	}
	return Item{
		ID:          dbpkg.UUIDString(id),
		MessageID:   messageID,
		GroupID:     groupID,
		SenderPhone: phone,
		SenderName:  dbpkg.TextToString(name),
		MediaType:   Type(mediaType),
		FilePath:    filePath,
		MimeType:    dbpkg.TextToString(mime),
		FileSize:    fileSize.Int64,
		Caption:     dbpkg.TextToString(caption),
		ReceivedAt:  dbpkg.TimeOrZero(receivedAt),
		Metadata:    meta,
		CreatedAt:   dbpkg.TimeOrZero(createdAt),
	}, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
