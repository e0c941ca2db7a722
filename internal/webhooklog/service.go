// Package webhooklog persists the append-only record of every inbound
// webhook call. Entries are created before parsing begins and enriched in
// place as parsing completes or fails; they are never deleted by the
// pipeline.
package webhooklog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/mediagatehq/mediagate/internal/db"
)

// ErrEntryNotFound indicates the requested log entry does not exist.
var ErrEntryNotFound = errors.New("webhook log entry not found")

// Service provides webhook log persistence operations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a webhook log service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "webhooklog")),
	}
}

// Create inserts a new unprocessed entry holding the raw payload and
// returns its ID. Called before any parsing so every call is auditable.
func (s *Service) Create(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(nonNilMap(payload))
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var id pgtype.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO webhook_logs (payload, processed) VALUES ($1, false) RETURNING id`,
		body,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert log entry: %w", err)
	}
	return dbpkg.UUIDString(id), nil
}

// Enrich overwrites the stored payload with an enriched envelope. The
// processed flag is left untouched.
func (s *Service) Enrich(ctx context.Context, id string, payload map[string]any) error {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid entry id: %w", err)
	}
	body, err := json.Marshal(nonNilMap(payload))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_logs SET payload = $2 WHERE id = $1`, pgID, body)
	if err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// MarkProcessed sets processed = true. The guard on processed = false keeps
// the call idempotent under provider retries; marking an already-processed
// entry is a no-op, not an error.
func (s *Service) MarkProcessed(ctx context.Context, id string) error {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid entry id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE webhook_logs SET processed = true WHERE id = $1 AND processed = false`, pgID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// SetError records a failure message on the entry. The processed flag is
// not overloaded with failure state: error_message alone classifies the
// outcome.
func (s *Service) SetError(ctx context.Context, id, message string) error {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid entry id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE webhook_logs SET error_message = $2 WHERE id = $1`, pgID, message)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	return nil
}

// CreateProcessed inserts an entry that needs no further action, e.g. the
// synthetic record of an outbound send.
func (s *Service) CreateProcessed(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(nonNilMap(payload))
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var id pgtype.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO webhook_logs (payload, processed) VALUES ($1, true) RETURNING id`,
		body,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert log entry: %w", err)
	}
	return dbpkg.UUIDString(id), nil
}

// Get returns a single entry by ID.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid entry id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, payload, processed, error_message, created_at
		 FROM webhook_logs WHERE id = $1`, pgID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("get log entry: %w", err)
	}
	return entry, nil
}

// List returns entries newest-first, optionally filtered by processed state.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, payload, processed, error_message, created_at
	          FROM webhook_logs`
	args := []any{}
	if filter.Processed != nil {
		query += ` WHERE processed = $1`
		args = append(args, *filter.Processed)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		id        pgtype.UUID
		body      []byte
		processed bool
		errMsg    pgtype.Text
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &body, &processed, &errMsg, &createdAt); err != nil {
		return Entry{}, err
	}
	var payload map[string]any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	return Entry{
		ID:           dbpkg.UUIDString(id),
		Payload:      payload,
		Processed:    processed,
		ErrorMessage: dbpkg.TextToString(errMsg),
		CreatedAt:    dbpkg.TimeOrZero(createdAt),
	}, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
