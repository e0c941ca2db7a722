package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/mediagatehq/mediagate/internal/db"
)

const selectColumns = `id, media_id, destination_id, status, error_message, retry_count,
	approved_at, upload_started_at, upload_completed_at, created_at, updated_at`

// Service provides upload queue operations.
type Service struct {
	db     dbpkg.DBTX
	logger *slog.Logger
}

// NewService creates a queue service.
func NewService(log *slog.Logger, db dbpkg.DBTX) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "queue")),
	}
}

// Create queues a media item for a destination in pending state. A pair
// that is already pending, approved or uploading is not queued twice.
func (s *Service) Create(ctx context.Context, mediaID, destinationID string) (Entry, error) {
	mediaUUID, err := dbpkg.ParseUUID(mediaID)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid media id: %w", err)
	}
	destUUID, err := dbpkg.ParseUUID(destinationID)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid destination id: %w", err)
	}

	var inFlight bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM upload_queue
		   WHERE media_id = $1 AND destination_id = $2
		     AND status IN ('pending', 'approved', 'uploading'))`,
		mediaUUID, destUUID).Scan(&inFlight)
	if err != nil {
		return Entry{}, fmt.Errorf("check queue: %w", err)
	}
	if inFlight {
		return Entry{}, ErrAlreadyQueued
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO upload_queue (media_id, destination_id)
		 VALUES ($1, $2)
		 RETURNING `+selectColumns,
		mediaUUID, destUUID)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("insert queue entry: %w", err)
	}

	s.logger.Info("queue entry created",
		slog.String("id", entry.ID),
		slog.String("media_id", mediaID),
		slog.String("destination_id", destinationID))
	return entry, nil
}

// Get returns one queue entry by id.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM upload_queue WHERE id = $1`, uid)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// List returns queue entries, newest first, each carrying a summary of
// its media item and destination so a review surface needs no follow-up
// lookups.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, fmt.Errorf("invalid status %q", filter.Status)
		}
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("q.status = $%d", len(args)))
	}
	if filter.DestinationID != "" {
		uid, err := dbpkg.ParseUUID(filter.DestinationID)
		if err != nil {
			return nil, fmt.Errorf("invalid destination id: %w", err)
		}
		args = append(args, uid)
		conds = append(conds, fmt.Sprintf("q.destination_id = $%d", len(args)))
	}
	if filter.MediaID != "" {
		uid, err := dbpkg.ParseUUID(filter.MediaID)
		if err != nil {
			return nil, fmt.Errorf("invalid media id: %w", err)
		}
		args = append(args, uid)
		conds = append(conds, fmt.Sprintf("q.media_id = $%d", len(args)))
	}

	query := `SELECT q.id, q.media_id, q.destination_id, q.status, q.error_message,
		q.retry_count, q.approved_at, q.upload_started_at, q.upload_completed_at,
		q.created_at, q.updated_at,
		m.message_id, m.group_id, m.media_type, m.file_path, m.caption,
		d.name, d.destination_type
	 FROM upload_queue q
	 LEFT JOIN media_items m ON m.id = q.media_id
	 LEFT JOIN destinations d ON d.id = q.destination_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY q.created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntryWithJoins(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Approve moves a pending entry to approved and stamps approved_at. The
// update is guarded on the current status so a concurrent mutation loses.
func (s *Service) Approve(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, StatusPending, StatusApproved,
		`status = 'approved', approved_at = now(), error_message = NULL`)
}

// Reject moves a pending entry to rejected. Rejected is terminal.
func (s *Service) Reject(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, StatusPending, StatusRejected,
		`status = 'rejected'`)
}

// Retry moves a failed entry back to approved for another dispatch pass.
// The retry count is bumped rather than reset, so repeated manual
// retries never rewind exhaustion.
func (s *Service) Retry(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, StatusFailed, StatusApproved,
		`status = 'approved', approved_at = now(), error_message = NULL, retry_count = retry_count + 1`)
}

func (s *Service) transition(ctx context.Context, id string, from, to Status, setClause string) (Entry, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if current.Status != from {
		return Entry{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}
	if err := ValidateTransition(from, to); err != nil {
		return Entry{}, err
	}

	uid, _ := dbpkg.ParseUUID(id)
	row := s.db.QueryRow(ctx,
		`UPDATE upload_queue SET `+setClause+`, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+selectColumns,
		uid, string(from))
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with another mutation.
		return Entry{}, fmt.Errorf("%w: entry left %s concurrently", ErrInvalidTransition, from)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("update queue entry: %w", err)
	}

	s.logger.Info("queue entry transitioned",
		slog.String("id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return entry, nil
}

// BulkApprove approves pending entries and returns how many actually
// moved. An empty id list means every currently pending entry; entries
// in other states are left untouched either way.
func (s *Service) BulkApprove(ctx context.Context, ids []string) (int, error) {
	return s.bulkTransition(ctx, ids,
		`SET status = 'approved', approved_at = now(), error_message = NULL, updated_at = now()`)
}

// BulkReject rejects pending entries and returns how many actually
// moved. An empty id list means every currently pending entry.
func (s *Service) BulkReject(ctx context.Context, ids []string) (int, error) {
	return s.bulkTransition(ctx, ids,
		`SET status = 'rejected', updated_at = now()`)
}

func (s *Service) bulkTransition(ctx context.Context, ids []string, setClause string) (int, error) {
	query := `UPDATE upload_queue ` + setClause + ` WHERE status = 'pending'`
	var args []any
	if len(ids) > 0 {
		uuids := make([]pgtype.UUID, 0, len(ids))
		for _, id := range ids {
			uid, err := dbpkg.ParseUUID(id)
			if err != nil {
				return 0, fmt.Errorf("invalid queue entry id %q: %w", id, err)
			}
			uuids = append(uuids, uid)
		}
		query += ` AND id = ANY($1)`
		args = append(args, uuids)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update queue: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Claim atomically moves up to limit approved entries to uploading,
// oldest approval first, and returns them. The status guard in the
// claiming update is what prevents two dispatch passes from picking up
// the same entry.
func (s *Service) Claim(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`UPDATE upload_queue q
		 SET status = 'uploading', upload_started_at = now(), updated_at = now()
		 FROM (
		   SELECT id FROM upload_queue
		   WHERE status = 'approved'
		   ORDER BY approved_at ASC NULLS LAST
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 ) picked
		 WHERE q.id = picked.id AND q.status = 'approved'
		 RETURNING q.id, q.media_id, q.destination_id, q.status, q.error_message,
		   q.retry_count, q.approved_at, q.upload_started_at, q.upload_completed_at,
		   q.created_at, q.updated_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim queue entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Complete marks an uploading entry completed.
func (s *Service) Complete(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, StatusUploading, StatusCompleted,
		`status = 'completed', upload_completed_at = now(), error_message = NULL`)
}

// Fail moves an uploading entry straight to failed without touching the
// retry count. Used when the entry references records that no longer
// exist, where retrying cannot help.
func (s *Service) Fail(ctx context.Context, id, message string) error {
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE upload_queue
		 SET status = 'failed', error_message = $2, updated_at = now()
		 WHERE id = $1 AND status = 'uploading'`,
		uid, message)
	if err != nil {
		return fmt.Errorf("fail queue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Warn("upload failed permanently",
		slog.String("id", id),
		slog.String("error", message))
	return nil
}

// failureStatus decides where a just-failed entry lands. retries is the
// count after the bump for this failure.
func failureStatus(retries, maxRetries int) Status {
	if retries >= maxRetries {
		return StatusFailed
	}
	return StatusApproved
}

// FailOrRequeue records an upload failure. The retry count is bumped;
// entries that reach maxRetries fail permanently, everything else goes
// back to approved for the next dispatch pass. Returns the status the
// entry ended up in. The entry is still held under the claim's
// uploading guard, so the bump and the status write cannot race another
// dispatch pass.
func (s *Service) FailOrRequeue(ctx context.Context, id, message string, maxRetries int) (Status, error) {
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return "", ErrNotFound
	}
	var retries int
	err = s.db.QueryRow(ctx,
		`UPDATE upload_queue
		 SET retry_count = retry_count + 1, error_message = $2, updated_at = now()
		 WHERE id = $1 AND status = 'uploading'
		 RETURNING retry_count`,
		uid, message).Scan(&retries)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fail queue entry: %w", err)
	}

	status := failureStatus(retries, maxRetries)
	if _, err := s.db.Exec(ctx,
		`UPDATE upload_queue SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = 'uploading'`,
		uid, string(status)); err != nil {
		return "", fmt.Errorf("settle failed entry: %w", err)
	}

	s.logger.Warn("upload failed",
		slog.String("id", id),
		slog.String("status", string(status)),
		slog.Int("retry_count", retries),
		slog.String("error", message))
	return status, nil
}

// Stats counts entries per status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, count(*) FROM upload_queue GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusApproved:
			stats.Approved = count
		case StatusRejected:
			stats.Rejected = count
		case StatusUploading:
			stats.Uploading = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry       Entry
		id          pgtype.UUID
		mediaID     pgtype.UUID
		destID      pgtype.UUID
		status      string
		errMsg      pgtype.Text
		approvedAt  pgtype.Timestamptz
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := row.Scan(&id, &mediaID, &destID, &status, &errMsg, &entry.RetryCount,
		&approvedAt, &startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = dbpkg.UUIDString(id)
	entry.MediaID = dbpkg.UUIDString(mediaID)
	entry.DestinationID = dbpkg.UUIDString(destID)
	entry.Status = Status(status)
	entry.ErrorMessage = dbpkg.TextToString(errMsg)
	entry.ApprovedAt = timePtr(approvedAt)
	entry.UploadStartedAt = timePtr(startedAt)
	entry.UploadCompletedAt = timePtr(completedAt)
	entry.CreatedAt = dbpkg.TimeOrZero(createdAt)
	entry.UpdatedAt = dbpkg.TimeOrZero(updatedAt)
	return entry, nil
}

func scanEntryWithJoins(row pgx.Row) (Entry, error) {
	var (
		entry       Entry
		id          pgtype.UUID
		mediaID     pgtype.UUID
		destID      pgtype.UUID
		status      string
		errMsg      pgtype.Text
		approvedAt  pgtype.Timestamptz
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
		messageID   pgtype.Text
		groupID     pgtype.Text
		mediaType   pgtype.Text
		filePath    pgtype.Text
		caption     pgtype.Text
		destName    pgtype.Text
		destType    pgtype.Text
	)
	err := row.Scan(&id, &mediaID, &destID, &status, &errMsg, &entry.RetryCount,
		&approvedAt, &startedAt, &completedAt, &createdAt, &updatedAt,
		&messageID, &groupID, &mediaType, &filePath, &caption,
		&destName, &destType)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = dbpkg.UUIDString(id)
	entry.MediaID = dbpkg.UUIDString(mediaID)
	entry.DestinationID = dbpkg.UUIDString(destID)
	entry.Status = Status(status)
	entry.ErrorMessage = dbpkg.TextToString(errMsg)
	entry.ApprovedAt = timePtr(approvedAt)
	entry.UploadStartedAt = timePtr(startedAt)
	entry.UploadCompletedAt = timePtr(completedAt)
	entry.CreatedAt = dbpkg.TimeOrZero(createdAt)
	entry.UpdatedAt = dbpkg.TimeOrZero(updatedAt)
	if messageID.Valid {
		entry.Media = &MediaSummary{
			MessageID: messageID.String,
			GroupID:   dbpkg.TextToString(groupID),
			MediaType: dbpkg.TextToString(mediaType),
			FilePath:  dbpkg.TextToString(filePath),
			Caption:   dbpkg.TextToString(caption),
		}
	}
	if destName.Valid {
		entry.Destination = &DestinationSummary{
			Name: destName.String,
			Type: dbpkg.TextToString(destType),
		}
	}
	return entry, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
