// Package groups keeps the registry of known WhatsApp source groups.
// Group IDs are derived per channel (sender address for Twilio, the
// cloud_<phone_number_id> form for the Cloud API) and registered on first
// sight during ingestion.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/mediagatehq/mediagate/internal/db"
)

// ErrGroupNotFound indicates the requested group does not exist.
var ErrGroupNotFound = errors.New("group not found")

// Group is one known media source.
type Group struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	GroupName string    `json:"group_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service provides group registry operations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a groups service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: pool, logger: log.With(slog.String("service", "groups"))}
}

// Ensure registers a group ID if it is not known yet. Safe to call on every
// ingest; existing rows are left untouched.
func (s *Service) Ensure(ctx context.Context, groupID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO whatsapp_groups (group_id) VALUES ($1)
		 ON CONFLICT (group_id) DO NOTHING`, groupID)
	if err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}
	return nil
}

// List returns all known groups, newest first.
func (s *Service) List(ctx context.Context) ([]Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, group_id, group_name, is_active, created_at, updated_at
		 FROM whatsapp_groups ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var (
			id        pgtype.UUID
			gid       string
			name      pgtype.Text
			active    bool
			createdAt pgtype.Timestamptz
			updatedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &gid, &name, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, Group{
			ID:        dbpkg.UUIDString(id),
			GroupID:   gid,
			GroupName: dbpkg.TextToString(name),
			IsActive:  active,
			CreatedAt: dbpkg.TimeOrZero(createdAt),
			UpdatedAt: dbpkg.TimeOrZero(updatedAt),
		})
	}
	return groups, rows.Err()
}

// Update renames a group or toggles its active flag.
func (s *Service) Update(ctx context.Context, id, name string, active bool) (Group, error) {
	pgID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Group{}, fmt.Errorf("invalid group id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE whatsapp_groups
		 SET group_name = $2, is_active = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING id, group_id, group_name, is_active, created_at, updated_at`,
		pgID, dbpkg.Text(name), active)

	var (
		outID     pgtype.UUID
		gid       string
		outName   pgtype.Text
		outActive bool
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&outID, &gid, &outName, &outActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, fmt.Errorf("update group: %w", err)
	}
	return Group{
		ID:        dbpkg.UUIDString(outID),
		GroupID:   gid,
		GroupName: dbpkg.TextToString(outName),
		IsActive:  outActive,
		CreatedAt: dbpkg.TimeOrZero(createdAt),
		UpdatedAt: dbpkg.TimeOrZero(updatedAt),
	}, nil
}
