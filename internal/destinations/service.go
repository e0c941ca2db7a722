package destinations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/mediagatehq/mediagate/internal/db"
)

const selectColumns = `id, name, destination_type, config, is_active, created_at, updated_at`

// Service provides destination CRUD.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a destination service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "destinations")),
	}
}

// Create validates and inserts a new destination. New destinations are
// active unless the input says otherwise.
func (s *Service) Create(ctx context.Context, input CreateInput) (Destination, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Destination{}, fmt.Errorf("name is required")
	}
	if !input.Type.Valid() {
		return Destination{}, fmt.Errorf("%w: %q", ErrInvalidType, input.Type)
	}
	if err := ValidateConfig(input.Type, input.Config); err != nil {
		return Destination{}, err
	}

	configBytes, err := json.Marshal(nonNilConfig(input.Config))
	if err != nil {
		return Destination{}, fmt.Errorf("encode config: %w", err)
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO destinations (name, destination_type, config, is_active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+selectColumns,
		input.Name, string(input.Type), configBytes, isActive)

	dest, err := scanDestination(row)
	if err != nil {
		return Destination{}, fmt.Errorf("insert destination: %w", err)
	}

	s.logger.Info("destination created",
		slog.String("id", dest.ID),
		slog.String("type", string(dest.Type)),
		slog.String("name", dest.Name))
	return dest, nil
}

// Get returns one destination by id.
func (s *Service) Get(ctx context.Context, id string) (Destination, error) {
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Destination{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM destinations WHERE id = $1`, uid)
	dest, err := scanDestination(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Destination{}, ErrNotFound
	}
	if err != nil {
		return Destination{}, fmt.Errorf("get destination: %w", err)
	}
	return dest, nil
}

// List returns destinations, optionally only active ones, newest first.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Destination, error) {
	query := `SELECT ` + selectColumns + ` FROM destinations`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	dests := make([]Destination, 0)
	for rows.Next() {
		dest, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		dests = append(dests, dest)
	}
	return dests, rows.Err()
}

// Update applies a partial update. A config update is re-validated against
// the destination's type before it is written.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Destination, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Destination{}, err
	}

	name := current.Name
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return Destination{}, fmt.Errorf("name is required")
		}
		name = *input.Name
	}
	config := current.Config
	if input.Config != nil {
		if err := ValidateConfig(current.Type, input.Config); err != nil {
			return Destination{}, err
		}
		config = input.Config
	}
	isActive := current.IsActive
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	configBytes, err := json.Marshal(nonNilConfig(config))
	if err != nil {
		return Destination{}, fmt.Errorf("encode config: %w", err)
	}

	uid, _ := dbpkg.ParseUUID(id)
	row := s.pool.QueryRow(ctx,
		`UPDATE destinations
		 SET name = $2, config = $3, is_active = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+selectColumns,
		uid, name, configBytes, isActive)

	dest, err := scanDestination(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Destination{}, ErrNotFound
	}
	if err != nil {
		return Destination{}, fmt.Errorf("update destination: %w", err)
	}
	return dest, nil
}

// Delete removes a destination. Queue entries referencing it go with it
// via the foreign key cascade.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := dbpkg.ParseUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM destinations WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("destination deleted", slog.String("id", id))
	return nil
}

func nonNilConfig(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	return config
}

func scanDestination(row pgx.Row) (Destination, error) {
	var (
		dest        Destination
		id          pgtype.UUID
		destType    string
		configBytes []byte
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &dest.Name, &destType, &configBytes, &dest.IsActive, &createdAt, &updatedAt); err != nil {
		return Destination{}, err
	}
	dest.ID = dbpkg.UUIDString(id)
	dest.Type = Type(destType)
	dest.CreatedAt = dbpkg.TimeOrZero(createdAt)
	dest.UpdatedAt = dbpkg.TimeOrZero(updatedAt)
	if len(configBytes) > 0 {
		if err := json.Unmarshal(configBytes, &dest.Config); err != nil {
			return Destination{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if dest.Config == nil {
		dest.Config = map[string]any{}
	}
	return dest, nil
}
