// Package destinations manages the configured republish targets.
package destinations

import (
	"fmt"
	"time"
)

// Type identifies a destination kind. The routing table in the dispatch
// package decides how each kind is delivered.
type Type string

const (
	TypeYouTube   Type = "youtube"
	TypeInstagram Type = "instagram"
	TypeFacebook  Type = "facebook"
	TypeWebhook   Type = "webhook"
	TypeS3        Type = "s3"
	TypeFTP       Type = "ftp"
	TypeCMS       Type = "cms"
	TypeAPI       Type = "api"
)

// All lists every known destination type.
var All = []Type{
	TypeYouTube, TypeInstagram, TypeFacebook, TypeWebhook,
	TypeS3, TypeFTP, TypeCMS, TypeAPI,
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range All {
		if t == known {
			return true
		}
	}
	return false
}

// requiredConfigKeys maps each type to the config keys it cannot deliver
// without. Types absent from the map accept any config.
var requiredConfigKeys = map[Type][]string{
	TypeWebhook: {"url"},
	TypeAPI:     {"endpoint"},
	TypeCMS:     {"endpoint"},
}

// ValidateConfig checks that config carries the keys required by t.
func ValidateConfig(t Type, config map[string]any) error {
	for _, key := range requiredConfigKeys[t] {
		value, ok := config[key]
		if !ok {
			return fmt.Errorf("%w: %s destination requires config key %q", ErrInvalidConfig, t, key)
		}
		if s, isString := value.(string); isString && s == "" {
			return fmt.Errorf("%w: %s destination requires config key %q", ErrInvalidConfig, t, key)
		}
	}
	return nil
}

// Destination is one configured republish target.
type Destination struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      Type           `json:"destination_type"`
	Config    map[string]any `json:"config"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CreateInput carries the fields for a new destination.
type CreateInput struct {
	Name     string         `json:"name" validate:"required"`
	Type     Type           `json:"destination_type" validate:"required"`
	Config   map[string]any `json:"config"`
	IsActive *bool          `json:"is_active"`
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name     *string        `json:"name"`
	Config   map[string]any `json:"config"`
	IsActive *bool          `json:"is_active"`
}
