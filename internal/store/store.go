// ABOUTME: Store interface and BotConfig record for bot configuration persistence.
// ABOUTME: Defines validation rules and the errors callers branch on.

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfigNotFound indicates the requested bot configuration does not exist.
var ErrConfigNotFound = errors.New("bot config not found")

// BotConfig is one bot's persisted configuration. The runtime reads it once
// at start and snapshots it for the life of one run; edits apply on the
// next start.
type BotConfig struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Host     string `json:"host"`
	Port     int    `json:"port"`

	AutoReconnect        bool          `json:"auto_reconnect"`
	ReconnectInterval    time.Duration `json:"-"`
	ReconnectIntervalSec int           `json:"reconnect_interval_seconds"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`

	WanderEnabled  bool `json:"wander_enabled"`
	ChatEnabled    bool `json:"chat_enabled"`
	UseRandomNames bool `json:"use_random_names"`

	// IsActive is the last-known desired-run state, used to resume bots
	// after a restart.
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that a config is usable for a connection attempt.
func (c *BotConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if !c.UseRandomNames && strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("username is required unless use_random_names is set")
	}
	if c.ReconnectIntervalSec < 0 {
		return fmt.Errorf("reconnect_interval_seconds must not be negative")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must not be negative")
	}
	return nil
}

// Store persists bot configurations.
type Store interface {
	GetConfig(ctx context.Context, id string) (*BotConfig, error)
	ListConfigs(ctx context.Context) ([]*BotConfig, error)
	CreateConfig(ctx context.Context, cfg *BotConfig) error
	UpdateConfig(ctx context.Context, cfg *BotConfig) error
	DeleteConfig(ctx context.Context, id string) error
	SetActiveFlag(ctx context.Context, id string, active bool) error
	Close() error
}
