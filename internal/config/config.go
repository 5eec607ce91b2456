package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"mjscore/internal/domain"
)

type TableConfig struct {
	PlayerCount  int      `json:"player_count"`
	DefaultNames []string `json:"default_names"`
	// PopOnNewWinner is the initial takeover rule for new tables; operators can toggle it later.
	PopOnNewWinner   *bool `json:"pop_on_new_winner"`
	ForfeitThreshold int   `json:"forfeit_threshold"`
	TickRate         int   `json:"tick_rate"`
	// IdleTimeoutSeconds closes a match once no presence has been connected for this long.
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
}

const (
	defaultTickRate    = 5
	defaultIdleTimeout = 600
)

var (
	cfg      *TableConfig
	loadOnce sync.Once
	loadErr  error
)

// LoadTableConfig loads the table configuration from the given path.
func LoadTableConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read table config: %w", err)
			return
		}

		c, err := ParseTableConfig(data)
		if err != nil {
			loadErr = err
			return
		}
		cfg = c
	})
	return loadErr
}

// ParseTableConfig decodes a table configuration document.
func ParseTableConfig(data []byte) (*TableConfig, error) {
	var c TableConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal table config: %w", err)
	}
	if c.PlayerCount < 0 || c.PlayerCount == 1 {
		return nil, fmt.Errorf("player_count must be at least 2, got %d", c.PlayerCount)
	}
	if c.PlayerCount > 0 && len(c.DefaultNames) > c.PlayerCount {
		return nil, fmt.Errorf("%d default names for %d seats", len(c.DefaultNames), c.PlayerCount)
	}
	return &c, nil
}

// GetTableConfig returns the global table configuration, nil when none was loaded.
func GetTableConfig() *TableConfig {
	return cfg
}

// Names returns one display name per seat: configured names first, placeholders after.
func (c *TableConfig) Names() []string {
	n := domain.DefaultPlayerCount
	if c != nil && c.PlayerCount > 0 {
		n = c.PlayerCount
	}
	names := domain.DefaultNames(n)
	if c != nil {
		for i, name := range c.DefaultNames {
			if normalized, err := domain.NormalizeName(name); err == nil {
				names[i] = normalized
			}
		}
	}
	return names
}

// Rules returns the house rules for new tables, falling back to safe defaults.
func (c *TableConfig) Rules() domain.Rules {
	rules := domain.DefaultRules()
	if c == nil {
		return rules
	}
	if c.PopOnNewWinner != nil {
		rules.PopOnNewWinner = *c.PopOnNewWinner
	}
	if c.ForfeitThreshold > 0 {
		rules.ForfeitThreshold = c.ForfeitThreshold
	}
	return rules
}

// GetTickRate returns the match tick rate.
func (c *TableConfig) GetTickRate() int {
	if c == nil || c.TickRate <= 0 {
		return defaultTickRate // Safe default
	}
	return c.TickRate
}

// IdleTimeoutTicks converts the idle timeout into match ticks.
func (c *TableConfig) IdleTimeoutTicks() int64 {
	seconds := defaultIdleTimeout
	if c != nil && c.IdleTimeoutSeconds > 0 {
		seconds = c.IdleTimeoutSeconds
	}
	return int64(seconds * c.GetTickRate())
}
