package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"chess-moves/internal/game"
)

type Config struct {
	Environment string `json:"environment"`
	Server      struct {
		Host string `json:"host"`
		Port int    `json:"port"`
		// MultiInstance relays websocket broadcasts through MongoDB change
		// streams, which needs a replica set.
		MultiInstance bool `json:"multiInstance"`
	} `json:"server"`
	MongoDB struct {
		URI      string `json:"uri"`
		Database string `json:"database"`
	} `json:"mongodb"`
	Frontend struct {
		URL string `json:"url"`
	} `json:"frontend"`
	Seats struct {
		Secret   string `json:"secret"`
		TTLHours int    `json:"ttlHours"`
	} `json:"seats"`
	Game struct {
		DefaultRules        string `json:"defaultRules"`
		AbandonAfterMinutes int    `json:"abandonAfterMinutes"`
		PasscodeCost        int    `json:"passcodeCost"`
	} `json:"game"`
}

func Load(env string) (*Config, error) {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		// Default to configs directory relative to working directory
		configDir = "configs"
	}

	filename := fmt.Sprintf("config.%s.json", env)
	configPath := filepath.Join(configDir, filename)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Environment = env
	return cfg, nil
}

// Parse decodes a config document after substituting ${VAR} references
// and fills in defaults for anything left unset.
func Parse(data []byte) (*Config, error) {
	configStr := expandEnvVars(string(data))

	var cfg Config
	if err := json.Unmarshal([]byte(configStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.Port == 0 {
		c.Server.Port = 9029
	}
	if c.MongoDB.Database == "" {
		c.MongoDB.Database = "chess_moves"
	}
	if c.Seats.TTLHours <= 0 {
		c.Seats.TTLHours = 24
	}
	if c.Game.DefaultRules == "" {
		c.Game.DefaultRules = game.RulesStandard
	}
	if _, ok := game.RulesByName(c.Game.DefaultRules); !ok {
		return fmt.Errorf("unknown rules %q in game.defaultRules", c.Game.DefaultRules)
	}
	if c.Game.AbandonAfterMinutes <= 0 {
		c.Game.AbandonAfterMinutes = 60
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func GetEnv() string {
	env := os.Getenv("CHESS_ENV")
	if env == "" {
		return "dev"
	}
	return env
}
