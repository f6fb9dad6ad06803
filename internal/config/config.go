package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	LinkedIn LinkedInConfig `toml:"linkedin"`
	Drafting DraftingConfig `toml:"drafting"`
	Schedule ScheduleConfig `toml:"schedule"`
	Operator OperatorConfig `toml:"operator"`
	Storage  StorageConfig  `toml:"storage"`
}

type LinkedInConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	Headless bool   `toml:"headless"`
	// ChallengeGraceSeconds is how long to wait for out-of-band completion
	// of a 2FA/verification checkpoint before declaring the login incomplete.
	ChallengeGraceSeconds int `toml:"challenge_grace_seconds"`
}

type DraftingConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	BatchSize int    `toml:"batch_size"`
}

type ScheduleConfig struct {
	DailyPromptTime  string `toml:"daily_prompt_time"`
	ClassifyTime     string `toml:"classify_time"`
	SessionCheckTime string `toml:"session_check_time"`
	Timezone         string `toml:"timezone"`
	// DefaultPostHour is the local hour proposed when scheduling a post.
	DefaultPostHour int `toml:"default_post_hour"`
}

type OperatorConfig struct {
	ListenAddr string `toml:"listen_addr"`
	// OperatorID is the single identity authoritative for state-changing
	// commands; messages from anyone else are ignored.
	OperatorID string `toml:"operator_id"`
	WebhookURL string `toml:"webhook_url"`
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	dataDir := ""
	if dir, err := DataDir(); err == nil {
		dataDir = dir
	}

	return &Config{
		Version: 1,
		LinkedIn: LinkedInConfig{
			Headless:              true,
			ChallengeGraceSeconds: 60,
		},
		Drafting: DraftingConfig{
			Model:     "claude-sonnet-4-20250514",
			BatchSize: 10,
		},
		Schedule: ScheduleConfig{
			DailyPromptTime:  "09:00",
			ClassifyTime:     "07:30",
			SessionCheckTime: "06:00",
			Timezone:         "America/New_York",
			DefaultPostHour:  17,
		},
		Operator: OperatorConfig{
			ListenAddr: ":8487",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lincon"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the default directory for the database, blobs, session
// artifact and diagnostic screenshots.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "lincon"), nil
}

// Load reads config from disk and applies environment overrides for secrets.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("LINCON_LINKEDIN_PASSWORD"); v != "" {
		c.LinkedIn.Password = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Drafting.APIKey = v
	}
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
