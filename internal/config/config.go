package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Sources     SourcesConfig     `yaml:"sources"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Staging     StagingConfig     `yaml:"staging"`
	Sync        SyncConfig        `yaml:"sync"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type SourcesConfig struct {
	Drive DriveConfig `yaml:"drive"`
	Gmail GmailConfig `yaml:"gmail"`
	Test  TestConfig  `yaml:"test"`
}

type DriveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FolderID string `yaml:"folder_id"`
	Query    string `yaml:"query"`     // ANDed with the folder constraint
	PageSize int64  `yaml:"page_size"` // 0 leaves the API default
}

type GmailConfig struct {
	Enabled     bool     `yaml:"enabled"`
	UserID      string   `yaml:"user_id"`
	Query       string   `yaml:"query"`
	Labels      []string `yaml:"labels"`
	MaxMessages int      `yaml:"max_messages"`
}

type TestConfig struct {
	Enabled bool `yaml:"enabled"`
}

type CredentialsConfig struct {
	ServiceAccountEnv  string `yaml:"service_account_env"`
	ServiceAccountFile string `yaml:"service_account_file"`
	GmailTokenEnv      string `yaml:"gmail_token_env"`
	GmailTokenFile     string `yaml:"gmail_token_file"`
	GmailClientSecret  string `yaml:"gmail_client_secret"`
	Interactive        bool   `yaml:"interactive"`
	RedirectPort       int    `yaml:"redirect_port"`
}

type StagingConfig struct {
	Root string `yaml:"root"` // empty stages into a temporary directory
}

type SyncConfig struct {
	MaxPerCycle int    `yaml:"max_per_cycle"` // 0 stages everything new
	StopAtKnown bool   `yaml:"stop_at_known"` // needs state_path for the watermark
	StatePath   string `yaml:"state_path"`
}

type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// Load reads the YAML config at path and fills in defaults.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (cfg *Config) setDefaults() {
	if cfg.Sources.Gmail.MaxMessages == 0 {
		cfg.Sources.Gmail.MaxMessages = 1000
	}
	if cfg.Sources.Gmail.UserID == "" {
		cfg.Sources.Gmail.UserID = "me"
	}

	// Credentials
	if cfg.Credentials.ServiceAccountEnv == "" {
		cfg.Credentials.ServiceAccountEnv = "GOOGLE_APPLICATION_CREDENTIALS"
	}
	if cfg.Credentials.ServiceAccountFile == "" {
		cfg.Credentials.ServiceAccountFile = "google-application-credentials.json"
	}
	if cfg.Credentials.GmailTokenEnv == "" {
		cfg.Credentials.GmailTokenEnv = "GMAIL_AUTHORIZED_USER_TOKEN"
	}
	if cfg.Credentials.GmailTokenFile == "" {
		cfg.Credentials.GmailTokenFile = "gmail-authorized-user-token.json"
	}
	if cfg.Credentials.GmailClientSecret == "" {
		cfg.Credentials.GmailClientSecret = "gmail-client-secret.json"
	}
	if cfg.Credentials.RedirectPort == 0 {
		// must match the redirect URL registered for the OAuth client
		cfg.Credentials.RedirectPort = 53844
	}
	cfg.Credentials.ServiceAccountFile = expandPath(cfg.Credentials.ServiceAccountFile)
	cfg.Credentials.GmailTokenFile = expandPath(cfg.Credentials.GmailTokenFile)
	cfg.Credentials.GmailClientSecret = expandPath(cfg.Credentials.GmailClientSecret)

	if cfg.Staging.Root != "" {
		cfg.Staging.Root = expandPath(cfg.Staging.Root)
	}

	if cfg.Sync.StatePath != "" {
		cfg.Sync.StatePath = expandPath(cfg.Sync.StatePath)
	}

	// Ledger defaults
	if cfg.Ledger.Enabled && cfg.Ledger.Path == "" {
		home, _ := os.UserHomeDir()
		cfg.Ledger.Path = filepath.Join(home, ".sbd-checker", "ledger.db")
	} else if cfg.Ledger.Path != "" {
		cfg.Ledger.Path = expandPath(cfg.Ledger.Path)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Path != "" {
		cfg.Logging.Path = expandPath(cfg.Logging.Path)
	}
}
