// Package config handles configuration loading for the member service.
// Values come from an optional YAML file with environment overrides; the
// storage backend is selected here, explicitly, at process start.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileStorage configures the local-file backend.
type FileStorage struct {
	Path string `yaml:"path"`
}

// GitHubStorage configures the remote contents-API backend. The token is
// deliberately not a YAML field; it is read from GITHUB_TOKEN only.
type GitHubStorage struct {
	Repo   string `yaml:"repo"` // "owner/name"
	Path   string `yaml:"path"`
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"-"`
}

// PostgresStorage configures the document-row backend.
type PostgresStorage struct {
	DSN string `yaml:"dsn"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Mode     string          `yaml:"mode"` // "file" | "github" | "postgres"
	File     FileStorage     `yaml:"file"`
	GitHub   GitHubStorage   `yaml:"github"`
	Postgres PostgresStorage `yaml:"postgres"`
}

// Config is the root server configuration.
type Config struct {
	ListenAddr string  `yaml:"listen_addr"`
	Storage    Storage `yaml:"storage"`
}

// Default returns a Config populated with the defaults of the original
// deployment: a local data file served on port 3000.
func Default() *Config {
	return &Config{
		ListenAddr: ":3000",
		Storage: Storage{
			Mode: "file",
			File: FileStorage{Path: "data/members.json"},
			GitHub: GitHubStorage{
				Path: "data/members.json",
			},
		},
	}
}

// Load reads the YAML config at path and applies environment overrides.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	switch cfg.Storage.Mode {
	case "file", "github", "postgres":
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv("STORAGE_MODE"); v != "" {
		cfg.Storage.Mode = v
	}
	if v := os.Getenv("DATA_FILE"); v != "" {
		cfg.Storage.File.Path = v
	}
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		cfg.Storage.GitHub.Repo = v
	}
	if v := os.Getenv("GITHUB_FILE_PATH"); v != "" {
		cfg.Storage.GitHub.Path = v
	}
	if v := os.Getenv("GITHUB_API_URL"); v != "" {
		cfg.Storage.GitHub.APIURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	cfg.Storage.GitHub.Token = os.Getenv("GITHUB_TOKEN")
}
