package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all service configuration. Values come from defaults, then an
// optional TOML file (CONFIG_FILE), then environment variables.
type Config struct {
	Port               string   `toml:"port"`
	LogLevel           string   `toml:"log_level"`
	StorageDriver      string   `toml:"storage_driver"`
	DBConnectionString string   `toml:"db_connection_string"`
	PollInterval       Duration `toml:"poll_interval"`

	GitHub      GitHubConfig      `toml:"github"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Sync        SyncConfig        `toml:"sync"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Worker      WorkerConfig      `toml:"worker"`
	Authz       AuthzConfig       `toml:"authz"`
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:          "8080",
		LogLevel:      "info",
		StorageDriver: StorageDriverPostgres,
		PollInterval:  Duration(2 * time.Second),
		GitHub:        *DefaultGitHubConfig(),
		Pipeline:      *DefaultPipelineConfig(),
		Sync:          *DefaultSyncConfig(),
		ObjectStore:   *DefaultObjectStoreConfig(),
		Worker:        *DefaultWorkerConfig(),
	}
}

// Load builds the configuration from CONFIG_FILE (if set) and the environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom reads the TOML file at path, when it exists, and applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StorageDriver = getEnv("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.DBConnectionString = getEnv("DB_CONNECTION_STRING", cfg.DBConnectionString)

	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.GitHub.APIBaseURL = getEnv("GITHUB_API_BASE_URL", cfg.GitHub.APIBaseURL)

	cfg.Pipeline.WorkRoot = getEnv("WORK_ROOT", cfg.Pipeline.WorkRoot)
	cfg.Pipeline.UploadRoot = getEnv("UPLOAD_ROOT", cfg.Pipeline.UploadRoot)

	cfg.ObjectStore.Endpoint = getEnv("OBJECT_STORE_ENDPOINT", cfg.ObjectStore.Endpoint)
	cfg.ObjectStore.AccessKey = getEnv("OBJECT_STORE_ACCESS_KEY", cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = getEnv("OBJECT_STORE_SECRET_KEY", cfg.ObjectStore.SecretKey)
	cfg.ObjectStore.Bucket = getEnv("OBJECT_STORE_BUCKET", cfg.ObjectStore.Bucket)

	cfg.Worker.BaseURL = getEnv("WORKER_BASE_URL", cfg.Worker.BaseURL)

	durations := []struct {
		key    string
		target *Duration
	}{
		{"POLL_INTERVAL", &cfg.PollInterval},
		{"STAGE_TIMEOUT", &cfg.Pipeline.StageTimeout},
		{"MAX_RUN_DURATION", &cfg.Pipeline.MaxRunDuration},
		{"SYNC_TICK_INTERVAL", &cfg.Sync.TickInterval},
		{"WORKER_POLL_INTERVAL", &cfg.Worker.PollInterval},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			if err := d.target.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"SYNC_MAX_STARTS_PER_TICK", &cfg.Sync.MaxStartsPerTick},
		{"DEFAULT_SYNC_INTERVAL_MINUTES", &cfg.Sync.DefaultIntervalMinutes},
		{"UPLOAD_WORKERS", &cfg.ObjectStore.Workers},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", i.key, err)
			}
			*i.target = n
		}
	}

	if v := os.Getenv("OBJECT_STORE_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OBJECT_STORE_USE_SSL: %w", err)
		}
		cfg.ObjectStore.UseSSL = b
	}

	if v := os.Getenv("SUPERUSER_IDS"); v != "" {
		cfg.Authz.Superusers = splitList(v)
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DBConnectionString == "" {
			return fmt.Errorf("DB_CONNECTION_STRING must be set for the postgres storage driver")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.PollInterval.Duration() <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	return c.Sync.Validate()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Duration is a time.Duration that decodes from strings such as "90s" or "5m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
