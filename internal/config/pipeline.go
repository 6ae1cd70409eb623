package config

import (
	"fmt"
	"time"
)

// PipelineConfig holds ingestion pipeline configuration
type PipelineConfig struct {
	// WorkRoot is where clones are checked out, one directory per repository.
	WorkRoot string `toml:"work_root"`
	// UploadRoot is where local uploads are staged, one directory per upload id.
	UploadRoot string `toml:"upload_root"`
	// StageTimeout fails a stage that reports no progress for this long.
	StageTimeout Duration `toml:"stage_timeout"`
	// MaxRunDuration bounds a whole run.
	MaxRunDuration Duration `toml:"max_run_duration"`
	// Stages overrides weight and timeout per stage name, e.g. "PARSING_FILES".
	Stages map[string]StageConfig `toml:"stages"`
}

// StageConfig tunes a single stage
type StageConfig struct {
	Weight  int      `toml:"weight"`
	Timeout Duration `toml:"timeout"`
}

var defaultStageWeights = map[string]int{
	"CLONING":             10,
	"UPLOADING_TO_FTP":    10,
	"SCANNING_NAMESPACES": 10,
	"PARSING_FILES":       30,
	"GENERATING_GRAPH":    20,
	"INDEXING":            20,
}

// DefaultPipelineConfig returns the default pipeline configuration
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		WorkRoot:       "/var/lib/repo-ingest/work",
		UploadRoot:     "/var/lib/repo-ingest/uploads",
		StageTimeout:   Duration(10 * time.Minute),
		MaxRunDuration: Duration(2 * time.Hour),
	}
}

// Validate checks the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.StageTimeout.Duration() <= 0 {
		return fmt.Errorf("stage timeout must be positive")
	}
	for name, sc := range c.Stages {
		if _, ok := defaultStageWeights[name]; !ok {
			return fmt.Errorf("unknown pipeline stage %q in configuration", name)
		}
		if sc.Weight < 0 {
			return fmt.Errorf("stage %s weight cannot be negative", name)
		}
	}
	return nil
}

// WeightFor returns the relative expected duration of a stage.
func (c *PipelineConfig) WeightFor(stage string) int {
	if sc, ok := c.Stages[stage]; ok && sc.Weight > 0 {
		return sc.Weight
	}
	if w, ok := defaultStageWeights[stage]; ok {
		return w
	}
	return 1
}

// TimeoutFor returns the inactivity timeout of a stage.
func (c *PipelineConfig) TimeoutFor(stage string) time.Duration {
	if sc, ok := c.Stages[stage]; ok && sc.Timeout > 0 {
		return sc.Timeout.Duration()
	}
	return c.StageTimeout.Duration()
}

// ObjectStoreConfig holds the S3-compatible storage used by the upload stage
type ObjectStoreConfig struct {
	Endpoint   string `toml:"endpoint"`
	AccessKey  string `toml:"access_key"`
	SecretKey  string `toml:"secret_key"`
	Bucket     string `toml:"bucket"`
	UseSSL     bool   `toml:"use_ssl"`
	Workers    int    `toml:"workers"`
	MaxRetries int    `toml:"max_retries"`
}

// DefaultObjectStoreConfig returns the default object store configuration
func DefaultObjectStoreConfig() *ObjectStoreConfig {
	return &ObjectStoreConfig{
		Bucket:     "repositories",
		UseSSL:     true,
		Workers:    4,
		MaxRetries: 3,
	}
}

// WorkerConfig holds the external job service running scan, parse, graph and index stages
type WorkerConfig struct {
	BaseURL      string   `toml:"base_url"`
	PollInterval Duration `toml:"poll_interval"`
	MaxRetries   int      `toml:"max_retries"`
}

// DefaultWorkerConfig returns the default worker service configuration
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		PollInterval: Duration(2 * time.Second),
		MaxRetries:   3,
	}
}

// AuthzConfig configures the built-in namespace authorizer
type AuthzConfig struct {
	Superusers []string           `toml:"superusers"`
	Namespaces []NamespaceMembers `toml:"namespaces"`
}

// NamespaceMembers lists who may act on a namespace
type NamespaceMembers struct {
	ID      string   `toml:"id"`
	Admins  []string `toml:"admins"`
	Members []string `toml:"members"`
}
