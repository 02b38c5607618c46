// Package config holds the harness configuration, loaded from a YAML file
// with zero values backfilled from defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"formeval/internal/browser"
	"formeval/internal/field"

	"gopkg.in/yaml.v3"
)

// Config holds all harness configuration.
type Config struct {
	// Catalog service (Turkle or compatible).
	CatalogURL     string `yaml:"catalog_url"`
	CatalogTimeout string `yaml:"catalog_timeout"`

	// Directory holding one subdirectory per task with its batch.csv.
	TasksDir string `yaml:"tasks_dir"`

	// Number of shards the catalog is split into.
	Partitions int `yaml:"partitions"`

	Weighting  WeightingConfig  `yaml:"weighting"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Browser    browser.Config   `yaml:"browser"`
	Results    ResultsConfig    `yaml:"results"`
}

// WeightingConfig tunes the task-cost estimate fed to the partitioner.
type WeightingConfig struct {
	// InstanceCap bounds the instance count of outlier-sized tasks.
	InstanceCap int `yaml:"instance_cap"`
	// FixedOverhead is the constant per-instance cost independent of the
	// field count.
	FixedOverhead int `yaml:"fixed_overhead"`
}

// EvaluationConfig controls a run.
type EvaluationConfig struct {
	Solver       string `yaml:"solver"` // oracle or random
	MaxInstances int    `yaml:"max_instances"`
	Seed         int64  `yaml:"seed"`
	// CrossLingual switches text scoring to the subword tokenizer.
	CrossLingual bool `yaml:"cross_lingual"`
	// ExcludedFields overrides the default bookkeeping-field exclusion set.
	ExcludedFields []string `yaml:"excluded_fields"`
}

// ResultsConfig controls where run output lands.
type ResultsConfig struct {
	DatabasePath string `yaml:"database_path"`
	ScoreCSV     string `yaml:"score_csv"`
	StatsCSV     string `yaml:"stats_csv"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CatalogURL:     "http://localhost:8000",
		CatalogTimeout: "30s",
		TasksDir:       "tasks",
		Partitions:     19,
		Weighting: WeightingConfig{
			InstanceCap:   1000,
			FixedOverhead: 8,
		},
		Evaluation: EvaluationConfig{
			Solver:         "random",
			MaxInstances:   1,
			Seed:           1,
			ExcludedFields: field.DefaultExcludedNames,
		},
		Browser: browser.DefaultConfig(),
		Results: ResultsConfig{
			DatabasePath: "results/formeval.db",
			ScoreCSV:     "results/scores.csv",
			StatsCSV:     "results/field_statistics.csv",
		},
	}
}

// Load reads the config at path, layering it over the defaults. A missing
// file is not an error: the defaults stand.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults backfills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.CatalogURL == "" {
		c.CatalogURL = def.CatalogURL
	}
	if c.CatalogTimeout == "" {
		c.CatalogTimeout = def.CatalogTimeout
	}
	if c.TasksDir == "" {
		c.TasksDir = def.TasksDir
	}
	if c.Partitions == 0 {
		c.Partitions = def.Partitions
	}
	if c.Weighting.InstanceCap == 0 {
		c.Weighting.InstanceCap = def.Weighting.InstanceCap
	}
	if c.Weighting.FixedOverhead == 0 {
		c.Weighting.FixedOverhead = def.Weighting.FixedOverhead
	}
	if c.Evaluation.Solver == "" {
		c.Evaluation.Solver = def.Evaluation.Solver
	}
	if c.Evaluation.MaxInstances == 0 {
		c.Evaluation.MaxInstances = def.Evaluation.MaxInstances
	}
	if c.Evaluation.Seed == 0 {
		c.Evaluation.Seed = def.Evaluation.Seed
	}
	if len(c.Evaluation.ExcludedFields) == 0 {
		c.Evaluation.ExcludedFields = def.Evaluation.ExcludedFields
	}
	if c.Browser.ViewportWidth == 0 {
		c.Browser.ViewportWidth = def.Browser.ViewportWidth
	}
	if c.Browser.ViewportHeight == 0 {
		c.Browser.ViewportHeight = def.Browser.ViewportHeight
	}
	if c.Browser.NavigationTimeoutMs == 0 {
		c.Browser.NavigationTimeoutMs = def.Browser.NavigationTimeoutMs
	}
	if c.Results.DatabasePath == "" {
		c.Results.DatabasePath = def.Results.DatabasePath
	}
	if c.Results.ScoreCSV == "" {
		c.Results.ScoreCSV = def.Results.ScoreCSV
	}
	if c.Results.StatsCSV == "" {
		c.Results.StatsCSV = def.Results.StatsCSV
	}
}

// Validate rejects configurations the harness cannot run with.
func (c *Config) Validate() error {
	if c.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", c.Partitions)
	}
	if c.Evaluation.MaxInstances <= 0 {
		return fmt.Errorf("evaluation.max_instances must be positive, got %d", c.Evaluation.MaxInstances)
	}
	if _, err := time.ParseDuration(c.CatalogTimeout); err != nil {
		return fmt.Errorf("catalog_timeout: %w", err)
	}
	return nil
}

// CatalogTimeoutDuration parses the configured catalog timeout. Validate
// guarantees it parses for loaded configs.
func (c *Config) CatalogTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.CatalogTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
