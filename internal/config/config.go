// Package config reads and writes ledgerd.yaml.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/ledgerd/internal/dedup"
	"github.com/cleared-dev/ledgerd/internal/importer"
	"github.com/cleared-dev/ledgerd/internal/payee"
)

// Environment variables that override the file.
const (
	EnvDB        = "LEDGERD_DB"
	EnvLogLevel  = "LEDGERD_LOG_LEVEL"
	EnvLogFormat = "LEDGERD_LOG_FORMAT"
)

// Config represents the top-level ledgerd.yaml configuration.
type Config struct {
	UserID   int64                             `yaml:"user_id"`
	Storage  StorageConfig                     `yaml:"storage"`
	Dedup    DedupConfig                       `yaml:"dedup"`
	Payees   PayeesConfig                      `yaml:"payees"`
	Suggest  SuggestConfig                     `yaml:"suggest"`
	Import   ImportConfig                      `yaml:"import"`
	Logging  LoggingConfig                     `yaml:"logging"`
	Icons    IconsConfig                       `yaml:"icons"`
	Mappings map[string]importer.ColumnMapping `yaml:"mappings,omitempty"`
}

// StorageConfig locates the persisted ledger.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DedupConfig tunes duplicate detection.
type DedupConfig struct {
	WindowDays        int     `yaml:"window_days"`
	DateWeight        float64 `yaml:"date_weight"`
	AmountWeight      float64 `yaml:"amount_weight"`
	DescriptionWeight float64 `yaml:"description_weight"`
	Threshold         float64 `yaml:"threshold"`
}

// PayeesConfig tunes payee pattern learning.
type PayeesConfig struct {
	AcceptStep        float64 `yaml:"accept_step"`
	RejectStep        float64 `yaml:"reject_step"`
	FuzzyFloor        float64 `yaml:"fuzzy_floor"`
	LearnedConfidence float64 `yaml:"learned_confidence"`
}

// SuggestConfig holds the rule suggestion defaults.
type SuggestConfig struct {
	MinOccurrences int     `yaml:"min_occurrences"`
	MinConfidence  float64 `yaml:"min_confidence"`
}

// ImportConfig controls import behavior.
type ImportConfig struct {
	RetainOriginal bool   `yaml:"retain_original"`
	SkipDuplicates bool   `yaml:"skip_duplicates"`
	LearnPayees    bool   `yaml:"learn_payees"`
	AuditLog       string `yaml:"audit_log"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// IconsConfig locates the settings file holding the icon provider.
type IconsConfig struct {
	Path string `yaml:"path"`
}

// Load reads a ledgerd.yaml file from disk. Sections missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new ledger.
func Default() *Config {
	d := dedup.DefaultConfig()
	p := payee.DefaultConfig()
	return &Config{
		UserID:  1,
		Storage: StorageConfig{Path: "ledgerd.db"},
		Dedup: DedupConfig{
			WindowDays:        d.WindowDays,
			DateWeight:        d.DateWeight,
			AmountWeight:      d.AmountWeight,
			DescriptionWeight: d.DescriptionWeight,
			Threshold:         d.Threshold,
		},
		Payees: PayeesConfig{
			AcceptStep:        p.AcceptStep,
			RejectStep:        p.RejectStep,
			FuzzyFloor:        p.FuzzyFloor,
			LearnedConfidence: p.LearnedConfidence,
		},
		Suggest: SuggestConfig{MinOccurrences: 3, MinConfidence: 0.6},
		Import: ImportConfig{
			SkipDuplicates: true,
			AuditLog:       "logs/import-audit.csv",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Icons:   IconsConfig{Path: "settings.yaml"},
	}
}

// ApplyEnv overrides file values from the process environment, falling back
// to the given dotenv files (".env" when none are named). Missing dotenv
// files are ignored. The process environment is not modified.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	fileEnv := make(map[string]string)
	for _, f := range envFiles {
		m, err := godotenv.Read(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", f, err)
		}
		for k, v := range m {
			fileEnv[k] = v
		}
	}

	getEnv := func(key, fallback string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		if value, ok := fileEnv[key]; ok {
			return value
		}
		return fallback
	}

	cfg.Storage.Path = getEnv(EnvDB, cfg.Storage.Path)
	cfg.Logging.Level = getEnv(EnvLogLevel, cfg.Logging.Level)
	cfg.Logging.Format = getEnv(EnvLogFormat, cfg.Logging.Format)
	return cfg.Validate()
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.UserID <= 0 {
		return errors.New("user_id must be positive")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}

	d := c.Dedup
	if d.WindowDays <= 0 {
		return errors.New("dedup.window_days must be positive")
	}
	for name, w := range map[string]float64{
		"date_weight":        d.DateWeight,
		"amount_weight":      d.AmountWeight,
		"description_weight": d.DescriptionWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("dedup.%s must be in [0,1], got %v", name, w)
		}
	}
	if sum := d.DateWeight + d.AmountWeight + d.DescriptionWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("dedup weights must sum to 1, got %v", sum)
	}
	if d.Threshold <= 0 || d.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0,1], got %v", d.Threshold)
	}

	p := c.Payees
	for name, v := range map[string]float64{
		"accept_step":        p.AcceptStep,
		"reject_step":        p.RejectStep,
		"fuzzy_floor":        p.FuzzyFloor,
		"learned_confidence": p.LearnedConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("payees.%s must be in [0,1], got %v", name, v)
		}
	}

	if c.Suggest.MinOccurrences < 1 {
		return errors.New("suggest.min_occurrences must be at least 1")
	}
	if c.Suggest.MinConfidence < 0 || c.Suggest.MinConfidence > 1 {
		return fmt.Errorf("suggest.min_confidence must be in [0,1], got %v", c.Suggest.MinConfidence)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}

	for _, name := range c.MappingNames() {
		m := c.Mappings[name]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mapping %q: %w", name, err)
		}
	}
	return nil
}

// Detector returns the duplicate detector tuning.
func (d DedupConfig) Detector() dedup.Config {
	return dedup.Config{
		WindowDays:        d.WindowDays,
		DateWeight:        d.DateWeight,
		AmountWeight:      d.AmountWeight,
		DescriptionWeight: d.DescriptionWeight,
		Threshold:         d.Threshold,
	}
}

// Resolver returns the payee resolver tuning.
func (p PayeesConfig) Resolver() payee.Config {
	return payee.Config{
		AcceptStep:        p.AcceptStep,
		RejectStep:        p.RejectStep,
		FuzzyFloor:        p.FuzzyFloor,
		LearnedConfidence: p.LearnedConfidence,
	}
}

// Mapping returns a copy of the named CSV column mapping.
func (c *Config) Mapping(name string) (*importer.ColumnMapping, error) {
	m, ok := c.Mappings[name]
	if !ok {
		return nil, fmt.Errorf("unknown mapping %q", name)
	}
	return &m, nil
}

// MappingNames returns the configured mapping names in sorted order.
func (c *Config) MappingNames() []string {
	names := make([]string, 0, len(c.Mappings))
	for name := range c.Mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
