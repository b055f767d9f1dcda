// SPDX-License-Identifier: Apache-2.0

// Package config loads casecheck settings from a .env file and the
// environment.
package config

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/report"
	"github.com/vgmedical/casecheck/internal/verify"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	ReportTTL   time.Duration `mapstructure:"REPORT_TTL"`

	OTLPEndpoint   string        `mapstructure:"OTLP_ENDPOINT"`
	ExtractTimeout time.Duration `mapstructure:"EXTRACT_TIMEOUT"`

	BasicThreshold        float64 `mapstructure:"BASIC_THRESHOLD"`
	ProcedureThreshold    float64 `mapstructure:"PROCEDURE_THRESHOLD"`
	SupplyThreshold       float64 `mapstructure:"SUPPLY_THRESHOLD"`
	ExtraMentionThreshold float64 `mapstructure:"EXTRA_MENTION_THRESHOLD"`
	SuggestLowerBound     float64 `mapstructure:"SUGGEST_LOWER_BOUND"`
	ReviewThreshold       float64 `mapstructure:"REVIEW_THRESHOLD"`
	WeightBasic           float64 `mapstructure:"WEIGHT_BASIC"`
	WeightSupplies        float64 `mapstructure:"WEIGHT_SUPPLIES"`
	WeightTraceability    float64 `mapstructure:"WEIGHT_TRACEABILITY"`

	RefPattern           string   `mapstructure:"REF_PATTERN"`
	LotPattern           string   `mapstructure:"LOT_PATTERN"`
	TraceabilityKeywords []string `mapstructure:"TRACEABILITY_KEYWORDS"`
	RequireUDILabel      bool     `mapstructure:"REQUIRE_UDI_LABEL"`

	AllowAliasOverride  bool   `mapstructure:"ALLOW_ALIAS_OVERRIDE"`
	EquivalenceSeedFile string `mapstructure:"EQUIVALENCE_SEED_FILE"`
}

var defaults = map[string]any{
	"ENV":                     "development",
	"LOG_LEVEL":               "info",
	"DB_MAX_CONNS":            10,
	"DB_MIN_CONNS":            1,
	"REPORT_TTL":              "720h",
	"EXTRACT_TIMEOUT":         "10s",
	"BASIC_THRESHOLD":         0.85,
	"PROCEDURE_THRESHOLD":     0.70,
	"SUPPLY_THRESHOLD":        0.80,
	"EXTRA_MENTION_THRESHOLD": 0.60,
	"SUGGEST_LOWER_BOUND":     0.60,
	"REVIEW_THRESHOLD":        0.90,
	"WEIGHT_BASIC":            0.4,
	"WEIGHT_SUPPLIES":         0.4,
	"WEIGHT_TRACEABILITY":     0.2,
	"REF_PATTERN":             verify.DefaultCodePattern,
	"LOT_PATTERN":             verify.DefaultCodePattern,
	"TRACEABILITY_KEYWORDS":   "",
	"REQUIRE_UDI_LABEL":       false,
	"ALLOW_ALIAS_OVERRIDE":    true,
}

// keys without a default that still have to be bound for Unmarshal
var optional = []string{"DATABASE_URL", "REDIS_URL", "OTLP_ENDPOINT", "EQUIVALENCE_SEED_FILE"}

// ConfigurationError names the setting that makes the configuration unusable.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

// Load reads envFile (".env" when empty; a missing file is fine), overlays
// the process environment and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range optional {
		_ = v.BindEnv(key)
	}

	// Try reading the env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.TraceabilityKeywords = splitList(cfg.TraceabilityKeywords)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts either a decoded list or a single comma separated value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks thresholds, weights and code patterns. The first problem is
// returned as a *ConfigurationError.
func (c *Config) Validate() error {
	for _, t := range []struct {
		key   string
		value float64
	}{
		{"BASIC_THRESHOLD", c.BasicThreshold},
		{"PROCEDURE_THRESHOLD", c.ProcedureThreshold},
		{"SUPPLY_THRESHOLD", c.SupplyThreshold},
		{"EXTRA_MENTION_THRESHOLD", c.ExtraMentionThreshold},
		{"SUGGEST_LOWER_BOUND", c.SuggestLowerBound},
		{"REVIEW_THRESHOLD", c.ReviewThreshold},
		{"WEIGHT_BASIC", c.WeightBasic},
		{"WEIGHT_SUPPLIES", c.WeightSupplies},
		{"WEIGHT_TRACEABILITY", c.WeightTraceability},
	} {
		if t.value < 0 || t.value > 1 || math.IsNaN(t.value) {
			return &ConfigurationError{Key: t.key, Reason: fmt.Sprintf("%v is outside [0, 1]", t.value)}
		}
	}

	sum := c.WeightBasic + c.WeightSupplies + c.WeightTraceability
	if math.Abs(sum-1) > 1e-9 {
		return &ConfigurationError{Key: "WEIGHT_*", Reason: fmt.Sprintf("weights sum to %v, want 1", sum)}
	}
	if c.SuggestLowerBound >= c.SupplyThreshold {
		return &ConfigurationError{
			Key:    "SUGGEST_LOWER_BOUND",
			Reason: fmt.Sprintf("%v must be below SUPPLY_THRESHOLD %v", c.SuggestLowerBound, c.SupplyThreshold),
		}
	}
	if _, err := regexp.Compile(c.RefPattern); err != nil {
		return &ConfigurationError{Key: "REF_PATTERN", Reason: err.Error()}
	}
	if _, err := regexp.Compile(c.LotPattern); err != nil {
		return &ConfigurationError{Key: "LOT_PATTERN", Reason: err.Error()}
	}
	if c.ExtractTimeout <= 0 {
		return &ConfigurationError{Key: "EXTRACT_TIMEOUT", Reason: "must be positive"}
	}
	if c.ReportTTL < 0 {
		return &ConfigurationError{Key: "REPORT_TTL", Reason: "must not be negative"}
	}
	if c.DBMinConns > c.DBMaxConns {
		return &ConfigurationError{Key: "DB_MIN_CONNS", Reason: "exceeds DB_MAX_CONNS"}
	}
	return nil
}

// Settings converts a validated Config into engine settings.
func (c *Config) Settings() engine.Settings {
	return engine.Settings{
		BasicThreshold:        c.BasicThreshold,
		ProcedureThreshold:    c.ProcedureThreshold,
		SupplyThreshold:       c.SupplyThreshold,
		ExtraMentionThreshold: c.ExtraMentionThreshold,
		ReviewThreshold:       c.ReviewThreshold,
		Weights: report.Weights{
			Basic:        c.WeightBasic,
			Supplies:     c.WeightSupplies,
			Traceability: c.WeightTraceability,
		},
		Traceability: verify.TraceabilityRules{
			RefPattern:      regexp.MustCompile(c.RefPattern),
			LotPattern:      regexp.MustCompile(c.LotPattern),
			Keywords:        c.TraceabilityKeywords,
			RequireUDILabel: c.RequireUDILabel,
		},
		ExtractTimeout: c.ExtractTimeout,
	}
}
