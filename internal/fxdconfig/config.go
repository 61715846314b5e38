// Package fxdconfig loads the configuration an embedding program supplies
// to wire a graph.Kernel, its persistence backends, and its ambient
// defaults (marker language, debounce, schema preloads). It follows the
// teacher's strict-decode-then-default-then-validate config pipeline
// (internal/attractor/engine/config.go).
package fxdconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GraphConfig configures the in-memory kernel at startup.
type GraphConfig struct {
	// SchemaPaths lists JSON Schema documents to preload into the
	// kernel's type-tag registry, keyed by the file basename up to its
	// first '.' (so "widget.schema.json" registers type tag "widget").
	SchemaPaths []string `json:"schema_paths,omitempty" yaml:"schema_paths,omitempty"`
}

// PersistenceConfig configures the durable backends.
type PersistenceConfig struct {
	FxdPath               string `json:"fxd_path" yaml:"fxd_path"`
	WalPath               string `json:"wal_path,omitempty" yaml:"wal_path,omitempty"`
	AutoCheckpointRecords *int   `json:"auto_checkpoint_records,omitempty" yaml:"auto_checkpoint_records,omitempty"`
}

// MarkerConfig configures default rendering options for views that don't
// specify their own.
type MarkerConfig struct {
	DefaultLang  string `json:"default_lang,omitempty" yaml:"default_lang,omitempty"`
	HoistImports *bool  `json:"hoist_imports,omitempty" yaml:"hoist_imports,omitempty"`
}

// RuntimePolicyConfig configures entanglement/snippet defaults applied
// when a Config/Link/Snippet doesn't set its own value.
type RuntimePolicyConfig struct {
	DefaultDebounceMicroseconds *int64 `json:"default_debounce_us,omitempty" yaml:"default_debounce_us,omitempty"`
	StallWarningMS              *int   `json:"stall_warning_ms,omitempty" yaml:"stall_warning_ms,omitempty"`
}

// Config is the top-level configuration document for an embedding
// program's FXD instance.
type Config struct {
	Version int `json:"version" yaml:"version"`

	Graph         GraphConfig         `json:"graph,omitempty" yaml:"graph,omitempty"`
	Persistence   PersistenceConfig   `json:"persistence" yaml:"persistence"`
	Markers       MarkerConfig        `json:"markers,omitempty" yaml:"markers,omitempty"`
	RuntimePolicy RuntimePolicyConfig `json:"runtime_policy,omitempty" yaml:"runtime_policy,omitempty"`
}

// LoadFile reads, strictly decodes, defaults, and validates the config at
// path. The format is chosen by extension: ".json" decodes as JSON,
// anything else as YAML.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := decodeJSONStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("fxdconfig: parse %s: %w", path, err)
		}
	default:
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("fxdconfig: parse %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("fxdconfig: %s: %w", path, err)
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Persistence.WalPath == "" && cfg.Persistence.FxdPath != "" {
		cfg.Persistence.WalPath = strings.TrimSuffix(cfg.Persistence.FxdPath, filepath.Ext(cfg.Persistence.FxdPath)) + ".fxwal"
	}
	if cfg.Persistence.AutoCheckpointRecords == nil {
		v := 500
		cfg.Persistence.AutoCheckpointRecords = &v
	}
	if cfg.Markers.DefaultLang == "" {
		cfg.Markers.DefaultLang = "js"
	}
	if cfg.Markers.HoistImports == nil {
		t := true
		cfg.Markers.HoistImports = &t
	}
	if cfg.RuntimePolicy.DefaultDebounceMicroseconds == nil {
		var v int64
		cfg.RuntimePolicy.DefaultDebounceMicroseconds = &v
	}
	if cfg.RuntimePolicy.StallWarningMS == nil {
		v := 5000
		cfg.RuntimePolicy.StallWarningMS = &v
	}
	cfg.Graph.SchemaPaths = trimNonEmpty(cfg.Graph.SchemaPaths)
}

func validate(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Persistence.FxdPath) == "" {
		return fmt.Errorf("persistence.fxd_path is required")
	}
	if cfg.Persistence.AutoCheckpointRecords != nil && *cfg.Persistence.AutoCheckpointRecords < 0 {
		return fmt.Errorf("persistence.auto_checkpoint_records must be >= 0")
	}
	if cfg.RuntimePolicy.DefaultDebounceMicroseconds != nil && *cfg.RuntimePolicy.DefaultDebounceMicroseconds < 0 {
		return fmt.Errorf("runtime_policy.default_debounce_us must be >= 0")
	}
	if cfg.RuntimePolicy.StallWarningMS != nil && *cfg.RuntimePolicy.StallWarningMS < 0 {
		return fmt.Errorf("runtime_policy.stall_warning_ms must be >= 0")
	}
	for _, p := range cfg.Graph.SchemaPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("graph.schema_paths entries must not be blank")
		}
	}
	return nil
}

func trimNonEmpty(parts []string) []string {
	if len(parts) == 0 {
		return nil
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
