// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the callscope configuration file.
//
// The file is YAML. It is looked up as .callscope.yaml in the project root
// and then as ~/.callscope/config.yaml. Values missing from the file keep
// their defaults; command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/telemetry"
)

// File names searched by Discover.
const (
	ProjectFileName = ".callscope.yaml"
	UserDirName     = ".callscope"
	UserFileName    = "config.yaml"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// FieldError describes one invalid configuration field.
type FieldError struct {
	// Field is the dotted yaml path, e.g. "server.port".
	Field string
	Tag   string
	Param string
	Value any
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %v fails %s=%s", e.Field, e.Value, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s: %v fails %s", e.Field, e.Value, e.Tag)
}

// Unwrap returns ErrInvalidConfig.
func (e *FieldError) Unwrap() error {
	return ErrInvalidConfig
}

// Config is the complete configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	// LogDir also writes a daily JSON log file there. Empty disables it.
	LogDir string `yaml:"log_dir"`

	Limits    LimitsConfig    `yaml:"limits"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
}

// LimitsConfig holds the default query limits.
type LimitsConfig struct {
	Hierarchy callgraph.HierarchyLimits `yaml:"hierarchy"`
	Path      callgraph.PathLimits      `yaml:"path"`

	// GraphEdges bounds the graph built for hierarchy queries.
	GraphEdges int `yaml:"graph_edges" validate:"min=1,max=200000"`
}

// CorpusConfig controls which files are analyzed.
type CorpusConfig struct {
	Exclude      []string `yaml:"exclude" validate:"dive,required"`
	IncludeTests bool     `yaml:"include_tests"`

	// MaxFileSize in bytes. Zero uses the loader default.
	MaxFileSize int64 `yaml:"max_file_size" validate:"min=0"`

	// Concurrency bounds concurrent file reads. Zero uses the loader default.
	Concurrency int `yaml:"concurrency" validate:"min=0,max=256"`

	IncludeExternal        bool `yaml:"include_external"`
	IncludeObjectCreations bool `yaml:"include_object_creations"`
}

// ServerConfig configures "callscope serve".
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`

	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	RateBurst int     `yaml:"rate_burst" validate:"min=0"`

	// AllowedRoots restricts project_root in requests. Empty allows any.
	AllowedRoots []string `yaml:"allowed_roots"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	Environment    string `yaml:"environment"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none otlp stdout"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none prometheus stdout"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// HistoryConfig controls the query history store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the badger directory. Empty keeps history in memory.
	Dir string `yaml:"dir"`

	// Retention prunes older records on startup. Zero keeps everything.
	Retention time.Duration `yaml:"retention" validate:"min=0"`

	// MemoryCapacity bounds the in-memory store.
	MemoryCapacity int `yaml:"memory_capacity" validate:"min=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	tel := telemetry.DefaultConfig()
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Limits: LimitsConfig{
			Hierarchy:  callgraph.DefaultHierarchyLimits(),
			Path:       callgraph.DefaultPathLimits(),
			GraphEdges: callgraph.DefaultMaxGraphEdges,
		},
		Corpus: CorpusConfig{
			IncludeObjectCreations: true,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8088,
			RateLimit:       5,
			RateBurst:       10,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Environment:    tel.Environment,
			TraceExporter:  tel.TraceExporter,
			MetricExporter: tel.MetricExporter,
			OTLPEndpoint:   tel.OTLPEndpoint,
			OTLPInsecure:   tel.OTLPInsecure,
		},
		History: HistoryConfig{
			Enabled:        true,
			Dir:            defaultHistoryDir(),
			Retention:      30 * 24 * time.Hour,
			MemoryCapacity: 256,
		},
	}
}

func defaultHistoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserDirName, "history")
}

// ProjectPath returns the project configuration file for root.
func ProjectPath(root string) string {
	return filepath.Join(root, ProjectFileName)
}

// UserPath returns the per-user configuration file.
func UserPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, UserDirName, UserFileName), nil
}

// Discover returns the configuration file for a project root: the project
// file when present, else the user file when present, else "".
func Discover(root string) string {
	candidates := []string{ProjectPath(root)}
	if user, err := UserPath(); err == nil {
		candidates = append(candidates, user)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// Load reads path over the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg as YAML at path, creating the directory.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var configValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks every field and returns a *FieldError for the first
// violation.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return &FieldError{Field: field, Tag: fe.Tag(), Param: fe.Param(), Value: fe.Value()}
}

// TelemetryOptions converts the telemetry section for telemetry.Init.
func (c Config) TelemetryOptions() telemetry.Config {
	tel := telemetry.DefaultConfig()
	tel.Environment = c.Telemetry.Environment
	tel.TraceExporter = c.Telemetry.TraceExporter
	tel.MetricExporter = c.Telemetry.MetricExporter
	tel.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	tel.OTLPInsecure = c.Telemetry.OTLPInsecure
	return tel
}

// Addr returns the server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
