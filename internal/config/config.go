// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration with the precedence
// ENV > config file > defaults and supports hot reloading of the
// runtime-tunable subset.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvListenAddr         = "VO_SYNC_ADDR"
	EnvAllowMemberControl = "VO_SYNC_ALLOW_MEMBER_CONTROL"
	// EnvAllowMemberControlLegacy is the unprefixed name the embedding UI
	// historically exported; it is honoured when the prefixed one is unset.
	EnvAllowMemberControlLegacy = "VO_ALLOW_MEMBER_CONTROL"
	EnvMediaRoot                = "VO_SYNC_MEDIA_ROOT"
	EnvAddrFile                 = "VO_SYNC_ADDR_FILE"
	EnvMetricsAddr              = "VO_SYNC_METRICS_ADDR"
	EnvConfigFile               = "VO_SYNC_CONFIG"
	EnvLogLevel                 = "VO_SYNC_LOG_LEVEL"
	EnvLogFormat                = "VO_SYNC_LOG_FORMAT"
	EnvRoomTTL                  = "VO_SYNC_ROOM_TTL"
	EnvTokenTTL                 = "VO_SYNC_TOKEN_TTL"
	EnvSweepInterval            = "VO_SYNC_SWEEP_INTERVAL"
	EnvShutdownTimeout          = "VO_SYNC_SHUTDOWN_TIMEOUT"
	EnvBiliRate                 = "VO_SYNC_BILI_RATE"
	EnvBiliBurst                = "VO_SYNC_BILI_BURST"
	EnvTraceEnabled             = "VO_SYNC_TRACE_ENABLED"
	EnvTraceExporter            = "VO_SYNC_TRACE_EXPORTER"
	EnvTraceEndpoint            = "VO_SYNC_TRACE_ENDPOINT"
	EnvTraceSample              = "VO_SYNC_TRACE_SAMPLE"
)

// DefaultListenAddr is the loopback address the daemon binds when nothing
// else is configured. Ports 18080-18089 and finally an ephemeral port are
// tried when it is taken.
const DefaultListenAddr = "127.0.0.1:18080"

// TraceConfig controls the optional OTLP trace export.
type TraceConfig struct {
	Enabled    bool
	Exporter   string // "grpc" or "http"
	Endpoint   string
	SampleRate float64
}

// Config is the full daemon configuration.
type Config struct {
	ListenAddr         string
	AddrFile           string
	MetricsAddr        string
	AllowMemberControl bool
	MediaRoot          string
	RoomTTL            time.Duration
	TokenTTL           time.Duration
	SweepInterval      time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           string
	LogFormat          string
	BiliRate           float64
	BiliBurst          int
	Trace              TraceConfig
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:         DefaultListenAddr,
		AllowMemberControl: true,
		RoomTTL:            30 * time.Minute,
		TokenTTL:           60 * time.Minute,
		SweepInterval:      60 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		LogLevel:           "info",
		LogFormat:          "json",
		BiliRate:           4,
		BiliBurst:          8,
		Trace: TraceConfig{
			Exporter:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// yamlDuration accepts Go duration strings ("30m", "90s") in the YAML file.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// fileConfig mirrors Config with pointer fields so that only keys present in
// the YAML document override the layer below.
type fileConfig struct {
	ListenAddr         *string       `yaml:"listenAddr"`
	AddrFile           *string       `yaml:"addrFile"`
	MetricsAddr        *string       `yaml:"metricsAddr"`
	AllowMemberControl *bool         `yaml:"allowMemberControl"`
	MediaRoot          *string       `yaml:"mediaRoot"`
	RoomTTL            *yamlDuration `yaml:"roomTTL"`
	TokenTTL           *yamlDuration `yaml:"tokenTTL"`
	SweepInterval      *yamlDuration `yaml:"sweepInterval"`
	ShutdownTimeout    *yamlDuration `yaml:"shutdownTimeout"`
	LogLevel           *string       `yaml:"logLevel"`
	LogFormat          *string       `yaml:"logFormat"`
	BiliRate           *float64      `yaml:"biliRate"`
	BiliBurst          *int          `yaml:"biliBurst"`
	Trace              *struct {
		Enabled    *bool    `yaml:"enabled"`
		Exporter   *string  `yaml:"exporter"`
		Endpoint   *string  `yaml:"endpoint"`
		SampleRate *float64 `yaml:"sampleRate"`
	} `yaml:"trace"`
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment, in ascending precedence.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.AddrFile, fc.AddrFile)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.MediaRoot, fc.MediaRoot)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if fc.AllowMemberControl != nil {
		cfg.AllowMemberControl = *fc.AllowMemberControl
	}
	if fc.RoomTTL != nil {
		cfg.RoomTTL = time.Duration(*fc.RoomTTL)
	}
	if fc.TokenTTL != nil {
		cfg.TokenTTL = time.Duration(*fc.TokenTTL)
	}
	if fc.SweepInterval != nil {
		cfg.SweepInterval = time.Duration(*fc.SweepInterval)
	}
	if fc.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = time.Duration(*fc.ShutdownTimeout)
	}
	if fc.BiliRate != nil {
		cfg.BiliRate = *fc.BiliRate
	}
	if fc.BiliBurst != nil {
		cfg.BiliBurst = *fc.BiliBurst
	}
	if fc.Trace != nil {
		if fc.Trace.Enabled != nil {
			cfg.Trace.Enabled = *fc.Trace.Enabled
		}
		setString(&cfg.Trace.Exporter, fc.Trace.Exporter)
		setString(&cfg.Trace.Endpoint, fc.Trace.Endpoint)
		if fc.Trace.SampleRate != nil {
			cfg.Trace.SampleRate = *fc.Trace.SampleRate
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = ParseString(EnvListenAddr, cfg.ListenAddr)
	cfg.AddrFile = ParseString(EnvAddrFile, cfg.AddrFile)
	cfg.MetricsAddr = ParseString(EnvMetricsAddr, cfg.MetricsAddr)
	cfg.MediaRoot = ParseString(EnvMediaRoot, cfg.MediaRoot)
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.LogFormat = ParseString(EnvLogFormat, cfg.LogFormat)
	cfg.AllowMemberControl = parseMemberControl(cfg.AllowMemberControl)
	cfg.RoomTTL = ParseDuration(EnvRoomTTL, cfg.RoomTTL)
	cfg.TokenTTL = ParseDuration(EnvTokenTTL, cfg.TokenTTL)
	cfg.SweepInterval = ParseDuration(EnvSweepInterval, cfg.SweepInterval)
	cfg.ShutdownTimeout = ParseDuration(EnvShutdownTimeout, cfg.ShutdownTimeout)
	cfg.BiliRate = ParseFloat(EnvBiliRate, cfg.BiliRate)
	cfg.BiliBurst = ParseInt(EnvBiliBurst, cfg.BiliBurst)
	cfg.Trace.Enabled = ParseBool(EnvTraceEnabled, cfg.Trace.Enabled)
	cfg.Trace.Exporter = ParseString(EnvTraceExporter, cfg.Trace.Exporter)
	cfg.Trace.Endpoint = ParseString(EnvTraceEndpoint, cfg.Trace.Endpoint)
	cfg.Trace.SampleRate = ParseFloat(EnvTraceSample, cfg.Trace.SampleRate)
}

// parseMemberControl implements the strict contract for the member-control
// flag: when the variable is set, only "1" or "true" (case-insensitive)
// enable it and every other value disables it. Unset falls through to def.
func parseMemberControl(def bool) bool {
	for _, key := range []string{EnvAllowMemberControl, EnvAllowMemberControlLegacy} {
		if v, ok := os.LookupEnv(key); ok {
			return v == "1" || strings.EqualFold(v, "true")
		}
	}
	return def
}

// Validate rejects configurations the daemon cannot start with.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	switch cfg.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("log format %q not supported (json|console)", cfg.LogFormat)
	}
	if cfg.RoomTTL <= 0 {
		return fmt.Errorf("room TTL must be positive, got %s", cfg.RoomTTL)
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	if cfg.BiliRate <= 0 {
		return fmt.Errorf("bili rate must be positive, got %v", cfg.BiliRate)
	}
	if cfg.BiliBurst <= 0 {
		return fmt.Errorf("bili burst must be positive, got %d", cfg.BiliBurst)
	}
	if cfg.Trace.Enabled {
		switch cfg.Trace.Exporter {
		case "grpc", "http":
		default:
			return fmt.Errorf("trace exporter %q not supported (grpc|http)", cfg.Trace.Exporter)
		}
		if cfg.Trace.Endpoint == "" {
			return fmt.Errorf("trace endpoint required when tracing is enabled")
		}
	}
	if cfg.Trace.SampleRate < 0 || cfg.Trace.SampleRate > 1 {
		return fmt.Errorf("trace sample rate must be within [0,1], got %v", cfg.Trace.SampleRate)
	}
	return nil
}
