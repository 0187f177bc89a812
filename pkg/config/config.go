// Package config loads the gateway's http_options configuration: listener
// binding, TLS, the edge-cache policy, and the small/large object-size
// thresholds, layered file → environment → defaults exactly as the
// teacher's pkg/config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/storage-gateway/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	HTTP      HTTPOptions     `mapstructure:"http_options" yaml:"http_options"`
	Logging   LoggingOptions  `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryOptions `mapstructure:"telemetry" yaml:"telemetry"`
	Storage   StorageOptions  `mapstructure:"storage" yaml:"storage"`
}

// LoggingOptions configures internal/logger.
type LoggingOptions struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryOptions configures internal/telemetry's OTEL tracing and
// Pyroscope profiling.
type TelemetryOptions struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingOptions `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingOptions configures Pyroscope continuous profiling.
type ProfilingOptions struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types,omitempty"`
}

// StorageOptions configures the S3-backed storage cluster client.
type StorageOptions struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Region   string `mapstructure:"region" yaml:"region"`

	// Bucket has no usable default — deployments must set it, but the
	// zero-config path (used by `gatewayd init` and tests that only
	// exercise HTTP options) is still a valid Config otherwise.
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`

	MaxRetries        uint          `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`

	// MetaIndexDir is the on-disk directory for the badger-backed metadata
	// accelerator (see pkg/storagerpc/s3/metaindex.go). Empty disables
	// persistence and runs the index in memory; it is never required.
	MetaIndexDir string `mapstructure:"meta_index_dir" yaml:"meta_index_dir,omitempty"`
}

// HTTPOptions mirrors spec.md §6's http_options table.
type HTTPOptions struct {
	// Port is the plaintext listener port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// SSLPort is the TLS listener port; 0 disables the TLS listener.
	SSLPort int `mapstructure:"ssl_port" validate:"omitempty,min=1,max=65535" yaml:"ssl_port"`

	// SSLCertfile/SSLKeyfile are required together when SSLPort is set.
	SSLCertfile string `mapstructure:"ssl_certfile" validate:"required_with=SSLPort" yaml:"ssl_certfile"`
	SSLKeyfile  string `mapstructure:"ssl_keyfile" validate:"required_with=SSLPort" yaml:"ssl_keyfile"`

	// NumOfAcceptors is the acceptor pool size. It is validated and
	// defaulted, but the gateway's server does not read it: each listener
	// accepts connections on a single goroutine.
	NumOfAcceptors int `mapstructure:"num_of_acceptors" validate:"required,gt=0" yaml:"num_of_acceptors"`

	// MaxKeepalive is the per-connection keep-alive request limit. It is
	// validated and defaulted, but the gateway's server does not read it:
	// the number of requests on a keep-alive connection is not bounded.
	MaxKeepalive int `mapstructure:"max_keepalive" validate:"required,gt=0" yaml:"max_keepalive"`

	// CacheMethod selects the edge-cache mode: "inner" for internal
	// (inline) mode, anything else for interceptor mode.
	CacheMethod string `mapstructure:"cache_method" validate:"required" yaml:"cache_method"`

	// CacheExpire is the freshness TTL applied by interceptor mode. Internal
	// mode does not use it; it revalidates each hit against the storage
	// cluster instead.
	CacheExpire time.Duration `mapstructure:"cache_expire" validate:"required,gt=0" yaml:"cache_expire"`

	// CacheMaxContentLen bounds the body size eligible for caching.
	CacheMaxContentLen bytesize.ByteSize `mapstructure:"cache_max_content_len" yaml:"cache_max_content_len"`

	// CachableContentType allow-lists response Content-Type values;
	// empty means any content type is cachable.
	CachableContentType []string `mapstructure:"cachable_content_type" yaml:"cachable_content_type,omitempty"`

	// CachablePathPattern allow-lists request-path regexes; empty means
	// any path is cachable.
	CachablePathPattern []string `mapstructure:"cachable_path_pattern" yaml:"cachable_path_pattern,omitempty"`

	// ThresholdObjLen is the body size at/above which the large-object
	// streaming path engages.
	ThresholdObjLen bytesize.ByteSize `mapstructure:"threshold_obj_len" validate:"required,gt=0" yaml:"threshold_obj_len"`

	// ChunkedObjLen is the chunk window size used by large uploads.
	ChunkedObjLen bytesize.ByteSize `mapstructure:"chunked_obj_len" validate:"required,gt=0" yaml:"chunked_obj_len"`

	// MaxLenForObj is the absolute upper bound on any request body;
	// requests at or above it are rejected with 400.
	MaxLenForObj bytesize.ByteSize `mapstructure:"max_len_for_obj" validate:"required,gt=0" yaml:"max_len_for_obj"`
}

// Load reads configuration from configPath (or the default XDG location if
// empty), applies environment variable overrides prefixed GATEWAY_ to the
// keys the file sets, fills defaults for anything unset, and validates the
// result. Environment variables do not add keys the file lacks, and when no
// config file is found the defaults are returned without any environment
// overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := defaultConfig()
		return cfg, Validate(cfg)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with sensible defaults, the way
// the teacher's ApplyDefaults does per section.
func ApplyDefaults(cfg *Config) {
	d := defaultConfig()

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = d.HTTP.Port
	}
	if cfg.HTTP.NumOfAcceptors == 0 {
		cfg.HTTP.NumOfAcceptors = d.HTTP.NumOfAcceptors
	}
	if cfg.HTTP.MaxKeepalive == 0 {
		cfg.HTTP.MaxKeepalive = d.HTTP.MaxKeepalive
	}
	if cfg.HTTP.CacheMethod == "" {
		cfg.HTTP.CacheMethod = d.HTTP.CacheMethod
	}
	if cfg.HTTP.CacheExpire == 0 {
		cfg.HTTP.CacheExpire = d.HTTP.CacheExpire
	}
	if cfg.HTTP.CacheMaxContentLen == 0 {
		cfg.HTTP.CacheMaxContentLen = d.HTTP.CacheMaxContentLen
	}
	if cfg.HTTP.ThresholdObjLen == 0 {
		cfg.HTTP.ThresholdObjLen = d.HTTP.ThresholdObjLen
	}
	if cfg.HTTP.ChunkedObjLen == 0 {
		cfg.HTTP.ChunkedObjLen = d.HTTP.ChunkedObjLen
	}
	if cfg.HTTP.MaxLenForObj == 0 {
		cfg.HTTP.MaxLenForObj = d.HTTP.MaxLenForObj
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = d.Logging.Output
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = d.Telemetry.Endpoint
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = d.Telemetry.SampleRate
	}
	if cfg.Telemetry.Profiling.Endpoint == "" {
		cfg.Telemetry.Profiling.Endpoint = d.Telemetry.Profiling.Endpoint
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = d.Telemetry.Profiling.ProfileTypes
	}

	if cfg.Storage.MaxRetries == 0 {
		cfg.Storage.MaxRetries = d.Storage.MaxRetries
	}
	if cfg.Storage.InitialBackoff == 0 {
		cfg.Storage.InitialBackoff = d.Storage.InitialBackoff
	}
	if cfg.Storage.MaxBackoff == 0 {
		cfg.Storage.MaxBackoff = d.Storage.MaxBackoff
	}
	if cfg.Storage.BackoffMultiplier == 0 {
		cfg.Storage.BackoffMultiplier = d.Storage.BackoffMultiplier
	}
}

// defaultConfig returns a complete, valid Config with no file or
// environment input.
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPOptions{
			Port:               8080,
			NumOfAcceptors:     4,
			MaxKeepalive:       100,
			CacheMethod:        "inner",
			CacheExpire:        60 * time.Second,
			CacheMaxContentLen: 1 * bytesize.MiB,
			ThresholdObjLen:    1 * bytesize.MiB,
			ChunkedObjLen:      2 * bytesize.MiB,
			MaxLenForObj:       5 * bytesize.GiB,
		},
		Logging: LoggingOptions{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: TelemetryOptions{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
			Profiling: ProfilingOptions{
				Enabled:      false,
				Endpoint:     "http://localhost:4040",
				ProfileTypes: []string{"cpu", "alloc_objects", "inuse_objects"},
			},
		},
		Storage: StorageOptions{
			Region:            "us-east-1",
			MaxRetries:        3,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg, mirroring the teacher's
// validator-based Validate.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// SaveConfig writes cfg as YAML to path, creating parent directories as
// needed, matching the teacher's SaveConfig.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "storage-gateway")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "storage-gateway")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
