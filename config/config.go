// Package config loads skycp settings from defaults, an optional YAML
// file, SKYCP_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/franksops/skycp/engine"
	"github.com/franksops/skycp/provider"
)

const (
	defaultConcurrency = 32
	defaultBufferSize  = 1 * 1024 * 1024 // 1MB
	envPrefix          = "SKYCP"
)

// Config holds all application configuration
type Config struct {
	Concurrency     int           `mapstructure:"concurrency"`
	PartConcurrency int           `mapstructure:"part_concurrency"`
	BufferSize      int           `mapstructure:"buffer_size"`
	Checksum        bool          `mapstructure:"checksum"`
	NoMetadata      bool          `mapstructure:"no_metadata"`
	TUI             bool          `mapstructure:"tui"`
	State           StateConfig   `mapstructure:"state"`
	Log             LogConfig     `mapstructure:"log"`
	Metrics         MetricsConfig `mapstructure:"metrics"`
	S3              S3Config      `mapstructure:"s3"`
	GCS             GCSConfig     `mapstructure:"gcs"`
	Azure           AzureConfig   `mapstructure:"azure"`
}

// StateConfig locates the transfer journal.
type StateConfig struct {
	Dir    string `mapstructure:"dir"`
	Engine string `mapstructure:"engine"` // "bolt" or "badger"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

type GCSConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Insecure  bool   `mapstructure:"insecure"`
}

type AzureConfig struct {
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"concurrency":             "concurrency",
	"part-concurrency":        "part_concurrency",
	"buffer-size":             "buffer_size",
	"checksum":                "checksum",
	"no-metadata":             "no_metadata",
	"tui":                     "tui",
	"state-dir":               "state.dir",
	"state-engine":            "state.engine",
	"log-level":               "log.level",
	"log-file":                "log.file",
	"log-dev":                 "log.development",
	"metrics-addr":            "metrics.addr",
	"s3-region":               "s3.region",
	"s3-endpoint":             "s3.endpoint",
	"s3-path-style":           "s3.path_style",
	"gcs-endpoint":            "gcs.endpoint",
	"gcs-access-key":          "gcs.access_key",
	"gcs-secret-key":          "gcs.secret_key",
	"gcs-insecure":            "gcs.insecure",
	"azure-account-key":       "azure.account_key",
	"azure-connection-string": "azure.connection_string",
}

// Flags returns the flag set shared by all subcommands.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")
	fs.IntP("concurrency", "n", defaultConcurrency, "Number of concurrent transfers (0 runs every unit at once)")
	fs.Int("part-concurrency", 0, "Parts or blocks moved in parallel per remote object (0 uses the SDK default)")
	fs.Int("buffer-size", defaultBufferSize, "Buffer size in bytes for each local copy")
	fs.Bool("checksum", false, "Verify local copies with CRC64")
	fs.Bool("no-metadata", false, "Disable metadata preservation (mode/mtime)")
	fs.Bool("tui", false, "Show the interactive progress display")
	fs.String("state-dir", defaultStateDir(), "Directory to store the transfer journal")
	fs.String("state-engine", "bolt", "Journal engine: bolt or badger")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-file", "", "Write logs to this file instead of stderr")
	fs.Bool("log-dev", false, "Human-readable console logs")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.String("s3-region", "", "AWS region")
	fs.String("s3-endpoint", "", "Custom S3 endpoint (MinIO, LocalStack)")
	fs.Bool("s3-path-style", false, "Use path-style S3 addressing")
	fs.String("gcs-endpoint", provider.DefaultGCSEndpoint, "Cloud Storage XML API endpoint")
	fs.String("gcs-access-key", "", "Cloud Storage HMAC access key")
	fs.String("gcs-secret-key", "", "Cloud Storage HMAC secret")
	fs.Bool("gcs-insecure", false, "Use plain HTTP for the Cloud Storage endpoint")
	fs.String("azure-account-key", "", "Azure storage account key")
	fs.String("azure-connection-string", "", "Azure storage connection string")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", defaultConcurrency)
	v.SetDefault("part_concurrency", 0)
	v.SetDefault("buffer_size", defaultBufferSize)
	v.SetDefault("checksum", false)
	v.SetDefault("no_metadata", false)
	v.SetDefault("tui", false)
	v.SetDefault("state.dir", defaultStateDir())
	v.SetDefault("state.engine", "bolt")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("gcs.endpoint", provider.DefaultGCSEndpoint)
	v.SetDefault("gcs.access_key", "")
	v.SetDefault("gcs.secret_key", "")
	v.SetDefault("gcs.insecure", false)
	v.SetDefault("azure.account_key", "")
	v.SetDefault("azure.connection_string", "")
}

// defaultStateDir returns ~/.local/state/skycp, or a relative directory
// when there is no home.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skycp-state"
	}
	return filepath.Join(home, ".local", "state", "skycp")
}

// defaultConfigDir returns the directory searched for config.yaml.
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "skycp")
}

// Load resolves the configuration. flags must come from Flags and be
// parsed already; it may be nil to read only defaults, file and env.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFile string
	if flags != nil {
		configFile, _ = flags.GetString("config")
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency)
	}
	if c.PartConcurrency < 0 {
		return fmt.Errorf("part concurrency must be >= 0, got %d", c.PartConcurrency)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must be >= 0, got %d", c.BufferSize)
	}
	switch c.State.Engine {
	case "bolt", "badger":
	default:
		return fmt.Errorf("unknown state engine %q", c.State.Engine)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// StatePath is the journal location inside the state directory.
func (c *Config) StatePath() string {
	if c.State.Engine == "badger" {
		return filepath.Join(c.State.Dir, "journal.badger")
	}
	return filepath.Join(c.State.Dir, "state.db")
}

// ProviderOptions maps backend settings onto provider options.
func (c *Config) ProviderOptions() provider.Options {
	return provider.Options{
		S3: provider.S3Options{
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			PathStyle:       c.S3.PathStyle,
			PartConcurrency: c.PartConcurrency,
		},
		GCS: provider.GCSOptions{
			Endpoint:  c.GCS.Endpoint,
			AccessKey: c.GCS.AccessKey,
			SecretKey: c.GCS.SecretKey,
			Insecure:  c.GCS.Insecure,
		},
		Azure: provider.AzureOptions{
			AccountKey:       c.Azure.AccountKey,
			ConnectionString: c.Azure.ConnectionString,
			BlockConcurrency: c.PartConcurrency,
		},
	}
}

// EngineOptions maps transfer settings onto orchestrator options.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.Options{
		Concurrency: c.Concurrency,
		BufferSize:  c.BufferSize,
		Checksum:    c.Checksum,
	}
	if !c.NoMetadata {
		opts.Metadata = provider.MetadataPolicy{Mode: true, ModTime: true}
	}
	return opts
}
