// Package config loads radioedit settings from defaults, an optional YAML
// file and RADIOEDIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// RADIOEDIT_SERVER_ADDR or RADIOEDIT_WORKERS.
const EnvPrefix = "RADIOEDIT"

// Config is the full runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Workers int           `mapstructure:"workers"`
	Dirs    DirsConfig    `mapstructure:"dirs"`
	Output  OutputConfig  `mapstructure:"output"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Jingles JinglesConfig `mapstructure:"jingles"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	// SubmitRate is the sustained number of submissions and uploads
	// accepted per second; SubmitBurst is the bucket size.
	SubmitRate  float64 `mapstructure:"submit_rate"`
	SubmitBurst int     `mapstructure:"submit_burst"`
}

type DirsConfig struct {
	Inputs  string `mapstructure:"inputs"`
	Outputs string `mapstructure:"outputs"`
	Jingles string `mapstructure:"jingles"`
	State   string `mapstructure:"state"`
}

type OutputConfig struct {
	Format   string  `mapstructure:"format"`
	Bitrate  string  `mapstructure:"bitrate"`
	Headroom float64 `mapstructure:"headroom"`
}

type FFmpegConfig struct {
	Path string `mapstructure:"path"`
}

type JinglesConfig struct {
	// Seed pins random jingle selection; 0 means seed from the OS.
	Seed uint64 `mapstructure:"seed"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_upload_bytes", int64(1<<30))
	v.SetDefault("server.submit_rate", 5.0)
	v.SetDefault("server.submit_burst", 20)

	v.SetDefault("workers", 2)

	v.SetDefault("dirs.inputs", "uploads")
	v.SetDefault("dirs.outputs", "edited")
	v.SetDefault("dirs.jingles", "jingles")
	v.SetDefault("dirs.state", "")

	v.SetDefault("output.format", "mp3")
	v.SetDefault("output.bitrate", "192k")
	v.SetDefault("output.headroom", 1.0)

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("jingles.seed", uint64(0))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path (optional) on top of defaults and the
// environment.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch c.Output.Format {
	case "wav", "mp3", "flac":
	default:
		errs = append(errs, fmt.Errorf("output.format must be wav, mp3 or flac, got %q", c.Output.Format))
	}
	if c.Output.Headroom <= 0 || c.Output.Headroom > 1 {
		errs = append(errs, fmt.Errorf("output.headroom must be in (0, 1], got %g", c.Output.Headroom))
	}
	for key, dir := range map[string]string{
		"dirs.inputs":  c.Dirs.Inputs,
		"dirs.outputs": c.Dirs.Outputs,
		"dirs.jingles": c.Dirs.Jingles,
	} {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
