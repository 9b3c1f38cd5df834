// Package config loads service settings from defaults, an optional YAML
// file and PDFTOOLS_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wudi/pdftools/observability"
)

const EnvPrefix = "PDFTOOLS"

type Config struct {
	Server  ServerConfig                `mapstructure:"server" yaml:"server"`
	Storage StorageConfig               `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig                   `mapstructure:"log" yaml:"log"`
	Tracing observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	OCR     OCRConfig                   `mapstructure:"ocr" yaml:"ocr"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	RateLimit    float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

type StorageConfig struct {
	UploadDir     string        `mapstructure:"upload_dir" yaml:"upload_dir"`
	OutputDir     string        `mapstructure:"output_dir" yaml:"output_dir"`
	DeleteAfter   time.Duration `mapstructure:"delete_after" yaml:"delete_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	MaxAge        time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type OCRConfig struct {
	DefaultLanguage string `mapstructure:"default_language" yaml:"default_language"`
	// TessdataPrefix overrides where Tesseract looks for trained data.
	TessdataPrefix string `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			MaxUploadMB:  100,
			RateLimit:    20,
			RateBurst:    40,
		},
		Storage: StorageConfig{
			UploadDir:     "uploads",
			OutputDir:     "processed",
			DeleteAfter:   300 * time.Second,
			SweepInterval: 5 * time.Minute,
			MaxAge:        30 * time.Minute,
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Tracing: observability.TracingConfig{Exporter: "stdout", SampleRate: 1, ServiceName: "pdftools"},
		OCR:     OCRConfig{DefaultLanguage: "eng"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("storage.upload_dir", d.Storage.UploadDir)
	v.SetDefault("storage.output_dir", d.Storage.OutputDir)
	v.SetDefault("storage.delete_after", d.Storage.DeleteAfter)
	v.SetDefault("storage.sweep_interval", d.Storage.SweepInterval)
	v.SetDefault("storage.max_age", d.Storage.MaxAge)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("ocr.default_language", d.OCR.DefaultLanguage)
	v.SetDefault("ocr.tessdata_prefix", d.OCR.TessdataPrefix)
}

// Loader reads the configuration and can watch its file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader for path; an empty path means defaults and
// environment only.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	return &Loader{v: v}
}

// Load reads the file, if any, and returns the validated configuration.
func (l *Loader) Load() (*Config, error) {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", l.v.ConfigFileUsed(), err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the reloaded configuration whenever the file
// is written. Reloads that fail validation go to onError and are otherwise
// ignored. Without a file Watch does nothing.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("server.rate_burst must be at least 1, got %d", c.Server.RateBurst))
	}
	if c.Storage.UploadDir == "" || c.Storage.OutputDir == "" {
		errs = append(errs, errors.New("storage.upload_dir and storage.output_dir are required"))
	} else if c.Storage.UploadDir == c.Storage.OutputDir {
		errs = append(errs, errors.New("storage.upload_dir and storage.output_dir must differ"))
	}
	if c.Storage.DeleteAfter <= 0 {
		errs = append(errs, errors.New("storage.delete_after must be positive"))
	}
	if c.Storage.MaxAge < c.Storage.DeleteAfter {
		errs = append(errs, errors.New("storage.max_age must not be shorter than storage.delete_after"))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// MaxUploadBytes is the request body limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return c.Server.MaxUploadMB << 20 }

// WriteYAML writes c as a config file.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}
