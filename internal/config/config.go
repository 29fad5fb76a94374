// Package config loads the recorder configuration from JSON or YAML. Every
// field is optional; the Get* accessors return the documented default for
// anything left unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/quality"
	"github.com/banshee-data/signal.recorder/internal/recording"
	"github.com/banshee-data/signal.recorder/internal/serialport"
	"github.com/banshee-data/signal.recorder/internal/source"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults for fields that are not set.
const (
	DefaultReadTimeout     = 100 * time.Millisecond
	DefaultIdleSleep       = 10 * time.Millisecond
	DefaultSegmentDuration = 10 * time.Minute
	DefaultRecordingFormat = "csv"
	DefaultRecordingDir    = "recordings"
	DefaultSourceKind      = "fake"
	DefaultSocketHost      = "0.0.0.0"
	DefaultSocketPort      = 8080
	DefaultFakeWaveform    = "sine"
	DefaultFakeMin         = -10.0
	DefaultFakeMax         = 10.0
	DefaultFakeChannels    = 8
)

// Config is the root configuration.
type Config struct {
	DisplayBufferSize   *int     `json:"display_buffer_size,omitempty" yaml:"display_buffer_size,omitempty"`
	QualityBufferSize   *int     `json:"quality_buffer_size,omitempty" yaml:"quality_buffer_size,omitempty"`
	RecordingBufferSize *int     `json:"recording_buffer_size,omitempty" yaml:"recording_buffer_size,omitempty"`
	QualityMinSamples   *int     `json:"quality_min_samples,omitempty" yaml:"quality_min_samples,omitempty"`
	QualityMaxStdDev    *float64 `json:"quality_max_std_dev,omitempty" yaml:"quality_max_std_dev,omitempty"`
	QualityMaxMean      *float64 `json:"quality_max_mean,omitempty" yaml:"quality_max_mean,omitempty"`

	ReadTimeout        *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`                 // duration string like "100ms"
	RecordingIdleSleep *string `json:"recording_idle_sleep,omitempty" yaml:"recording_idle_sleep,omitempty"` // duration string like "10ms"

	RecordingDirectory *string `json:"recording_directory,omitempty" yaml:"recording_directory,omitempty"`
	RecordingFormat    *string `json:"recording_format,omitempty" yaml:"recording_format,omitempty"`
	SegmentDuration    *string `json:"segment_duration,omitempty" yaml:"segment_duration,omitempty"` // "0" disables rotation
	CatalogPath        *string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty"`         // empty disables the catalog

	Source *SourceConfig `json:"source,omitempty" yaml:"source,omitempty"`
}

// SourceConfig selects the data source.
type SourceConfig struct {
	Kind   string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Serial *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	Socket *SocketConfig `json:"socket,omitempty" yaml:"socket,omitempty"`
	Fake   *FakeConfig   `json:"fake,omitempty" yaml:"fake,omitempty"`
}

// SerialConfig describes the serial port.
type SerialConfig struct {
	Port                   string `json:"port" yaml:"port"`
	serialport.PortOptions `yaml:",inline"`
}

// SocketConfig describes the TCP listener.
type SocketConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// FakeConfig describes the synthetic generator.
type FakeConfig struct {
	Waveform  string   `json:"waveform,omitempty" yaml:"waveform,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Frequency float64  `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Channels  int      `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a configuration file. The extension selects the parser:
// .json, .yaml or .yml. Fields omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	for name, v := range map[string]*int{
		"display_buffer_size":   c.DisplayBufferSize,
		"quality_buffer_size":   c.QualityBufferSize,
		"recording_buffer_size": c.RecordingBufferSize,
		"quality_min_samples":   c.QualityMinSamples,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.QualityMaxStdDev != nil && *c.QualityMaxStdDev < 0 {
		return fmt.Errorf("quality_max_std_dev must be non-negative, got %f", *c.QualityMaxStdDev)
	}

	for name, v := range map[string]*string{
		"read_timeout":         c.ReadTimeout,
		"recording_idle_sleep": c.RecordingIdleSleep,
		"segment_duration":     c.SegmentDuration,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.RecordingFormat != nil && *c.RecordingFormat != "" {
		if _, err := recording.ParseFormat(*c.RecordingFormat); err != nil {
			return err
		}
	}

	if s := c.Source; s != nil {
		if s.Kind != "" {
			if _, err := source.ParseKind(s.Kind); err != nil {
				return err
			}
		}
		if s.Serial != nil {
			if _, err := s.Serial.PortOptions.Normalize(); err != nil {
				return fmt.Errorf("serial: %w", err)
			}
		}
		if s.Socket != nil && (s.Socket.Port < 0 || s.Socket.Port > 65535) {
			return fmt.Errorf("socket port out of range: %d", s.Socket.Port)
		}
		if f := s.Fake; f != nil {
			if f.Channels < 0 || f.Channels > 8 {
				return fmt.Errorf("fake channels must be between 1 and 8, got %d", f.Channels)
			}
			if f.Frequency < 0 {
				return fmt.Errorf("fake frequency must be non-negative, got %f", f.Frequency)
			}
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				return fmt.Errorf("fake min %f exceeds max %f", *f.Min, *f.Max)
			}
		}
	}
	return nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetDisplayBufferSize returns the display buffer capacity.
func (c *Config) GetDisplayBufferSize() int {
	return intOr(c.DisplayBufferSize, buffer.DefaultDisplaySize)
}

// GetQualityBufferSize returns the quality window capacity.
func (c *Config) GetQualityBufferSize() int {
	return intOr(c.QualityBufferSize, buffer.DefaultQualitySize)
}

// GetRecordingBufferSize returns the recording buffer capacity.
func (c *Config) GetRecordingBufferSize() int {
	return intOr(c.RecordingBufferSize, buffer.DefaultRecordingSize)
}

// GetQualityThresholds returns the quality monitor thresholds.
func (c *Config) GetQualityThresholds() quality.Thresholds {
	return quality.Thresholds{
		MinSamples: intOr(c.QualityMinSamples, quality.DefaultMinSamples),
		MaxStdDev:  floatOr(c.QualityMaxStdDev, quality.DefaultMaxStdDev),
		MaxMean:    floatOr(c.QualityMaxMean, quality.DefaultMaxMean),
	}
}

// GetReadTimeout returns the source read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, DefaultReadTimeout)
}

// GetRecordingIdleSleep returns the recorder idle wait.
func (c *Config) GetRecordingIdleSleep() time.Duration {
	return durationOr(c.RecordingIdleSleep, DefaultIdleSleep)
}

// GetRecordingDirectory returns the output directory.
func (c *Config) GetRecordingDirectory() string {
	return stringOr(c.RecordingDirectory, DefaultRecordingDir)
}

// GetRecordingFormat returns the output format name.
func (c *Config) GetRecordingFormat() string {
	return stringOr(c.RecordingFormat, DefaultRecordingFormat)
}

// GetSegmentDuration returns the rotation period; zero disables rotation.
func (c *Config) GetSegmentDuration() time.Duration {
	return durationOr(c.SegmentDuration, DefaultSegmentDuration)
}

// GetCatalogPath returns the sqlite catalog path, or "" when disabled.
func (c *Config) GetCatalogPath() string {
	if c.CatalogPath == nil {
		return ""
	}
	return *c.CatalogPath
}

// GetSource builds the source configuration with defaults applied.
func (c *Config) GetSource() source.Config {
	sc := c.Source
	if sc == nil {
		sc = &SourceConfig{}
	}
	timeout := c.GetReadTimeout()

	kind, err := source.ParseKind(sc.Kind)
	if err != nil {
		kind = source.Kind(DefaultSourceKind)
	}
	out := source.Config{Kind: kind}

	if sc.Serial != nil {
		out.Serial = source.SerialConfig{Port: sc.Serial.Port, Options: sc.Serial.PortOptions}
	}
	out.Serial.ReadTimeout = timeout

	out.Socket = source.SocketConfig{Host: DefaultSocketHost, Port: DefaultSocketPort, ReadTimeout: timeout}
	if sc.Socket != nil {
		if sc.Socket.Host != "" {
			out.Socket.Host = sc.Socket.Host
		}
		if sc.Socket.Port != 0 {
			out.Socket.Port = sc.Socket.Port
		}
	}

	out.Fake = source.FakeConfig{
		Waveform:  DefaultFakeWaveform,
		Min:       DefaultFakeMin,
		Max:       DefaultFakeMax,
		Frequency: source.DefaultFakeFrequency,
		Channels:  DefaultFakeChannels,
	}
	if f := sc.Fake; f != nil {
		if f.Waveform != "" {
			out.Fake.Waveform = f.Waveform
		}
		out.Fake.Min = floatOr(f.Min, out.Fake.Min)
		out.Fake.Max = floatOr(f.Max, out.Fake.Max)
		if f.Frequency > 0 {
			out.Fake.Frequency = f.Frequency
		}
		if f.Channels > 0 {
			out.Fake.Channels = f.Channels
		}
	}
	return out
}
