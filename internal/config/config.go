// Package config loads the supervisor's pipeline and stream configuration
// from YAML with environment-variable overrides, following the teacher's
// layered koanf approach in internal/config/config.go and koanf.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// ConfigFilePath is the default location the process looks for a config
// file when none is given on the command line.
const ConfigFilePath = "/etc/dslsupervisor/config.yaml"

// PipelineConfig is the external pipeline configuration surface (spec
// §6.3): name, enable_watchdog, watchdog_timeout, max_streams,
// enable_metrics, metrics_interval.
type PipelineConfig struct {
	Name            string        `yaml:"name" koanf:"name"`
	EnableWatchdog  bool          `yaml:"enable_watchdog" koanf:"enable_watchdog"`
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout" koanf:"watchdog_timeout"`
	MaxStreams      int           `yaml:"max_streams" koanf:"max_streams"`
	EnableMetrics   bool          `yaml:"enable_metrics" koanf:"enable_metrics"`
	MetricsInterval time.Duration `yaml:"metrics_interval" koanf:"metrics_interval"`
	HealthAddr      string        `yaml:"health_addr" koanf:"health_addr"`
}

// StreamConfig is the per-stream registration configuration surface (spec
// §6.4): name, buffer_size, max_latency, enable_isolation, queue_properties.
type StreamConfig struct {
	BufferSize      int           `yaml:"buffer_size" koanf:"buffer_size"`
	MaxLatency      time.Duration `yaml:"max_latency" koanf:"max_latency"`
	EnableIsolation bool          `yaml:"enable_isolation" koanf:"enable_isolation"`
	QueueProperties QueueConfig   `yaml:"queue_properties" koanf:"queue_properties"`
}

// QueueConfig mirrors internal/stream.QueueConfig for (de)serialization; it
// is translated into stream.QueueConfig by the caller rather than importing
// internal/stream directly, keeping config free of a dependency on the
// supervision core's runtime types.
type QueueConfig struct {
	MaxSizeBuffers      int           `yaml:"max_size_buffers" koanf:"max_size_buffers"`
	MaxSizeBytes        uint64        `yaml:"max_size_bytes" koanf:"max_size_bytes"`
	MaxSizeTime         time.Duration `yaml:"max_size_time" koanf:"max_size_time"`
	MinThresholdBuffers int           `yaml:"min_threshold_buffers" koanf:"min_threshold_buffers"`
	Leaky               bool          `yaml:"leaky" koanf:"leaky"`
}

// Config is the root file-backed configuration: the pipeline-wide settings
// plus a default stream template and named per-stream overrides, the same
// shape as the teacher's Config{Devices, Default, Stream, ...} but re-keyed
// to this domain's streams instead of audio devices.
type Config struct {
	Pipeline PipelineConfig          `yaml:"pipeline" koanf:"pipeline"`
	Default  StreamConfig            `yaml:"default" koanf:"default"`
	Streams  map[string]StreamConfig `yaml:"streams" koanf:"streams"`
}

// DefaultConfig returns a configuration with the numeric defaults recorded
// in original_source/src/core/mod.rs: max_streams=32, watchdog_timeout=10s,
// metrics_interval=1s.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Name:            "dslsupervisor",
			EnableWatchdog:  true,
			WatchdogTimeout: 10 * time.Second,
			MaxStreams:      32,
			EnableMetrics:   true,
			MetricsInterval: time.Second,
			HealthAddr:      "127.0.0.1:9998",
		},
		Default: StreamConfig{
			BufferSize:      4096,
			MaxLatency:      500 * time.Millisecond,
			EnableIsolation: true,
			QueueProperties: QueueConfig{
				MaxSizeBuffers:      200,
				MaxSizeBytes:        10 * 1024 * 1024,
				MaxSizeTime:         time.Second,
				MinThresholdBuffers: 10,
				Leaky:               true,
			},
		},
		Streams: make(map[string]StreamConfig),
	}
}

// LoadConfig reads and validates a YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetStreamConfig returns configuration for a named stream, mirroring the
// teacher's GetDeviceConfig two-stage lookup: BufferSize and MaxLatency fall
// back to the default template when zero, QueueProperties is taken whole from
// the override when any of its fields is set, and EnableIsolation is always
// taken from the override (so an override that omits it yields false).
func (c *Config) GetStreamConfig(name string) StreamConfig {
	result := c.Default

	if sc, ok := c.Streams[name]; ok {
		if sc.BufferSize != 0 {
			result.BufferSize = sc.BufferSize
		}
		if sc.MaxLatency != 0 {
			result.MaxLatency = sc.MaxLatency
		}
		result.EnableIsolation = sc.EnableIsolation
		if sc.QueueProperties != (QueueConfig{}) {
			result.QueueProperties = sc.QueueProperties
		}
	}

	return result
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Default.Validate(); err != nil {
		return fmt.Errorf("default stream config: %w", err)
	}
	for name, sc := range c.Streams {
		if err := sc.ValidatePartial(); err != nil {
			return fmt.Errorf("stream %q: %w", name, err)
		}
	}
	return nil
}

// Validate checks pipeline configuration for invalid values (spec §6's
// max_streams int>=1 constraint; the rest are sanity checks beyond what the
// spec states explicitly).
func (p *PipelineConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if p.MaxStreams < 1 {
		return fmt.Errorf("max_streams must be >= 1")
	}
	if p.EnableWatchdog && p.WatchdogTimeout <= 0 {
		return fmt.Errorf("watchdog_timeout must be positive when enable_watchdog is set")
	}
	if p.EnableMetrics && p.MetricsInterval <= 0 {
		return fmt.Errorf("metrics_interval must be positive when enable_metrics is set")
	}
	return nil
}

// Validate checks a complete stream configuration (used for Default, which
// must be fully specified).
func (s *StreamConfig) Validate() error {
	if s.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if s.MaxLatency <= 0 {
		return fmt.Errorf("max_latency must be positive")
	}
	return s.QueueProperties.Validate()
}

// ValidatePartial checks a per-stream override, allowing zero values to mean
// "inherit from Default".
func (s *StreamConfig) ValidatePartial() error {
	if s.BufferSize < 0 {
		return fmt.Errorf("buffer_size must not be negative (0 means inherit default)")
	}
	if s.MaxLatency < 0 {
		return fmt.Errorf("max_latency must not be negative (0 means inherit default)")
	}
	if s.QueueProperties == (QueueConfig{}) {
		return nil
	}
	return s.QueueProperties.Validate()
}

// Validate checks queue configuration for invalid values.
func (q *QueueConfig) Validate() error {
	if q.MaxSizeBuffers <= 0 {
		return fmt.Errorf("max_size_buffers must be positive")
	}
	if q.MinThresholdBuffers < 0 || q.MinThresholdBuffers > q.MaxSizeBuffers {
		return fmt.Errorf("min_threshold_buffers must be between 0 and max_size_buffers")
	}
	return nil
}

// Save writes cfg to path atomically: write to a temp file in the same
// directory, fsync, chmod 0640, then rename over the destination. This
// follows the teacher's atomic-write pattern in config.go's Save/saveWith.
func (c *Config) Save(path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	data, marshalErr := yaml.Marshal(c)
	if marshalErr != nil {
		tmp.Close()
		return fmt.Errorf("marshal config: %w", marshalErr)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config file: %w", err)
	}
	if err = tmp.Chmod(0640); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}
	return nil
}
