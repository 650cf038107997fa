// Package config loads and saves the murmur configuration file.
//
// The file is YAML at the platform config path. Loading never validates the
// model path; that happens lazily when a session starts, so the tool can run
// `setup` before any model exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/murmurvoice/murmur/internal/platform"
	"github.com/murmurvoice/murmur/internal/whisper"
)

// FileName is the config file name inside the platform config directory.
const FileName = "config.yaml"

// Config is the persisted application configuration.
type Config struct {
	Whisper   WhisperConfig   `yaml:"whisper"`
	Audio     AudioConfig     `yaml:"audio"`
	Behaviour BehaviourConfig `yaml:"behaviour"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WhisperConfig selects the model and decode language.
type WhisperConfig struct {
	// Model is a registry name (tiny|base|small|medium|large-v3) or a path
	// to a ggml model file.
	Model string `yaml:"model"`
	// ModelDir overrides where named models are stored; empty means the
	// platform data directory.
	ModelDir string `yaml:"model_dir,omitempty"`
	// Language is an ISO 639-1 code, or "auto".
	Language string `yaml:"language"`
}

// AudioConfig selects the capture device and stream parameters.
type AudioConfig struct {
	// Device selects an input device by name; empty means default.
	Device string `yaml:"device,omitempty"`
	// SampleRate requested from the device; 0 means 48000.
	SampleRate uint32 `yaml:"sample_rate,omitempty"`
	// SilenceGate skips transcription of near-silent recordings.
	SilenceGate bool `yaml:"silence_gate"`
	// SilenceThresholdDBFS is the RMS gate threshold.
	SilenceThresholdDBFS float64 `yaml:"silence_threshold_dbfs"`
}

// BehaviourConfig controls transcript delivery.
type BehaviourConfig struct {
	AutoCopy  bool `yaml:"auto_copy"`
	AutoPaste bool `yaml:"auto_paste"`
	Notify    bool `yaml:"notify"`
}

// LoggingConfig mirrors the logging package options.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		Whisper: WhisperConfig{
			Model:    whisper.DefaultModel,
			Language: "auto",
		},
		Audio: AudioConfig{
			SilenceGate:          true,
			SilenceThresholdDBFS: -65,
		},
		Behaviour: BehaviourConfig{
			AutoCopy: true,
		},
	}
}

// DefaultPath returns the platform config file path.
func DefaultPath() (string, error) {
	dir, err := platform.ResolveConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config at path, creating the default file when absent.
func Load(path string, logger *zap.Logger) (Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, fmt.Errorf("create default config: %w", err)
		}
		logger.Info("created default config", zap.String("path", path))
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	logger.Debug("configuration loaded", zap.String("path", path))
	return cfg, nil
}

// Save writes cfg to path atomically (temp file plus rename).
func Save(path string, cfg Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
