// Package config loads halo's TOML settings and watches them for changes.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"halo/transcriber"
	"halo/visualizer"
)

const (
	EnvCredential = "GEMINI_API_KEY"
	EnvModel      = "HALO_MODEL"

	maxFPS = 120
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Transcription TranscriptionConfig `toml:"transcription"`
	Visualizer    VisualizerConfig    `toml:"visualizer"`
	Audio         AudioConfig         `toml:"audio"`
}

type TranscriptionConfig struct {
	Credential        string `toml:"credential"`
	Model             string `toml:"model"`
	SystemInstruction string `toml:"system_instruction"`
	Endpoint          string `toml:"endpoint"`
	QueueSize         int    `toml:"queue_size"`
}

type VisualizerConfig struct {
	FPS int `toml:"fps"`
}

type AudioConfig struct {
	Device string `toml:"device"`
}

func Default() *Config {
	return &Config{
		Transcription: TranscriptionConfig{
			Model:             transcriber.DefaultModel,
			SystemInstruction: transcriber.DefaultSystemInstruction,
			Endpoint:          transcriber.DefaultEndpoint,
		},
		Visualizer: VisualizerConfig{FPS: visualizer.DefaultFPS},
	}
}

// Path returns the default config location, $XDG_CONFIG_HOME/halo/config.toml
// on linux.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "halo", "config.toml"), nil
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills the credential from GEMINI_API_KEY when the file has none
// and lets HALO_MODEL override the model.
func (c *Config) applyEnv() {
	if c.Transcription.Credential == "" {
		c.Transcription.Credential = strings.TrimSpace(os.Getenv(EnvCredential))
	}
	if m := strings.TrimSpace(os.Getenv(EnvModel)); m != "" {
		c.Transcription.Model = m
	}
}

func (c *Config) Validate() error {
	t := c.Transcription
	if t.Model == "" {
		return fmt.Errorf("%w: transcription.model is required", ErrInvalid)
	}
	if !strings.HasPrefix(t.Model, "models/") {
		return fmt.Errorf("%w: transcription.model %q must start with models/", ErrInvalid, t.Model)
	}
	u, err := url.Parse(t.Endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: transcription.endpoint %q must be a ws:// or wss:// URL", ErrInvalid, t.Endpoint)
	}
	if t.QueueSize < 0 {
		return fmt.Errorf("%w: transcription.queue_size must not be negative", ErrInvalid)
	}
	if f := c.Visualizer.FPS; f < 1 || f > maxFPS {
		return fmt.Errorf("%w: visualizer.fps %d out of range 1-%d", ErrInvalid, f, maxFPS)
	}
	return nil
}

func (c *Config) TranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Model:             c.Transcription.Model,
		SystemInstruction: c.Transcription.SystemInstruction,
		Endpoint:          c.Transcription.Endpoint,
		QueueSize:         c.Transcription.QueueSize,
	}
}

// MaskedCredential shows only the last four characters.
func (c *Config) MaskedCredential() string {
	cred := c.Transcription.Credential
	switch {
	case cred == "":
		return "(not set)"
	case len(cred) <= 4:
		return strings.Repeat("*", len(cred))
	}
	return strings.Repeat("*", len(cred)-4) + cred[len(cred)-4:]
}

const defaultContent = `# halo configuration
# Changes to the credential are applied while halo is running.

[transcription]
  credential = ""             # Gemini API key (or set GEMINI_API_KEY)
  model = "%s"
  system_instruction = "%s"
  endpoint = "%s"
  queue_size = 0              # audio frames buffered before dropping (0 = default)

[visualizer]
  fps = %d

[audio]
  device = ""                 # capture device name (empty = system default)
`

// WriteDefault creates path with the default settings. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, defaultContent,
		transcriber.DefaultModel, transcriber.DefaultSystemInstruction,
		transcriber.DefaultEndpoint, visualizer.DefaultFPS)
	return err
}
