// Package config loads the host configuration from flags, the environment,
// a .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/transport"
)

const (
	EnvPrefix = "EMA"

	TransportSDK       = "sdk"
	TransportWebsocket = "websocket"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

var ErrMissingAPIKey = errors.New("API key not configured: set GEMINI_API_KEY or pass --api-key")

type Config struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	Voice             string `mapstructure:"voice"`
	Transport         string `mapstructure:"transport"`
	Endpoint          string `mapstructure:"endpoint"`
	AudioBackend      string `mapstructure:"audio_backend"`
	SystemInstruction string `mapstructure:"system_instruction"`
	FrameSize         int    `mapstructure:"frame_size"`
}

func DefaultConfig() Config {
	return Config{
		Model:        transport.DefaultModel,
		Voice:        transport.DefaultVoice,
		Transport:    TransportSDK,
		AudioBackend: AudioBackendMiniaudio,
		FrameSize:    capture.DefaultFrameSize,
	}
}

// NewViper returns a viper instance with defaults and environment bindings.
// The API key is also read from GEMINI_API_KEY and API_KEY.
func NewViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("api_key", defaults.APIKey)
	v.SetDefault("model", defaults.Model)
	v.SetDefault("voice", defaults.Voice)
	v.SetDefault("transport", defaults.Transport)
	v.SetDefault("endpoint", defaults.Endpoint)
	v.SetDefault("audio_backend", defaults.AudioBackend)
	v.SetDefault("system_instruction", defaults.SystemInstruction)
	v.SetDefault("frame_size", defaults.FrameSize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "GEMINI_API_KEY", "API_KEY")

	return v
}

// LoadDotEnv loads the given .env files, or ./.env when none are given.
// Missing files are ignored and existing variables are never overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads configFile, or config.yaml from the user config directory or
// the working directory when configFile is empty, and merges it under the
// environment and any flags already bound to v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Dir is where the config file is looked up by default.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "ema-live"), nil
}

func (c Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = errors.Join(errs, ErrMissingAPIKey)
	}
	switch c.Transport {
	case TransportSDK, TransportWebsocket:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	switch c.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown audio backend %q", c.AudioBackend))
	}
	if c.FrameSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("frame size must be positive, got %d", c.FrameSize))
	}
	return errs
}

// TransportConfig is the engine configuration requested on every start.
func (c Config) TransportConfig() transport.Config {
	config := transport.DefaultConfig()
	if c.Model != "" {
		config.Model = c.Model
	}
	if c.Voice != "" {
		config.Voice = c.Voice
	}
	config.SystemInstruction = c.SystemInstruction
	return config
}
