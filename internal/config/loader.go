package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kryptik-dev/omni/internal/capability/mcphub"
	"github.com/kryptik-dev/omni/internal/live"
)

// knownReasonerProviders lists the reasoner backends the reason package can
// construct. Used by [Validate].
var knownReasonerProviders = []string{"openai", "anthropic", "gemini", "ollama"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos surface at startup instead of
// silently configuring nothing.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Live service
	if cfg.Live.APIKey == "" {
		errs = append(errs, errors.New("live.api_key is required"))
	}
	if cfg.Live.Voice != "" && !live.IsVoice(cfg.Live.Voice) {
		errs = append(errs, fmt.Errorf("live.voice %q is unknown; valid values: %v", cfg.Live.Voice, live.Voices()))
	}

	// Audio
	if g := cfg.Audio.NoiseGain; g < 0 || g > 1 {
		errs = append(errs, fmt.Errorf("audio.noise_gain %.3f is out of range [0, 1]", g))
	}

	// Capability availability warnings — missing collaborators degrade, they
	// do not fail startup.
	if cfg.Capabilities.OpenAIAPIKey == "" {
		slog.Warn("capabilities.openai_api_key is empty; image generation and editing will be unavailable")
	}
	if cfg.Capabilities.TavilyAPIKey == "" {
		slog.Warn("capabilities.tavily_api_key is empty; web search will be unavailable")
	}
	if cfg.Capabilities.GeminiAPIKey == "" {
		slog.Warn("capabilities.gemini_api_key is empty; image analysis will be unavailable")
	}
	if cfg.Capabilities.PostgresDSN == "" {
		slog.Warn("capabilities.postgres_dsn is empty; the message store will be unavailable")
	}

	// Reasoner
	if p := cfg.Capabilities.Reasoner.Provider; p != "" {
		if !slices.Contains(knownReasonerProviders, p) {
			errs = append(errs, fmt.Errorf("capabilities.reasoner.provider %q is unknown; valid values: %v", p, knownReasonerProviders))
		}
		if cfg.Capabilities.Reasoner.Model == "" {
			errs = append(errs, errors.New("capabilities.reasoner.model is required when a reasoner provider is set"))
		}
	}

	// MCP servers
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		switch srv.Transport {
		case mcphub.TransportStdio:
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case mcphub.TransportStreamableHTTP:
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is http", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, http", prefix, srv.Transport))
		}
	}

	return errors.Join(errs...)
}
