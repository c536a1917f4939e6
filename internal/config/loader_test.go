package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  log_level: debug
  metrics_addr: ":9090"
live:
  api_key: test-key
  model: custom-live-model
  voice: Kore
  system_instruction: Be brief.
  location: Porto, Portugal
  persona: Dry wit.
audio:
  phone_filter: true
  noise_gain: 0.05
capabilities:
  openai_api_key: oa-key
  tavily_api_key: tv-key
  gemini_api_key: gm-key
  reasoner:
    provider: anthropic
    model: claude-test
    api_key: an-key
  postgres_dsn: postgres://localhost/omni
mcp:
  servers:
    - name: home
      transport: stdio
      command: /usr/bin/mcp-home
    - name: remote
      transport: http
      url: https://example.com/mcp
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Live.APIKey != "test-key" || cfg.Live.Voice != "Kore" {
		t.Errorf("live = %+v", cfg.Live)
	}
	if cfg.Live.Model != "custom-live-model" {
		t.Errorf("model = %q", cfg.Live.Model)
	}
	if !cfg.Audio.PhoneFilter || cfg.Audio.NoiseGain != 0.05 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Capabilities.Reasoner.Provider != "anthropic" {
		t.Errorf("reasoner = %+v", cfg.Capabilities.Reasoner)
	}
	if len(cfg.MCP.Servers) != 2 {
		t.Fatalf("mcp servers = %d, want 2", len(cfg.MCP.Servers))
	}
	if cfg.MCP.Servers[0].Transport != "stdio" || cfg.MCP.Servers[1].URL != "https://example.com/mcp" {
		t.Errorf("mcp servers = %+v", cfg.MCP.Servers)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
live:
  api_key: k
  vioce: Puck
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestLoadFromReader_MalformedYAML(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader(":\n  - not yaml")); err == nil {
		t.Fatal("malformed YAML accepted")
	}
}

func TestValidate_RequiresAPIKey(t *testing.T) {
	err := Validate(&Config{})
	if err == nil || !strings.Contains(err.Error(), "live.api_key is required") {
		t.Errorf("err = %v, want an api_key error", err)
	}
}

func TestValidate_RejectsUnknownVoice(t *testing.T) {
	cfg := &Config{}
	cfg.Live.APIKey = "k"
	cfg.Live.Voice = "Gandalf"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "live.voice") {
		t.Errorf("err = %v, want a voice error", err)
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Live.APIKey = "k"
	cfg.Server.LogLevel = "verbose"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.log_level") {
		t.Errorf("err = %v, want a log level error", err)
	}
}

func TestValidate_NoiseGainRange(t *testing.T) {
	for _, g := range []float64{-0.1, 1.5} {
		cfg := &Config{}
		cfg.Live.APIKey = "k"
		cfg.Audio.NoiseGain = g

		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), "audio.noise_gain") {
			t.Errorf("gain %v: err = %v, want a range error", g, err)
		}
	}

	// Boundary values are fine.
	for _, g := range []float64{0, 1} {
		cfg := &Config{}
		cfg.Live.APIKey = "k"
		cfg.Audio.NoiseGain = g
		if err := Validate(cfg); err != nil {
			t.Errorf("gain %v rejected: %v", g, err)
		}
	}
}

func TestValidate_Reasoner(t *testing.T) {
	cfg := &Config{}
	cfg.Live.APIKey = "k"
	cfg.Capabilities.Reasoner.Provider = "cohere"
	cfg.Capabilities.Reasoner.Model = "m"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "reasoner.provider") {
		t.Errorf("err = %v, want a provider error", err)
	}

	// Provider without model.
	cfg.Capabilities.Reasoner.Provider = "openai"
	cfg.Capabilities.Reasoner.Model = ""
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "reasoner.model") {
		t.Errorf("err = %v, want a model error", err)
	}

	// No reasoner configured at all is fine.
	cfg.Capabilities.Reasoner.Provider = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("empty reasoner rejected: %v", err)
	}
}

func TestValidate_MCPServers(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Live.APIKey = "k"
		return cfg
	}

	cfg := base()
	cfg.MCP.Servers = []MCPServerConfig{{Name: "s", Transport: "grpc"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "transport") {
		t.Errorf("err = %v, want a transport error", err)
	}

	cfg = base()
	cfg.MCP.Servers = []MCPServerConfig{{Name: "s", Transport: "stdio"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Errorf("err = %v, want a command error", err)
	}

	cfg = base()
	cfg.MCP.Servers = []MCPServerConfig{{Name: "s", Transport: "http"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "url is required") {
		t.Errorf("err = %v, want a url error", err)
	}

	cfg = base()
	cfg.MCP.Servers = []MCPServerConfig{{Transport: "stdio", Command: "cmd"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Errorf("err = %v, want a name error", err)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Live.Voice = "Nobody"
	cfg.Audio.NoiseGain = 7

	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"server.log_level", "live.api_key", "live.voice", "audio.noise_gain"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}
