// Package config provides the configuration schema, YAML loader, and file
// watcher for the Omni live voice engine.
package config

// LogLevel controls log verbosity for the Omni process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Omni.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Live         LiveConfig         `yaml:"live"`
	Audio        AudioConfig        `yaml:"audio"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	MCP          MCPConfig          `yaml:"mcp"`
}

// ServerConfig holds logging and telemetry settings for the Omni process.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving Prometheus /metrics
	// (e.g., ":9090"). Empty disables the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LiveConfig configures the connection to the remote conversational model
// service.
type LiveConfig struct {
	// APIKey authenticates against the live service. Required.
	APIKey string `yaml:"api_key"`

	// Model overrides the default live model name.
	Model string `yaml:"model"`

	// Voice selects the prebuilt voice identity. Empty uses the default.
	Voice string `yaml:"voice"`

	// SystemInstruction is the base system prompt.
	SystemInstruction string `yaml:"system_instruction"`

	// Location, when set, is woven into the system instruction as the user's
	// current whereabouts.
	Location string `yaml:"location"`

	// Persona, when set, is an additional character directive appended to
	// the system instruction.
	Persona string `yaml:"persona"`
}

// AudioConfig configures the playback effect chain.
type AudioConfig struct {
	// PhoneFilter enables the telephone-quality degradation chain on played
	// model audio.
	PhoneFilter bool `yaml:"phone_filter"`

	// NoiseGain is the mix level of the background-noise bed in (0, 1].
	// Zero disables the bed.
	NoiseGain float64 `yaml:"noise_gain"`
}

// CapabilitiesConfig configures the collaborators backing the built-in
// capabilities. Leaving a block empty disables the corresponding
// capabilities — they remain declared and fail soft with an explanation.
type CapabilitiesConfig struct {
	// OpenAIAPIKey enables image generation and editing.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// ImageModel overrides the default image model.
	ImageModel string `yaml:"image_model"`

	// TavilyAPIKey enables web search.
	TavilyAPIKey string `yaml:"tavily_api_key"`

	// GeminiAPIKey enables image analysis (camera and stored images).
	GeminiAPIKey string `yaml:"gemini_api_key"`

	// VisionModel overrides the default vision model.
	VisionModel string `yaml:"vision_model"`

	// Reasoner configures the deliberate-reasoning backend.
	Reasoner ReasonerConfig `yaml:"reasoner"`

	// PostgresDSN enables the conversation message store.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ReasonerConfig selects the text-model backend used for deep reasoning.
type ReasonerConfig struct {
	// Provider is one of: openai, anthropic, gemini, ollama.
	Provider string `yaml:"provider"`

	// Model is the model name within the provider.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. When empty the provider's
	// conventional environment variable is used.
	APIKey string `yaml:"api_key"`
}

// MCPConfig lists external MCP servers whose tools are imported as
// capabilities.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	// Name is the unique identifier for this server.
	Name string `yaml:"name"`

	// Transport is "stdio" or "http".
	Transport string `yaml:"transport"`

	// Command is the executable plus arguments for stdio servers.
	Command string `yaml:"command"`

	// URL is the endpoint for http servers.
	URL string `yaml:"url"`

	// Env holds extra environment variables for stdio servers.
	Env map[string]string `yaml:"env"`
}
