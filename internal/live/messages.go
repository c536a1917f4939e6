package live

import "encoding/json"

// Wire message types for the BidiGenerateContent protocol. Outgoing messages
// are written as JSON text frames; incoming frames unmarshal into
// serverMessage with exactly one branch set.

// ── Outgoing ──────────────────────────────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	Tools             []wireTool         `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type wireTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ── Incoming ──────────────────────────────────────────────────────────────────

type serverMessage struct {
	SetupComplete        *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent        *serverContent   `json:"serverContent,omitempty"`
	ToolCall             *toolCallMsg     `json:"toolCall,omitempty"`
	ToolCallCancellation *json.RawMessage `json:"toolCallCancellation,omitempty"`
	Error                *serviceError    `json:"error,omitempty"`
}

type serviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMsg struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}
