// Package agentwire speaks the Deepgram Voice Agent protocol: a
// persistent WebSocket carrying JSON control events in both directions
// and raw binary PCM audio.
package agentwire

import "encoding/json"

// Inbound JSON event types.
const (
	TypeWelcome             = "Welcome"
	TypeSettingsApplied     = "SettingsApplied"
	TypeError               = "Error"
	TypeConversationText    = "ConversationText"
	TypeHistory             = "History"
	TypeFunctionCallRequest = "FunctionCallRequest"
	TypeAgentAudioDone      = "AgentAudioDone"
	TypeUserStartedSpeaking = "UserStartedSpeaking"
)

// TypeFunctionCallResponse is the outbound reply to a function call.
const TypeFunctionCallResponse = "FunctionCallResponse"

// Event is the inbound control event envelope. Only the fields the
// bridge acts on are decoded; everything else is logged raw.
type Event struct {
	Type    string         `json:"type"`
	Role    string         `json:"role,omitempty"`
	Content string         `json:"content,omitempty"`
	Funcs   []FunctionCall `json:"functions,omitempty"`
}

// FunctionCall is one agent-requested tool invocation. Arguments may be
// a JSON-encoded string or a structured object; the dispatcher
// normalizes both.
type FunctionCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	ClientSide *bool           `json:"client_side,omitempty"`
}

// Local reports whether this call should execute in this process.
// The protocol marks server-side calls with client_side=false; absent
// means local.
func (f FunctionCall) Local() bool {
	return f.ClientSide == nil || *f.ClientSide
}

// FunctionCallResponse answers a FunctionCall with a serialized result.
type FunctionCallResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Settings is the initial configuration payload. The agent applies it
// before any audio flows.
type Settings struct {
	Type  string        `json:"type"`
	Audio AudioSettings `json:"audio"`
	Agent AgentSettings `json:"agent"`
}

// AudioSettings declares both audio formats.
type AudioSettings struct {
	Input  AudioFormat `json:"input"`
	Output AudioFormat `json:"output"`
}

// AudioFormat is one direction's encoding.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

// AgentSettings configures the listen/think/speak pipeline.
type AgentSettings struct {
	Language string        `json:"language"`
	Listen   ProviderBlock `json:"listen"`
	Think    ThinkBlock    `json:"think"`
	Speak    ProviderBlock `json:"speak"`
	Greeting string        `json:"greeting,omitempty"`
}

// ProviderBlock names a listen or speak provider.
type ProviderBlock struct {
	Provider Provider `json:"provider"`
}

// ThinkBlock configures the reasoning model, its prompt and the tool
// schema the agent may call.
type ThinkBlock struct {
	Provider  Provider      `json:"provider"`
	Prompt    string        `json:"prompt"`
	Functions []FunctionDef `json:"functions,omitempty"`
}

// Provider is a model reference.
type Provider struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}
