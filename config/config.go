// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs at boot.
type Config struct {
	// HTTP
	ListenAddr string
	VoiceHost  string // public host used in the <Stream> URL
	WSScheme   string // "ws" or "wss"; derived from VoiceHost when empty

	// Deepgram agent
	DeepgramAPIKey string
	AgentURL       string
	AgentLanguage  string
	ListenModel    string
	ThinkModel     string
	SpeakModel     string
	Greeting       string
	Prompt         string

	// Call flow
	AudioBridge   bool // forward audio between the legs
	LogAgentAudio bool
	CloseOnPhrase bool
	ClosingPhrase string
	HangupDelay   time.Duration
	ToolTimeout   time.Duration

	// Twilio call control
	TwilioAccountSID string
	TwilioAuthToken  string

	// Twilio messaging (may be a separate account)
	MsgAccountSID string
	MsgAuthToken  string
	MsgFromE164   string

	LogLevel string
}

// Load reads configuration from env vars, applying defaults.
// DEEPGRAM_API_KEY is the only hard requirement.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     envOr("LISTEN_ADDR", ":8000"),
		VoiceHost:      envOr("VOICE_HOST", "localhost:8000"),
		WSScheme:       os.Getenv("WS_SCHEME"),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		AgentURL:       envOr("DG_AGENT_URL", "wss://agent.deepgram.com/v1/agent/converse"),
		AgentLanguage:  envOr("AGENT_LANGUAGE", "en"),
		ListenModel:    envOr("AGENT_STT_MODEL", "flux-general-en"),
		ThinkModel:     envOr("AGENT_THINK_MODEL", "gemini-2.5-flash"),
		SpeakModel:     envOr("AGENT_TTS_MODEL", "aura-2-odysseus-en"),
		Greeting:       envOr("AGENT_GREETING", "Hey! I am your Servizio. What would you like to order?"),
		Prompt:         envOr("AGENT_PROMPT", DefaultPrompt),

		AudioBridge:   envBool("DG_AUDIO_BRIDGE", true),
		LogAgentAudio: envBool("LOG_AGENT_AUDIO", false),
		CloseOnPhrase: envBool("CLOSE_ON_PHRASE", true),
		ClosingPhrase: strings.TrimSpace(envOr("CLOSING_PHRASE", "Goodbye!")),
		HangupDelay:   time.Duration(envInt("HANGUP_DELAY_MS", 2000)) * time.Millisecond,
		ToolTimeout:   time.Duration(envInt("TOOL_TIMEOUT_MS", 8000)) * time.Millisecond,

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),

		MsgAccountSID: envOr("MSG_TWILIO_ACCOUNT_SID", os.Getenv("TWILIO_ACCOUNT_SID")),
		MsgAuthToken:  envOr("MSG_TWILIO_AUTH_TOKEN", os.Getenv("TWILIO_AUTH_TOKEN")),
		MsgFromE164:   os.Getenv("MSG_TWILIO_FROM_E164"),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.WSScheme == "" {
		if strings.HasPrefix(cfg.VoiceHost, "localhost") {
			cfg.WSScheme = "ws"
		} else {
			cfg.WSScheme = "wss"
		}
	}

	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}

	return cfg, nil
}

// StreamURL is the WebSocket URL Twilio connects its media stream to.
func (c *Config) StreamURL() string {
	return fmt.Sprintf("%s://%s/twilio", c.WSScheme, c.VoiceHost)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "0", "false", "no":
		return false
	}
	return true
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	// tolerate trailing junk like "2000  # ms"
	if i := strings.IndexByte(v, ' '); i > 0 {
		v = v[:i]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
