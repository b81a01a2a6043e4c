package agentwire

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// maxMessageSize bounds inbound agent messages (binary audio included).
const maxMessageSize = 1 << 24

// Conn is one agent leg. Reads are owned by a single goroutine; writes
// may come from both the telephony reader (audio) and the agent reader
// (function responses), so they are serialized here.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// Dial opens the agent WebSocket, authenticating with the API key.
func Dial(ctx context.Context, url, apiKey string) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+apiKey)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("agent dial %s: %w", url, err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Conn{ws: ws}, nil
}

// SendSettings transmits the initial configuration payload. The agent
// will not accept audio before this is applied.
func (c *Conn) SendSettings(s *Settings) error {
	if err := c.WriteJSON(s); err != nil {
		return fmt.Errorf("send settings: %w", err)
	}
	return nil
}

// WriteJSON sends a JSON control message.
func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// WriteBinary sends raw PCM audio.
func (c *Conn) WriteBinary(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, p)
}

// ReadMessage returns the next message; messageType distinguishes
// binary audio from JSON text events.
func (c *Conn) ReadMessage() (messageType int, p []byte, err error) {
	return c.ws.ReadMessage()
}

// Close tears down the socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// SettingsParams carries the configurable pieces of the Settings
// payload; audio formats and the tool schema are fixed by the bridge
// contract.
type SettingsParams struct {
	Language         string
	ListenModel      string
	ThinkModel       string
	SpeakModel       string
	Prompt           string
	Greeting         string
	InputSampleRate  int
	OutputSampleRate int
}

// BuildSettings assembles the Settings payload including the tool
// schema under think.functions.
func BuildSettings(p SettingsParams) *Settings {
	return &Settings{
		Type: "Settings",
		Audio: AudioSettings{
			Input:  AudioFormat{Encoding: "linear16", SampleRate: p.InputSampleRate},
			Output: AudioFormat{Encoding: "linear16", SampleRate: p.OutputSampleRate, Container: "none"},
		},
		Agent: AgentSettings{
			Language: p.Language,
			Listen:   ProviderBlock{Provider: Provider{Type: "deepgram", Model: p.ListenModel}},
			Think: ThinkBlock{
				Provider:  Provider{Type: "google", Model: p.ThinkModel},
				Prompt:    p.Prompt,
				Functions: FunctionDefs,
			},
			Speak:    ProviderBlock{Provider: Provider{Type: "deepgram", Model: p.SpeakModel}},
			Greeting: p.Greeting,
		},
	}
}
