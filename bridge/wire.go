package bridge

import (
	"encoding/base64"
	"encoding/json"
)

// Twilio Media Streams message types.
type streamMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type startPayload struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	CustomParams map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 μ-law audio
}

// mediaFrame wraps one outbound μ-law frame as a Twilio media event.
func mediaFrame(streamSID string, ulaw []byte) ([]byte, error) {
	return json.Marshal(streamMessage{
		Event:     "media",
		StreamSID: streamSID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(ulaw)},
	})
}

// errorFrame reports a fatal bridge error back over the telephony
// socket before aborting.
func errorFrame(message string) []byte {
	data, _ := json.Marshal(map[string]string{"event": "error", "message": message})
	return data
}
