// Package servizio is a voice ordering backend that bridges Twilio Media
// Streams to the Deepgram Voice Agent.
//
// The system is built from a handful of components:
//   - bridge.Bridge: per-call orchestrator owning both socket legs
//   - audio: μ-law ↔ linear PCM transcoding and frame chunking
//   - tools.Dispatcher: agent-invoked function calls against the order model
//   - session.Store: per-call mutable state
//   - orders.Service: cart, checkout and committed-order bookkeeping
//   - events.Hub: best-effort feed for dashboards
//
// # Environment Variables
//
//	DEEPGRAM_API_KEY       - Deepgram API key (required)
//	TWILIO_ACCOUNT_SID     - Twilio Account SID (call control)
//	TWILIO_AUTH_TOKEN      - Twilio Auth Token
//	MSG_TWILIO_FROM_E164   - SMS sender number
//	VOICE_HOST             - public host for the media stream URL
//
// # Quick Start
//
//	cfg, _ := config.Load()
//	srv := httpapi.NewServer(cfg, store, hub, bridge, notifier, log)
//	http.ListenAndServe(cfg.ListenAddr, srv.Router())
package servizio

// Version is the backend version.
const Version = "0.3.0"

// Audio format constants for Twilio Media Streams.
const (
	// TelephonyEncoding is the μ-law encoding Twilio sends and expects
	// (8-bit, 8kHz).
	TelephonyEncoding = "audio/x-mulaw"

	// TelephonySampleRate is the Twilio Media Streams sample rate.
	TelephonySampleRate = 8000

	// TelephonyFrameBytes is the size of one outbound media frame:
	// 20ms of μ-law audio at 8kHz.
	TelephonyFrameBytes = 160
)

// Audio format constants for the agent leg.
const (
	// AgentInputSampleRate is the linear16 rate the agent listens at.
	AgentInputSampleRate = 48000

	// AgentOutputSampleRate is the linear16 rate the agent speaks at.
	AgentOutputSampleRate = 24000
)

// Event types published to the dashboard feed.
const (
	EventOrderLocked        = "order_locked"
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventCallEnded          = "CallEnded"
)

// EventTopicOrders is the feed topic dashboards subscribe to.
const EventTopicOrders = "orders"
