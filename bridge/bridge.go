// Package bridge owns both legs of one call: the Twilio Media Streams
// socket and the Deepgram agent socket. It pumps audio and control
// messages both ways, dispatches agent function calls, and drives
// idempotent call finalization.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	servizio "github.com/dfordp/Servizio"
	"github.com/dfordp/Servizio/agentwire"
	"github.com/dfordp/Servizio/audio"
	"github.com/dfordp/Servizio/events"
	"github.com/dfordp/Servizio/session"
	"github.com/dfordp/Servizio/tools"
)

// TelephonyConn is the Twilio leg. *websocket.Conn satisfies it.
type TelephonyConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// AgentConn is the agent leg. *agentwire.Conn satisfies it.
type AgentConn interface {
	SendSettings(*agentwire.Settings) error
	WriteJSON(v any) error
	WriteBinary(p []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Verify interface compliance at compile time.
var (
	_ TelephonyConn = (*websocket.Conn)(nil)
	_ AgentConn     = (*agentwire.Conn)(nil)
)

// AgentDialer opens a configured agent connection for a new call.
type AgentDialer func(ctx context.Context) (AgentConn, error)

// CallCleaner drops per-call collaborator state when a call ends.
// Satisfied by orders.Service.
type CallCleaner interface {
	ClearCall(callSID string)
}

// Config is the per-process bridge configuration.
type Config struct {
	// Settings is the initial agent configuration payload, tool schema
	// included.
	Settings *agentwire.Settings

	// AudioBridge forwards audio between the legs when true.
	AudioBridge bool

	// LogAgentAudio logs per-chunk agent audio sizes at debug level.
	LogAgentAudio bool

	// CloseOnPhrase hangs up after the assistant speaks ClosingPhrase.
	CloseOnPhrase bool
	ClosingPhrase string
}

// Deps are the bridge's collaborators.
type Deps struct {
	Sessions   *session.Store
	Dispatcher *tools.Dispatcher
	Finalizer  *Finalizer
	Hub        *events.Hub
	Cleaner    CallCleaner
	DialAgent  AgentDialer
	Log        logrus.FieldLogger
}

// Bridge handles telephony connections; one HandleConn call per call.
type Bridge struct {
	cfg     Config
	deps    Deps
	matcher *PhraseMatcher
}

// New creates a Bridge.
func New(cfg Config, deps Deps) (*Bridge, error) {
	if deps.Sessions == nil || deps.Dispatcher == nil || deps.Finalizer == nil || deps.DialAgent == nil {
		return nil, fmt.Errorf("bridge: sessions, dispatcher, finalizer and dialer are required")
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Bridge{
		cfg:     cfg,
		deps:    deps,
		matcher: NewPhraseMatcher(cfg.ClosingPhrase),
	}, nil
}

// HandleConn runs one call to completion. It blocks until the stream
// stops, the peer disconnects, or an unrecoverable error occurs;
// cleanup runs on every exit path.
func (b *Bridge) HandleConn(ctx context.Context, tconn TelephonyConn) {
	c := &call{b: b, tconn: tconn, callSID: "unknown"}
	defer c.cleanup()
	c.run(ctx)
}

// call is the per-call state machine: awaiting start until the first
// start event, then streaming, then closed.
type call struct {
	b     *Bridge
	tconn TelephonyConn

	writeMu sync.Mutex // serializes telephony writes

	callSID   string
	streamSID string

	agent       AgentConn
	agentCancel context.CancelFunc
	agentDone   chan struct{}

	rxState *audio.RateState
	frames  atomic.Int64
}

func (c *call) log() logrus.FieldLogger {
	return c.b.deps.Log.WithFields(logrus.Fields{
		"call_sid":   c.callSID,
		"stream_sid": c.streamSID,
	})
}

func (c *call) run(ctx context.Context) {
	for {
		_, data, err := c.tconn.ReadMessage()
		if err != nil {
			// Disconnect is normal call termination.
			c.log().Infof("telephony socket closed: %v", err)
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // malformed frame, skip
		}

		switch msg.Event {
		case "start":
			if err := c.handleStart(ctx, &msg); err != nil {
				c.log().Errorf("start failed: %v", err)
				_ = c.writeTelephony(errorFrame(err.Error()))
				return
			}

		case "media":
			if err := c.handleMedia(&msg); err != nil {
				c.log().Infof("agent leg lost: %v", err)
				return
			}

		case "stop":
			c.log().Info("media stream stopped")
			c.b.deps.Finalizer.FinalizeAndHangup(ctx, c.callSID)
			return

		default:
			// connected, mark, dtmf: no action
		}
	}
}

// handleStart transitions AwaitingStart -> Streaming: resets session
// state, connects and configures the agent, and starts the agent
// reader. Connection or configuration failure is fatal to the call.
func (c *call) handleStart(ctx context.Context, msg *streamMessage) error {
	if msg.Start == nil || c.agent != nil {
		return nil
	}

	c.streamSID = msg.Start.StreamSID
	c.callSID = msg.Start.CustomParams["call_sid"]
	if c.callSID == "" {
		c.callSID = msg.Start.CallSID
	}
	if c.callSID == "" {
		c.callSID = "unknown"
	}

	s := c.b.deps.Sessions.GetOrCreate(c.callSID)
	s.ResetTransient()
	c.b.deps.Sessions.SetStreamSID(c.callSID, c.streamSID)
	c.b.deps.Finalizer.ResetMarkers(c.callSID)

	agent, err := c.b.deps.DialAgent(ctx)
	if err != nil {
		return fmt.Errorf("agent connection failed: %w", err)
	}
	if err := agent.SendSettings(c.b.cfg.Settings); err != nil {
		_ = agent.Close()
		return fmt.Errorf("agent configuration failed: %w", err)
	}
	c.agent = agent

	agentCtx, cancel := context.WithCancel(ctx)
	c.agentCancel = cancel
	c.agentDone = make(chan struct{})
	go func() {
		defer close(c.agentDone)
		c.agentReader(agentCtx)
	}()
	go c.meter(agentCtx)

	c.log().Info("stream started; agent connected and configured")
	return nil
}

// handleMedia forwards one inbound telephony frame to the agent. A
// decode failure drops the frame; a write failure ends the call.
func (c *call) handleMedia(msg *streamMessage) error {
	c.frames.Add(1)

	if !c.b.cfg.AudioBridge || c.agent == nil || msg.Media == nil {
		return nil
	}
	ulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		return nil // malformed audio, skip the frame
	}

	var pcm []byte
	pcm, c.rxState = audio.DecodeInbound(ulaw, c.rxState)
	if err := c.agent.WriteBinary(pcm); err != nil {
		return fmt.Errorf("forward audio: %w", err)
	}
	return nil
}

// agentReader pumps the agent leg: binary audio back to the caller,
// JSON control events into handleAgentEvent. It exits on socket close
// or context cancellation; closing the agent connection unblocks the
// read.
func (c *call) agentReader(ctx context.Context) {
	var txState *audio.RateState
	chunker := audio.NewChunker(servizio.TelephonyFrameBytes)
	var assistantTurn []string

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mt, data, err := c.agent.ReadMessage()
		if err != nil {
			// Closed first during hangup; normal.
			c.log().Debugf("agent socket closed: %v", err)
			return
		}

		if mt == websocket.BinaryMessage {
			if c.b.cfg.LogAgentAudio {
				c.log().Debugf("agent audio chunk: %d bytes", len(data))
			}
			if !c.b.cfg.AudioBridge || c.streamSID == "" {
				continue
			}
			var ulaw []byte
			ulaw, txState = audio.EncodeOutbound(data, txState)
			for _, frame := range chunker.Push(ulaw) {
				out, err := mediaFrame(c.streamSID, frame)
				if err != nil {
					continue
				}
				if err := c.writeTelephony(out); err != nil {
					return
				}
			}
			continue
		}

		var evt agentwire.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		if err := c.handleAgentEvent(ctx, &evt, data, &assistantTurn); err != nil {
			c.log().Debugf("agent event handling stopped: %v", err)
			return
		}
	}
}

// handleAgentEvent reacts to one JSON control event. Function calls
// are executed strictly one at a time and each is answered before the
// next; the agent protocol forbids overlapping unanswered calls.
func (c *call) handleAgentEvent(ctx context.Context, evt *agentwire.Event, raw []byte, assistantTurn *[]string) error {
	log := c.log()

	switch evt.Type {
	case agentwire.TypeWelcome, agentwire.TypeSettingsApplied,
		agentwire.TypeError, agentwire.TypeUserStartedSpeaking:
		log.Infof("agent: %s", raw)

	case agentwire.TypeConversationText, agentwire.TypeHistory:
		log.Infof("agent: %s", raw)
		if strings.EqualFold(evt.Role, "assistant") {
			*assistantTurn = append(*assistantTurn, evt.Content)
		}

	case agentwire.TypeAgentAudioDone:
		log.Infof("agent: %s", raw)
		if c.b.cfg.CloseOnPhrase && len(*assistantTurn) > 0 &&
			c.b.matcher.Match(strings.Join(*assistantTurn, " ")) {
			log.Info("closing phrase found in utterance; finalizing and hanging up")
			// Detached: finalization must not block the read loop and
			// must survive this call's teardown.
			go c.b.deps.Finalizer.FinalizeAndHangup(context.Background(), c.callSID)
		}
		*assistantTurn = (*assistantTurn)[:0]

	case agentwire.TypeFunctionCallRequest:
		for _, fc := range evt.Funcs {
			if !fc.Local() {
				continue
			}
			log.Infof("function call %s(%s)", fc.Name, truncate(string(fc.Arguments), 800))

			result := c.b.deps.Dispatcher.Invoke(ctx, fc.Name, fc.Arguments, c.callSID)
			resp := agentwire.FunctionCallResponse{
				Type:    agentwire.TypeFunctionCallResponse,
				ID:      fc.ID,
				Name:    fc.Name,
				Content: serializeResult(result),
			}
			if err := c.agent.WriteJSON(resp); err != nil {
				return fmt.Errorf("send function response: %w", err)
			}
			log.Infof("function result %s: %s", fc.Name, truncate(resp.Content, 800))
		}

	default:
		log.Infof("agent: %s", raw)
	}
	return nil
}

func (c *call) writeTelephony(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.tconn.WriteMessage(websocket.TextMessage, data)
}

// meter logs inbound frame throughput once per second.
func (c *call) meter(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.frames.Swap(0)
			if n > 0 {
				c.log().Debugf("telephony media frames last 1s: %d", n)
			}
		}
	}
}

// cleanup runs unconditionally when the call leaves the streaming
// state: stop the agent reader, close the agent leg, publish the call
// end, and drop every piece of per-call state.
func (c *call) cleanup() {
	if c.agentCancel != nil {
		c.agentCancel()
	}
	if c.agent != nil {
		_ = c.agent.Close()
	}
	if c.agentDone != nil {
		<-c.agentDone
	}

	if c.callSID != "" && c.callSID != "unknown" {
		if c.b.deps.Hub != nil {
			c.b.deps.Hub.Publish(servizio.EventTopicOrders, events.Event{
				"type":     servizio.EventCallEnded,
				"call_sid": c.callSID,
			})
		}
		c.b.deps.Sessions.Remove(c.callSID)
		if c.b.deps.Cleaner != nil {
			c.b.deps.Cleaner.ClearCall(c.callSID)
		}
		c.b.deps.Finalizer.ResetMarkers(c.callSID)
	}
	c.log().Info("call ended")
}

func serializeResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return `{"ok":false,"error":"unserializable tool result"}`
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
