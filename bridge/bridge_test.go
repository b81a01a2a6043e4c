package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dfordp/Servizio/agentwire"
	"github.com/dfordp/Servizio/events"
	"github.com/dfordp/Servizio/session"
	"github.com/dfordp/Servizio/tools"
)

type fakeTelephony struct {
	in     chan []byte
	mu     sync.Mutex
	writes [][]byte
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{in: make(chan []byte, 32)}
}

func (f *fakeTelephony) ReadMessage() (int, []byte, error) {
	data, ok := <-f.in
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeTelephony) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeTelephony) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal telephony message: %v", err)
	}
	f.in <- data
}

// eventsWritten decodes recorded writes and returns those with the
// given event name.
func (f *fakeTelephony) eventsWritten(event string) []streamMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []streamMessage
	for _, w := range f.writes {
		var m streamMessage
		if json.Unmarshal(w, &m) == nil && m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

type agentMsg struct {
	mt   int
	data []byte
}

type fakeAgent struct {
	in     chan agentMsg
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	settings *agentwire.Settings
	jsonOut  [][]byte
	binary   [][]byte
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{in: make(chan agentMsg, 32), closed: make(chan struct{})}
}

func (f *fakeAgent) SendSettings(s *agentwire.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
	return nil
}

func (f *fakeAgent) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonOut = append(f.jsonOut, data)
	return nil
}

func (f *fakeAgent) WriteBinary(p []byte) error {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary = append(f.binary, cp)
	return nil
}

func (f *fakeAgent) ReadMessage() (int, []byte, error) {
	select {
	case <-f.closed:
		return 0, nil, errors.New("agent connection closed")
	case m, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return m.mt, m.data, nil
	}
}

func (f *fakeAgent) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeAgent) pushJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal agent event: %v", err)
	}
	f.in <- agentMsg{mt: websocket.TextMessage, data: data}
}

func (f *fakeAgent) pushBinary(p []byte) {
	f.in <- agentMsg{mt: websocket.BinaryMessage, data: p}
}

func (f *fakeAgent) responses() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.jsonOut))
	copy(out, f.jsonOut)
	return out
}

func (f *fakeAgent) binaryWrites() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.binary))
	copy(out, f.binary)
	return out
}

type testRig struct {
	bridge   *Bridge
	sessions *session.Store
	hub      *events.Hub
	agent    *fakeAgent
	control  *fakeControl
	dialErr  error
}

func echoTool() tools.Tool {
	return tools.Tool{
		Def: agentwire.FunctionDef{
			Name: "add_note",
			Parameters: agentwire.ObjectSchema{
				Type:       "object",
				Properties: map[string]agentwire.Property{"text": {Type: "string"}},
				Required:   []string{"text"},
			},
		},
		Handler: func(ctx context.Context, args tools.Args) (any, error) {
			return map[string]any{"ok": true, "echo": args.String("text"), "call_sid": args.CallSID()}, nil
		},
	}
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	rig := &testRig{
		sessions: session.NewStore(),
		hub:      events.NewHub(),
		agent:    newFakeAgent(),
		control:  &fakeControl{},
	}
	fin := NewFinalizer(rig.sessions, &fakeCommitter{}, nil, rig.control, rig.hub, 0, nil)
	b, err := New(cfg, Deps{
		Sessions:   rig.sessions,
		Dispatcher: tools.NewDispatcher([]tools.Tool{echoTool()}),
		Finalizer:  fin,
		Hub:        rig.hub,
		DialAgent: func(ctx context.Context) (AgentConn, error) {
			if rig.dialErr != nil {
				return nil, rig.dialErr
			}
			return rig.agent, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rig.bridge = b
	return rig
}

func startMessage(callSID, streamSID string) any {
	return map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamSid":        streamSID,
			"callSid":          callSID,
			"customParameters": map[string]string{"call_sid": callSID},
		},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridgeStartAndStopLifecycle(t *testing.T) {
	rig := newTestRig(t, Config{AudioBridge: true})
	tel := newFakeTelephony()

	sub := rig.hub.Subscribe("orders")
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA100", "MZ100"))
	tel.send(t, map[string]any{"event": "stop"})
	close(tel.in)
	<-done

	if rig.agent.settings == nil {
		t.Fatal("agent never received settings")
	}
	if got := rig.control.hangups.Load(); got != 1 {
		t.Errorf("hangup called %d times, want 1", got)
	}
	if rig.sessions.Get("CA100") != nil {
		t.Error("session not removed after call end")
	}

	select {
	case evt := <-sub.C():
		if evt["type"] != "CallEnded" {
			t.Errorf("event type = %v, want CallEnded", evt["type"])
		}
		if evt["call_sid"] != "CA100" {
			t.Errorf("event call_sid = %v, want CA100", evt["call_sid"])
		}
	case <-time.After(time.Second):
		t.Error("no CallEnded event published")
	}
}

func TestBridgeForwardsCallerAudioUpsampled(t *testing.T) {
	rig := newTestRig(t, Config{AudioBridge: true})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA101", "MZ101"))
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF // μ-law near-silence
	}
	tel.send(t, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(frame)},
	})
	tel.send(t, map[string]any{"event": "stop"})
	close(tel.in)
	<-done

	bins := rig.agent.binaryWrites()
	if len(bins) != 1 {
		t.Fatalf("agent received %d binary messages, want 1", len(bins))
	}
	// 160 μ-law samples upsampled 8 kHz -> 48 kHz as 16-bit PCM.
	if want := 160 * 6 * 2; len(bins[0]) != want {
		t.Errorf("forwarded PCM length = %d, want %d", len(bins[0]), want)
	}
}

func TestBridgeChunksAgentAudioIntoFrames(t *testing.T) {
	rig := newTestRig(t, Config{AudioBridge: true})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA102", "MZ102"))
	waitFor(t, func() bool { return rig.agent.settings != nil }, "agent settings")

	// 960 samples at 24 kHz decimate to 320 μ-law bytes: two full frames.
	pcm := make([]byte, 960*2)
	rig.agent.pushBinary(pcm)

	waitFor(t, func() bool { return len(tel.eventsWritten("media")) == 2 }, "two media frames")

	for i, m := range tel.eventsWritten("media") {
		if m.StreamSID != "MZ102" {
			t.Errorf("frame %d streamSid = %q, want MZ102", i, m.StreamSID)
		}
		raw, err := base64.StdEncoding.DecodeString(m.Media.Payload)
		if err != nil {
			t.Fatalf("frame %d payload not base64: %v", i, err)
		}
		if len(raw) != 160 {
			t.Errorf("frame %d length = %d, want 160", i, len(raw))
		}
	}

	tel.send(t, map[string]any{"event": "stop"})
	close(tel.in)
	<-done
}

func TestBridgeAnswersLocalFunctionCalls(t *testing.T) {
	rig := newTestRig(t, Config{})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA103", "MZ103"))
	waitFor(t, func() bool { return rig.agent.settings != nil }, "agent settings")

	rig.agent.pushJSON(t, map[string]any{
		"type": "FunctionCallRequest",
		"functions": []any{
			map[string]any{"id": "f1", "name": "add_note", "arguments": map[string]any{"text": "extra boba"}},
			map[string]any{"id": "f2", "name": "add_note", "arguments": map[string]any{}, "client_side": false},
		},
	})

	waitFor(t, func() bool { return len(rig.agent.responses()) == 1 }, "one function response")

	var resp agentwire.FunctionCallResponse
	if err := json.Unmarshal(rig.agent.responses()[0], &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != agentwire.TypeFunctionCallResponse || resp.ID != "f1" || resp.Name != "add_note" {
		t.Errorf("response envelope = %+v", resp)
	}
	if !strings.Contains(resp.Content, "extra boba") || !strings.Contains(resp.Content, "CA103") {
		t.Errorf("response content = %q, want echoed text and call sid", resp.Content)
	}

	tel.send(t, map[string]any{"event": "stop"})
	close(tel.in)
	<-done

	if got := len(rig.agent.responses()); got != 1 {
		t.Errorf("%d responses sent, want 1 (server-side call must be skipped)", got)
	}
}

func TestBridgeUnknownToolStillAnswers(t *testing.T) {
	rig := newTestRig(t, Config{})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA104", "MZ104"))
	waitFor(t, func() bool { return rig.agent.settings != nil }, "agent settings")

	rig.agent.pushJSON(t, map[string]any{
		"type": "FunctionCallRequest",
		"functions": []any{
			map[string]any{"id": "f1", "name": "no_such_tool", "arguments": map[string]any{}},
		},
	})

	waitFor(t, func() bool { return len(rig.agent.responses()) == 1 }, "function response")

	var resp agentwire.FunctionCallResponse
	if err := json.Unmarshal(rig.agent.responses()[0], &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Content, "Unknown tool: no_such_tool") {
		t.Errorf("response content = %q, want unknown-tool error", resp.Content)
	}

	close(tel.in)
	<-done
}

func TestBridgeClosingPhraseHangsUp(t *testing.T) {
	rig := newTestRig(t, Config{CloseOnPhrase: true, ClosingPhrase: "Goodbye!"})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA105", "MZ105"))
	waitFor(t, func() bool { return rig.agent.settings != nil }, "agent settings")

	rig.agent.pushJSON(t, map[string]any{
		"type": "ConversationText", "role": "assistant",
		"content": "Perfect, you’re all set —",
	})
	rig.agent.pushJSON(t, map[string]any{
		"type": "ConversationText", "role": "assistant",
		"content": "Goodbye!",
	})
	rig.agent.pushJSON(t, map[string]any{"type": "AgentAudioDone"})

	waitFor(t, func() bool { return rig.control.hangups.Load() == 1 }, "hangup")

	// A later stop must not hang up a second time.
	tel.send(t, map[string]any{"event": "stop"})
	close(tel.in)
	<-done

	if got := rig.control.hangups.Load(); got != 1 {
		t.Errorf("hangup called %d times, want 1", got)
	}
}

func TestBridgeUserSpeechNeverTriggersHangup(t *testing.T) {
	rig := newTestRig(t, Config{CloseOnPhrase: true, ClosingPhrase: "Goodbye!"})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA106", "MZ106"))
	waitFor(t, func() bool { return rig.agent.settings != nil }, "agent settings")

	rig.agent.pushJSON(t, map[string]any{
		"type": "ConversationText", "role": "user", "content": "Goodbye!",
	})
	rig.agent.pushJSON(t, map[string]any{"type": "AgentAudioDone"})
	// Follow with a request so we know the reader consumed the above.
	rig.agent.pushJSON(t, map[string]any{
		"type": "FunctionCallRequest",
		"functions": []any{
			map[string]any{"id": "f1", "name": "add_note", "arguments": map[string]any{"text": "x"}},
		},
	})
	waitFor(t, func() bool { return len(rig.agent.responses()) == 1 }, "function response")

	if got := rig.control.hangups.Load(); got != 0 {
		t.Errorf("hangup called %d times, want 0", got)
	}

	close(tel.in)
	<-done
}

func TestBridgeAgentDialFailureReportsError(t *testing.T) {
	rig := newTestRig(t, Config{})
	rig.dialErr = errors.New("dial tcp: connection refused")
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.send(t, startMessage("CA107", "MZ107"))
	<-done

	errs := tel.eventsWritten("error")
	if len(errs) != 1 {
		t.Fatalf("%d error frames written, want 1", len(errs))
	}
	if rig.sessions.Get("CA107") != nil {
		t.Error("session not removed after failed start")
	}
}

func TestBridgeIgnoresMalformedFrames(t *testing.T) {
	rig := newTestRig(t, Config{AudioBridge: true})
	tel := newFakeTelephony()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.bridge.HandleConn(context.Background(), tel)
	}()

	tel.in <- []byte("not json at all")
	tel.send(t, startMessage("CA108", "MZ108"))
	tel.send(t, map[string]any{
		"event": "media",
		"media": map[string]any{"payload": "!!!not-base64!!!"},
	})
	tel.send(t, map[string]any{"event": "stop"})
	close(tel.in)
	<-done

	if got := len(rig.agent.binaryWrites()); got != 0 {
		t.Errorf("agent received %d binary messages from bad audio, want 0", got)
	}
	if got := rig.control.hangups.Load(); got != 1 {
		t.Errorf("hangup called %d times, want 1", got)
	}
}
