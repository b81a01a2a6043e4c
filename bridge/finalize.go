package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	servizio "github.com/dfordp/Servizio"
	"github.com/dfordp/Servizio/events"
	"github.com/dfordp/Servizio/session"
)

// OrderCommitter commits a pending order and returns its snapshot.
// Satisfied by orders.Service.
type OrderCommitter interface {
	Finalize(callSID, orderNumber string) map[string]any
}

// Notifier sends the order-received confirmation.
type Notifier interface {
	SendReceived(ctx context.Context, orderNumber, phone string) error
}

// CallControl terminates an active call by its identifier.
type CallControl interface {
	Hangup(ctx context.Context, callSID string) error
}

// Finalizer drives the idempotent "commit order + notify + hang up"
// sequence. Two marker sets guard against duplicates: hungUp is sticky
// for the life of the process's knowledge of a call, inFlight is
// cleared on every exit path so a later legitimate trigger can retry.
type Finalizer struct {
	sessions *session.Store
	orders   OrderCommitter
	notifier Notifier    // optional
	control  CallControl // optional
	hub      *events.Hub
	delay    time.Duration
	log      logrus.FieldLogger

	mu       sync.Mutex
	hungUp   map[string]struct{}
	inFlight map[string]struct{}
}

// NewFinalizer wires the finalization controller. notifier and control
// may be nil when SMS or call control are unconfigured.
func NewFinalizer(sessions *session.Store, orders OrderCommitter, notifier Notifier, control CallControl, hub *events.Hub, hangupDelay time.Duration, log logrus.FieldLogger) *Finalizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Finalizer{
		sessions: sessions,
		orders:   orders,
		notifier: notifier,
		control:  control,
		hub:      hub,
		delay:    hangupDelay,
		log:      log,
		hungUp:   make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
	}
}

// FinalizeAndHangup runs the full closing sequence for a call. Safe to
// invoke from multiple triggers; at most one commit and one hangup
// happen per call id.
func (f *Finalizer) FinalizeAndHangup(ctx context.Context, callSID string) {
	f.mu.Lock()
	if _, done := f.hungUp[callSID]; done {
		f.mu.Unlock()
		return
	}
	if _, running := f.inFlight[callSID]; running {
		f.mu.Unlock()
		return
	}
	f.inFlight[callSID] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.inFlight, callSID)
		f.mu.Unlock()
	}()

	f.finalizeAndNotify(ctx, callSID)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return
		}
	}

	f.hangup(ctx, callSID)

	f.mu.Lock()
	f.hungUp[callSID] = struct{}{}
	f.mu.Unlock()
}

// finalizeAndNotify commits the order and sends the confirmation SMS.
// Unmet preconditions are not errors: the call simply isn't ready to
// finalize yet and a later trigger will retry.
func (f *Finalizer) finalizeAndNotify(ctx context.Context, callSID string) {
	s := f.sessions.Get(callSID)
	if s == nil {
		return
	}

	s.Mu.Lock()
	ready := !s.NotificationSent && s.OrderNumber != "" && s.PhoneConfirmed && s.Phone != ""
	orderNumber, phone := s.OrderNumber, s.Phone
	s.Mu.Unlock()
	if !ready {
		return
	}

	fin := f.orders.Finalize(callSID, orderNumber)
	if fin["ok"] != true {
		f.log.WithField("call_sid", callSID).Errorf("finalize failed: %v", fin["error"])
		return
	}
	if p, _ := fin["phone"].(string); p != "" {
		phone = p
	}
	status, _ := fin["status"].(string)

	if f.hub != nil {
		f.hub.Publish(servizio.EventTopicOrders, events.Event{
			"type":         servizio.EventOrderCreated,
			"order_number": orderNumber,
			"status":       status,
		})
	}

	if f.notifier == nil {
		return
	}
	if err := f.notifier.SendReceived(ctx, orderNumber, phone); err != nil {
		f.log.WithField("call_sid", callSID).Warnf("SMS failed: %v", err)
		return
	}

	s.Mu.Lock()
	s.NotificationSent = true
	s.Mu.Unlock()
	f.log.WithField("call_sid", callSID).Infof("order %s committed and SMS sent", orderNumber)
}

func (f *Finalizer) hangup(ctx context.Context, callSID string) {
	if f.control == nil {
		f.log.WithField("call_sid", callSID).Warn("call control not configured; cannot hang up")
		return
	}
	if err := f.control.Hangup(ctx, callSID); err != nil {
		f.log.WithField("call_sid", callSID).Warnf("hangup failed: %v", err)
		return
	}
	f.log.WithField("call_sid", callSID).Info("hangup requested")
}

// ResetMarkers clears both idempotency markers for a call id, used when
// a new media stream starts so a reused identifier is not poisoned.
func (f *Finalizer) ResetMarkers(callSID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hungUp, callSID)
	delete(f.inFlight, callSID)
}
