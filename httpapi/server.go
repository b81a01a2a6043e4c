// Package httpapi exposes the service's HTTP surface: the Twilio
// webhook and media-stream socket, the dashboard order API, and the
// live event feed.
package httpapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	servizio "github.com/dfordp/Servizio"
	"github.com/dfordp/Servizio/bridge"
	"github.com/dfordp/Servizio/config"
	"github.com/dfordp/Servizio/events"
	"github.com/dfordp/Servizio/orders"
)

// CallHandler runs one telephony connection to completion.
// Satisfied by *bridge.Bridge.
type CallHandler interface {
	HandleConn(ctx context.Context, tconn bridge.TelephonyConn)
}

// ReadyNotifier sends the order-ready SMS.
type ReadyNotifier interface {
	SendReady(ctx context.Context, orderNumber, phone string) error
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg      *config.Config
	orders   *orders.Store
	hub      *events.Hub
	calls    CallHandler
	notifier ReadyNotifier // optional
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewServer wires the HTTP surface. notifier may be nil when SMS is
// unconfigured.
func NewServer(cfg *config.Config, store *orders.Store, hub *events.Hub, calls CallHandler, notifier ReadyNotifier, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:      cfg,
		orders:   store,
		hub:      hub,
		calls:    calls,
		notifier: notifier,
		log:      log,
		upgrader: websocket.Upgrader{
			// Twilio connects from its own infrastructure; origin
			// checking buys nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/twilio/inbound", s.handleInboundCall).Methods(http.MethodPost)
	r.HandleFunc("/twilio", s.handleMediaStream).Methods(http.MethodGet)
	r.HandleFunc("/api/orders", s.handleListOrders).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/in_progress", s.handleInProgress).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{number}", s.handleGetOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{number}/phone", s.handleGetPhone).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{number}/status", s.handleSetStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/seed", s.handleSeed).Methods(http.MethodPost)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

// handleIndex is a small landing page pointing at the API surface.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "servizio",
		"version": servizio.Version,
		"endpoints": []string{
			"/health",
			"/api/orders",
			"/api/orders/in_progress",
			"/api/events",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": servizio.Version,
	})
}

// TwiML response types for the inbound-call webhook.
type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type twimlStream struct {
	URL    string           `xml:"url,attr"`
	Params []twimlParameter `xml:"Parameter"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Say     string       `xml:"Say,omitempty"`
	Connect twimlConnect `xml:"Connect"`
}

// handleInboundCall answers Twilio's voice webhook with TwiML that
// connects the call's media stream to this service. The call SID rides
// along as a custom parameter so the stream can be tied back to the
// call for hangup and session state.
func (s *Server) handleInboundCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.FormValue("CallSid")
	if callSID == "" {
		callSID = "unknown"
	}

	resp := twimlResponse{
		Say: "Connecting you to the boba rista.",
		Connect: twimlConnect{
			Stream: twimlStream{
				URL: s.cfg.StreamURL(),
				Params: []twimlParameter{
					{Name: "call_sid", Value: callSID},
					{Name: "from", Value: r.FormValue("From")},
					{Name: "to", Value: r.FormValue("To")},
				},
			},
		},
	}
	body, err := xml.Marshal(resp)
	if err != nil {
		http.Error(w, "twiml encoding failed", http.StatusInternalServerError)
		return
	}

	s.log.WithField("call_sid", callSID).Info("inbound call; returning stream TwiML")
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, xml.Header)
	_, _ = w.Write(body)
}

// handleMediaStream upgrades Twilio's stream connection and hands it to
// the bridge. The handler blocks for the life of the call.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	s.calls.HandleConn(r.Context(), ws)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.orders.Recent(limit)})
}

func (s *Server) handleInProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.orders.InProgress()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := s.orders.Get(mux.Vars(r)["number"])
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleGetPhone(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	o, _ := s.orders.Get(number)
	writeJSON(w, http.StatusOK, map[string]any{
		"order_number": number,
		"phone":        o.Phone,
	})
}

// handleSeed creates fake committed orders so dashboards can be
// exercised without a phone call.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	n := 2
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 || v > 10 {
			http.Error(w, "n must be 1..10", http.StatusBadRequest)
			return
		}
		n = v
	}

	now := time.Now()
	created := make([]string, 0, n)
	for i := 0; i < n; i++ {
		o := orders.Order{
			OrderNumber: fmt.Sprintf("T%s%d", now.UTC().Format("150405"), i),
			Phone:       "+15550001111",
			Items: []orders.Item{{
				Flavor:    "taro milk tea",
				Toppings:  []string{"boba"},
				Sweetness: "50%",
				Ice:       "regular ice",
				Addons:    []string{"matcha stencil on top"},
			}},
			Status:    orders.StatusReceived,
			CreatedAt: now.Unix(),
			Committed: true,
		}
		s.orders.Add(o)
		if s.hub != nil {
			s.hub.Publish(servizio.EventTopicOrders, events.Event{
				"type":         servizio.EventOrderCreated,
				"order_number": o.OrderNumber,
				"status":       o.Status,
			})
		}
		created = append(created, o.OrderNumber)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orders": created})
}

// handleSetStatus is the barista-side status update. Moving an order to
// ready frees the customer's active-drink allowance and triggers the
// pickup SMS.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	switch body.Status {
	case orders.StatusReceived, orders.StatusInProgress, orders.StatusReady:
	default:
		http.Error(w, fmt.Sprintf("invalid status %q", body.Status), http.StatusBadRequest)
		return
	}

	o, ok := s.orders.SetStatus(number, body.Status)
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}

	if s.hub != nil {
		s.hub.Publish(servizio.EventTopicOrders, events.Event{
			"type":         servizio.EventOrderStatusChanged,
			"order_number": o.OrderNumber,
			"status":       o.Status,
		})
	}

	if body.Status == orders.StatusReady && s.notifier != nil && o.Phone != "" {
		if err := s.notifier.SendReady(r.Context(), o.OrderNumber, o.Phone); err != nil {
			s.log.WithField("order_number", o.OrderNumber).Warnf("ready SMS failed: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order": o})
}

// handleEvents streams the order feed as server-sent events. Slow
// consumers miss events rather than stalling publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.hub.Subscribe(servizio.EventTopicOrders)
	defer sub.Cancel()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
