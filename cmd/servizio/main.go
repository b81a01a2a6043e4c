// Command servizio runs the boba-shop voice ordering service: Twilio
// webhook, media-stream bridge to the Deepgram voice agent, order API
// and dashboard event feed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	servizio "github.com/dfordp/Servizio"
	"github.com/dfordp/Servizio/agentwire"
	"github.com/dfordp/Servizio/bridge"
	"github.com/dfordp/Servizio/config"
	"github.com/dfordp/Servizio/events"
	"github.com/dfordp/Servizio/httpapi"
	"github.com/dfordp/Servizio/internal/client"
	"github.com/dfordp/Servizio/notify"
	"github.com/dfordp/Servizio/orders"
	"github.com/dfordp/Servizio/session"
	"github.com/dfordp/Servizio/tools"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	sessions := session.NewStore()
	hub := events.NewHub()
	orderStore := orders.NewStore()
	orderSvc := orders.NewService(orderStore)

	// Twilio call control; without credentials the service still takes
	// calls but cannot hang up programmatically.
	var control bridge.CallControl
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		tc, err := client.New(&client.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
		})
		if err != nil {
			log.Fatalf("twilio client: %v", err)
		}
		control = callControl{tc}
	} else {
		log.Warn("TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN unset; hangup disabled")
	}

	var notifier *notify.Sender
	if n, err := notify.New(cfg.MsgAccountSID, cfg.MsgAuthToken, cfg.MsgFromE164, log); err != nil {
		log.Warnf("SMS disabled: %v", err)
	} else {
		notifier = n
	}

	dispatcher := tools.NewDispatcher(
		tools.Registry(tools.Deps{Sessions: sessions, Orders: orderSvc, Events: hub}),
		tools.WithTimeout(cfg.ToolTimeout),
		tools.WithLogger(log),
	)

	// notify.Sender is optional; a typed nil must not sneak into the
	// interface fields.
	var smsReceived bridge.Notifier
	var smsReady httpapi.ReadyNotifier
	if notifier != nil {
		smsReceived = notifier
		smsReady = notifier
	}

	finalizer := bridge.NewFinalizer(sessions, orderSvc, smsReceived, control, hub, cfg.HangupDelay, log)

	settings := agentwire.BuildSettings(agentwire.SettingsParams{
		Language:         cfg.AgentLanguage,
		ListenModel:      cfg.ListenModel,
		ThinkModel:       cfg.ThinkModel,
		SpeakModel:       cfg.SpeakModel,
		Prompt:           cfg.Prompt,
		Greeting:         cfg.Greeting,
		InputSampleRate:  servizio.AgentInputSampleRate,
		OutputSampleRate: servizio.AgentOutputSampleRate,
	})

	b, err := bridge.New(bridge.Config{
		Settings:      settings,
		AudioBridge:   cfg.AudioBridge,
		LogAgentAudio: cfg.LogAgentAudio,
		CloseOnPhrase: cfg.CloseOnPhrase,
		ClosingPhrase: cfg.ClosingPhrase,
	}, bridge.Deps{
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Finalizer:  finalizer,
		Hub:        hub,
		Cleaner:    orderSvc,
		DialAgent: func(ctx context.Context) (bridge.AgentConn, error) {
			return agentwire.Dial(ctx, cfg.AgentURL, cfg.DeepgramAPIKey)
		},
		Log: log,
	})
	if err != nil {
		log.Fatalf("bridge: %v", err)
	}

	api := httpapi.NewServer(cfg, orderStore, hub, b, smsReady, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("servizio %s listening on %s (stream %s)", servizio.Version, cfg.ListenAddr, cfg.StreamURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
}

// callControl adapts the Twilio REST client to the bridge's hangup
// interface.
type callControl struct {
	c *client.Client
}

func (cc callControl) Hangup(ctx context.Context, callSID string) error {
	_, err := cc.c.HangupCall(ctx, callSID)
	return err
}
