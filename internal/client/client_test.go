package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHangupCall(t *testing.T) {
	var gotPath, gotStatus, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotStatus = r.FormValue("Status")
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"CA1","status":"completed"}`))
	}))
	defer srv.Close()

	c, err := New(&Config{AccountSID: "AC1", AuthToken: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	call, err := c.HangupCall(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("HangupCall: %v", err)
	}
	if call.Status != "completed" {
		t.Errorf("status = %q, want completed", call.Status)
	}
	if gotPath != "/Accounts/AC1/Calls/CA1.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotStatus != "completed" {
		t.Errorf("Status form value = %q, want completed", gotStatus)
	}
	if gotUser != "AC1" {
		t.Errorf("basic auth user = %q, want AC1", gotUser)
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC1/Messages.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.FormValue("To") != "+15550001111" || r.FormValue("Body") == "" {
			t.Errorf("form = %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	c, err := New(&Config{AccountSID: "AC1", AuthToken: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg, err := c.SendMessage(context.Background(), &SendMessageParams{
		To:   "+15550001111",
		From: "+15559990000",
		Body: "Order confirmed",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.SID != "SM1" {
		t.Errorf("sid = %q, want SM1", msg.SID)
	}
}

func TestAPIErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	c, err := New(&Config{AccountSID: "AC1", AuthToken: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.SendMessage(context.Background(), &SendMessageParams{To: "bogus", From: "x", Body: "y"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Code != 21211 {
		t.Errorf("code = %d, want 21211", apiErr.Code)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	if _, err := New(&Config{}); err == nil {
		t.Error("New with no credentials should fail")
	}
}
