// Package notify sends customer-facing SMS through Twilio.
package notify

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/dfordp/Servizio/internal/client"
)

var e164Re = regexp.MustCompile(`^\+\d{10,15}$`)

// Sender sends order notifications from a fixed number.
type Sender struct {
	client *client.Client
	from   string
	log    logrus.FieldLogger
}

// New creates a Sender. Returns an error when the messaging account is
// not configured; callers may treat SMS as optional.
func New(accountSID, authToken, from string, log logrus.FieldLogger) (*Sender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("sms sender not configured")
	}
	c, err := client.New(&client.Config{AccountSID: accountSID, AuthToken: authToken})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sender{client: c, from: from, log: log}, nil
}

func (s *Sender) send(ctx context.Context, to, body string) error {
	if !e164Re.MatchString(to) {
		return fmt.Errorf("invalid E.164 phone for SMS: %s", to)
	}
	_, err := s.client.SendMessage(ctx, &client.SendMessageParams{
		To:   to,
		From: s.from,
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("send sms to %s: %w", to, err)
	}
	return nil
}

// SendReceived confirms an order right after it is placed.
func (s *Sender) SendReceived(ctx context.Context, orderNumber, to string) error {
	s.log.WithField("order_number", orderNumber).Infof("SMS (received) to %s", to)
	return s.send(ctx, to, fmt.Sprintf(
		"Thanks for your order with Servizio! Your order number is %s. "+
			"We'll text you again when it's ready for pickup.\nReply STOP to opt out.",
		orderNumber))
}

// SendReady notifies that the order is ready for pickup.
func (s *Sender) SendReady(ctx context.Context, orderNumber, to string) error {
	s.log.WithField("order_number", orderNumber).Infof("SMS (ready) to %s", to)
	return s.send(ctx, to, fmt.Sprintf(
		"Hi! Your boba order #%s is now ready for pickup at Servizio. "+
			"See you soon!\nReply STOP to opt out.",
		orderNumber))
}
