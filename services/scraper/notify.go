package scraper

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

// Notifier tells the surrounding application that a user has to reconnect
// their portal account by hand.
type Notifier interface {
	ReconnectRequired(ctx context.Context, userID, reason string, failures int64) error
}

type nopNotifier struct{}

func (nopNotifier) ReconnectRequired(context.Context, string, string, int64) error {
	return nil
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	// NotifyAddress receives the notices, the application routes them on
	// to the user.
	NotifyAddress string `json:"notify_address"`
}

type MailNotifier struct {
	config SmtpConfig
}

func NewMailNotifier(config SmtpConfig) MailNotifier {
	return MailNotifier{config: config}
}

func (n MailNotifier) ReconnectRequired(ctx context.Context, userID, reason string, failures int64) error {
	ctx, span := tracer.Start(ctx, "ReconnectRequired")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("casesync <%s>", n.config.EmailAddress)
	mail.To = []string{n.config.NotifyAddress}
	mail.Subject = "Portal reconnect required"
	mail.Headers.Set("X-Casesync-User", userID)
	mail.Text = []byte(fmt.Sprintf(`The portal rejected the stored credentials of user %s.

Reason: %s
Consecutive failures: %d

The user has to reconnect their portal account before cases can sync again.`, userID, reason, failures))

	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", n.config.EmailAddress, n.config.Password, n.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
