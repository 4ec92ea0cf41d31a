package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/previmed/visit-assistant/pkg/logging"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultFromName = "Previmed"
	visitCategory   = "visita-domiciliaria"
)

// ErrNoRecipient is returned before any provider call when a message has no
// destination address.
var ErrNoRecipient = errors.New("notify: message has no recipient")

// EmailSender delivers one message. SendGrid, SES and a logging stub
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text email with an optional HTML part.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

func (m EmailMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	return nil
}

// sender is the From identity shared by every provider.
type sender struct {
	email  string
	name   string
	logger *logging.Logger
}

func newSender(email, name string, logger *logging.Logger) sender {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(name) == "" {
		name = defaultFromName
	}
	return sender{email: strings.TrimSpace(email), name: name, logger: logger}
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers dispatch emails through the SendGrid v3 API.
// Messages are tagged with a category so desk traffic can be filtered in
// the SendGrid activity feed.
type SendGridSender struct {
	sender
	client sendGridAPI
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendGridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	return &SendGridSender{sender: newSender(cfg.FromEmail, cfg.FromName, logger), client: client}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(mail.NewEmail(s.name, s.email), msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, html)
	message.AddCategories(visitCategory)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: failed to send via sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid rejected message: status %d", resp.StatusCode)
	}
	s.logger.Debug("sendgrid accepted message", "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. Used when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email delivery disabled, message dropped", "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
