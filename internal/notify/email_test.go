package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type stubSendGrid struct {
	status int
	err    error
	last   *mail.SGMailV3
}

func (s *stubSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	s.last = email
	if s.err != nil {
		return nil, s.err
	}
	return &rest.Response{StatusCode: s.status}, nil
}

type stubSES struct {
	err  error
	last *sesv2.SendEmailInput
}

func (s *stubSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.last = params
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "citas@previmed.co"}, nil); sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "citas@previmed.co"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.name != "Previmed" {
		t.Errorf("expected default from name 'Previmed', got %q", sender.name)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	api := &stubSendGrid{status: 202}
	sender := newSendGridSender(api, SendGridConfig{FromEmail: "citas@previmed.co", FromName: "Citas"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "despacho@previmed.co", Subject: "Nueva visita", Body: "texto"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.last == nil || api.last.Subject != "Nueva visita" || api.last.From.Address != "citas@previmed.co" {
		t.Fatalf("unexpected message %#v", api.last)
	}
	if len(api.last.Categories) != 1 || api.last.Categories[0] != visitCategory {
		t.Fatalf("expected visit category, got %v", api.last.Categories)
	}
}

func TestSenders_RejectMissingRecipient(t *testing.T) {
	senders := map[string]EmailSender{
		"sendgrid": newSendGridSender(&stubSendGrid{status: 202}, SendGridConfig{}, nil),
		"ses":      newSESSender(&stubSES{}, SESConfig{}, nil),
		"stub":     NewStubEmailSender(nil),
	}
	for name, sender := range senders {
		if err := sender.Send(context.Background(), EmailMessage{To: "  ", Subject: "s"}); !errors.Is(err, ErrNoRecipient) {
			t.Errorf("%s: expected ErrNoRecipient, got %v", name, err)
		}
	}
}

func TestSendGridSender_Send_Failures(t *testing.T) {
	if err := (&SendGridSender{}).Send(context.Background(), EmailMessage{To: "x@y.co"}); err == nil {
		t.Error("expected error when client is nil")
	}

	rejected := newSendGridSender(&stubSendGrid{status: 401}, SendGridConfig{}, nil)
	if err := rejected.Send(context.Background(), EmailMessage{To: "x@y.co"}); err == nil {
		t.Error("expected error for 401 status")
	}

	boom := errors.New("network")
	failing := newSendGridSender(&stubSendGrid{err: boom}, SendGridConfig{}, nil)
	if err := failing.Send(context.Background(), EmailMessage{To: "x@y.co"}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestSESSender_Send(t *testing.T) {
	api := &stubSES{}
	sender := newSESSender(api, SESConfig{FromEmail: "citas@previmed.co"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "despacho@previmed.co", Subject: "Nueva visita", Body: "texto"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(api.last.FromEmailAddress); got != `"Previmed" <citas@previmed.co>` {
		t.Errorf("unexpected from %q", got)
	}
	if got := api.last.Destination.ToAddresses; len(got) != 1 || got[0] != "<despacho@previmed.co>" {
		t.Errorf("unexpected destination %v", got)
	}
	if api.last.Content.Simple.Body.Text == nil || api.last.Content.Simple.Body.Html != nil {
		t.Errorf("expected text-only body, got %#v", api.last.Content.Simple.Body)
	}

	failing := newSESSender(&stubSES{err: errors.New("throttled")}, SESConfig{}, nil)
	if err := failing.Send(context.Background(), EmailMessage{To: "x@y.co"}); err == nil {
		t.Error("expected SES error")
	}
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Error("expected nil sender for nil client")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "x@y.co", Subject: "s"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
