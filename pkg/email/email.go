// Package email delivers transactional mail through SendGrid, or to the log
// when no API key is configured.
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is one outgoing email.
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Sender delivers a message or returns why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures a sender.
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// New returns a SendGrid sender when an API key is set, otherwise a LogSender.
func New(cfg Config, logger *zap.Logger) Sender {
	if cfg.APIKey == "" {
		if logger != nil {
			logger.Warn("email API key not set, emails will only be logged")
		}
		return NewLogSender(logger)
	}
	return NewSendGrid(cfg)
}

// SendGrid sends mail through the SendGrid v3 API.
type SendGrid struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGrid creates a SendGrid sender.
func NewSendGrid(cfg Config) *SendGrid {
	return &SendGrid{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

// Send implements Sender. Any status of 400 or above is an error.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogSender writes messages to the logger instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.PlainText))
	return nil
}
