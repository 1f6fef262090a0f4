package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/gallery-api/pkg/circuitbreaker"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"github.com/wneessen/go-mail"
)

// Email is one outbound message
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers email
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPConfig configures the SMTP mailer
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends email through an SMTP relay
type SMTPMailer struct {
	client  *mail.Client
	from    string
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

// NewSMTPMailer creates a mailer for the given relay
func NewSMTPMailer(cfg SMTPConfig, logger logger.Logger) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)

	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &SMTPMailer{
		client: client,
		from:   cfg.From,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "smtp",
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
		}),
		logger: logger,
	}, nil
}

// Breaker exposes the relay's circuit breaker for health reporting
func (m *SMTPMailer) Breaker() *circuitbreaker.CircuitBreaker {
	return m.breaker
}

// Send delivers one message
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	msg := mail.NewMsg()

	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.from, err)
	}

	if err := msg.To(email.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", email.To, err)
	}

	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextHTML, email.HTML)

	err := m.breaker.Execute(func() error {
		return m.client.DialAndSendWithContext(ctx, msg)
	}, nil)

	if err != nil {
		m.logger.Error("Failed to send email", "error", err, "to", email.To, "subject", email.Subject)
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("Email sent", "to", email.To, "subject", email.Subject)
	return nil
}

// LogMailer only logs messages; used when no SMTP relay is configured
type LogMailer struct {
	logger logger.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger logger.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message
func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.Info("Email (not sent, no SMTP relay configured)", "to", email.To, "subject", email.Subject)
	return nil
}
