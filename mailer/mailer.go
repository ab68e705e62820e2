package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/truesplit/tsauth"
	"github.com/wneessen/go-mail"
)

// Subject is the subject line of every OTP mail.
const Subject = "Your OTP for TrueSplit"

// Body renders the plain-text OTP message.
func Body(code string, validity time.Duration) string {
	return fmt.Sprintf("Your OTP code is: %s\nIt is valid for %d seconds.", code, int(validity.Seconds()))
}

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Plain disables STARTTLS, for local relays only.
	Plain   bool
	Timeout time.Duration
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends OTP codes over SMTP.
type SMTPMailer struct {
	from   string
	client sender
}

var _ tsauth.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds a client for cfg. No connection is made until the
// first send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}
	opts := []mail.Option{
		mail.WithPort(port),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Plain {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPMailer{from: cfg.From, client: client}, nil
}

// SendOTP mails code to email.
func (m *SMTPMailer) SendOTP(ctx context.Context, email, code string, validity time.Duration) error {
	msg, err := m.message(email, code, validity)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) message(email, code string, validity time.Duration) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(Subject)
	msg.SetBodyString(mail.TypeTextPlain, Body(code, validity))
	return msg, nil
}

// LogMailer logs codes instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

var _ tsauth.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With(slog.String("component", "mailer"))}
}

func (m *LogMailer) SendOTP(ctx context.Context, email, code string, validity time.Duration) error {
	m.logger.InfoContext(ctx, "otp mail not sent, smtp unconfigured",
		slog.String("to", email),
		slog.String("subject", Subject),
		slog.String("code", code),
		slog.Duration("validity", validity),
	)
	return nil
}
