package external

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"

	"loadpay/internal/types"
)

// SMTPMailerConfig holds the SMTP transport settings. The defaults in
// configuration target Gmail's submission endpoint (smtp.gmail.com:587 with
// STARTTLS and an app password).
type SMTPMailerConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Logger      *slog.Logger
}

// SMTPMailer implements MailProvider over plain SMTP with STARTTLS. Each
// Send dials a fresh connection; the volume here is one message per payment,
// so connection pooling buys nothing.
type SMTPMailer struct {
	cfg    SMTPMailerConfig
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer from the given transport settings.
func NewSMTPMailer(cfg SMTPMailerConfig) *SMTPMailer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send transmits a pre-rendered message. The context deadline bounds the
// whole SMTP conversation, including the dial.
func (m *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return m.mailError("dial failed", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return m.mailError("handshake failed", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return m.mailError("STARTTLS failed", err)
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return m.mailError("authentication failed", err)
		}
	}

	if err := client.Mail(m.cfg.FromAddress); err != nil {
		return m.mailError("MAIL FROM rejected", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return m.mailError("RCPT TO rejected", err)
	}

	w, err := client.Data()
	if err != nil {
		return m.mailError("DATA rejected", err)
	}
	if _, err := w.Write(m.buildMessage(msg)); err != nil {
		w.Close()
		return m.mailError("message write failed", err)
	}
	if err := w.Close(); err != nil {
		return m.mailError("message not accepted", err)
	}

	return client.Quit()
}

// buildMessage assembles the RFC 5322 message bytes. When an HTML body is
// present the message is multipart/alternative with the plain-text part
// first, so clients prefer the richer rendering.
func (m *SMTPMailer) buildMessage(msg MailMessage) []byte {
	var b strings.Builder

	from := m.cfg.FromAddress
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromAddress)
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTMLBody == "" {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.TextBody)
		return []byte(b.String())
	}

	var body strings.Builder
	mw := multipart.NewWriter(&body)

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=\"UTF-8\"")
	if part, err := mw.CreatePart(textHeader); err == nil {
		part.Write([]byte(msg.TextBody))
	}

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=\"UTF-8\"")
	if part, err := mw.CreatePart(htmlHeader); err == nil {
		part.Write([]byte(msg.HTMLBody))
	}
	mw.Close()

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	b.WriteString(body.String())
	return []byte(b.String())
}

// mailError wraps a transport failure as an upstream mail AppError.
func (m *SMTPMailer) mailError(message string, err error) error {
	return types.NewAppError(
		types.ErrCodeUpstreamMail,
		"SMTP "+message,
		err,
	)
}

var _ MailProvider = (*SMTPMailer)(nil)
