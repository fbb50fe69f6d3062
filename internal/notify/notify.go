package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
)

// SMTPConfig holds mail server settings. An empty Host disables mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether a mail server is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends job outcome emails over SMTP.
type Mailer struct {
	cfg  SMTPConfig
	send SendFunc
}

// New returns the notifier for cfg: a Mailer when SMTP is configured,
// otherwise a LogNotifier.
func New(cfg SMTPConfig) jobs.Notifier {
	if !cfg.Enabled() {
		logging.Info("SMTP not configured, job notifications will only be logged")
		return LogNotifier{}
	}
	return NewMailer(cfg, smtp.SendMail)
}

// NewMailer builds a Mailer that delivers through send.
func NewMailer(cfg SMTPConfig, send SendFunc) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = "noreply@localhost"
	}
	return &Mailer{cfg: cfg, send: send}
}

func (m *Mailer) NotifySuccess(ctx context.Context, address, jobName string) error {
	subject := fmt.Sprintf("Your video '%s' is ready", jobName)
	body := fmt.Sprintf("Your video '%s' has been processed and is now ready for streaming.\n", jobName)
	return m.deliver(ctx, address, subject, body)
}

func (m *Mailer) NotifyFailure(ctx context.Context, address, jobName, reason string) error {
	subject := fmt.Sprintf("Processing failed for '%s'", jobName)
	body := fmt.Sprintf("There was a problem processing your video '%s'.\n\nError details: %s\n\n"+
		"Please try uploading the video again.\n", jobName, reason)
	return m.deliver(ctx, address, subject, body)
}

func (m *Mailer) deliver(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient address")
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient address %q", to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	start := time.Now()
	if err := m.send(addr, auth, m.cfg.From, []string{to}, m.message(to, subject, body)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	logging.Debug("Sent %q to %s in %v", subject, to, time.Since(start))
	return nil
}

func (m *Mailer) message(to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogNotifier writes outcomes to the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) NotifySuccess(_ context.Context, address, jobName string) error {
	logging.Info("Notification to %s: video %q is ready", address, jobName)
	return nil
}

func (LogNotifier) NotifyFailure(_ context.Context, address, jobName, reason string) error {
	logging.Info("Notification to %s: video %q failed: %s", address, jobName, reason)
	return nil
}
