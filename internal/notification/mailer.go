package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/strategico/tenant-api/internal/config"
)

// Mailer delivers transactional email. Delivery is best-effort: callers log
// failures and fall back to showing the raw link instead of failing the
// triggering workflow.
type Mailer interface {
	SendInvitation(recipientEmail, tenantName, role, inviteURL string) error
	SendVerification(recipientEmail, verifyURL string) error
	SendPasswordReset(recipientEmail, resetURL string) error
}

// SMTPMailer sends email using an SMTP server.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer constructs a new SMTPMailer from config.
func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}, nil
}

// SendInvitation dispatches an invitation email to a prospective member.
func (m *SMTPMailer) SendInvitation(recipientEmail, tenantName, role, inviteURL string) error {
	subject := fmt.Sprintf("You've been invited to join %s", tenantName)

	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString(fmt.Sprintf("You've been invited to join %s as a %s.\n", tenantName, role))
	body.WriteString("Click the link below to accept the invitation and create your account:\n\n")
	body.WriteString(inviteURL + "\n\n")
	body.WriteString("This invitation will expire in 7 days. If you didn't expect this invitation, you can safely ignore this email.\n")

	return m.send(recipientEmail, subject, body.String())
}

// SendVerification dispatches an email-verification link to a new user.
func (m *SMTPMailer) SendVerification(recipientEmail, verifyURL string) error {
	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString("Confirm your email address by clicking the link below:\n\n")
	body.WriteString(verifyURL + "\n\n")
	body.WriteString("If you did not create an account, you can ignore this email.\n")

	return m.send(recipientEmail, "Verify your email address", body.String())
}

// SendPasswordReset dispatches a single-use password reset link.
func (m *SMTPMailer) SendPasswordReset(recipientEmail, resetURL string) error {
	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString("We received a request to reset your password. Click the link below to choose a new one:\n\n")
	body.WriteString(resetURL + "\n\n")
	body.WriteString("This link expires in one hour. If you did not request a reset, you can ignore this email.\n")

	return m.send(recipientEmail, "Reset your password", body.String())
}

func (m *SMTPMailer) send(recipient, subject, body string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, recipient, subject)

	message := []byte(headers + body)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if strings.TrimSpace(m.username) != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{recipient}, message)
}
