package mail

import (
	"fmt"
	"html"
	"log"
	"net/smtp"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
)

// Sender delivers one HTML email.
type Sender interface {
	SendMail(to, subject, body string) error
}

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewSMTPMailerFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD and SMTP_SENDER.
func NewSMTPMailerFromEnv() *SMTPMailer {
	m := &SMTPMailer{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		From:     env.GetEnv("SMTP_SENDER", ""),
	}
	if m.From == "" {
		m.From = fmt.Sprintf("no-reply@%s", env.GetEnv("PUBLIC_DOMAIN", "localhost"))
		log.Printf("SMTP_SENDER not set, using default sender: %s", m.From)
	}
	return m
}

func (m *SMTPMailer) SendMail(to, subject, body string) error {
	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)

	err := smtp.SendMail(addr, auth, m.From, []string{to}, buildMessage(m.From, to, subject, body))
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)
}

// SignInEmail renders the magic-link email.
func SignInEmail(link string) (subject, body string) {
	escaped := html.EscapeString(link)
	subject = "Sign in to GitData Edit"
	body = fmt.Sprintf(`<p>Click the link below to sign in to GitData Edit.</p>
<p><a href="%s">Sign in</a></p>
<p>If the button does not work, paste this URL into your browser:<br>%s</p>
<p>The link expires in 24 hours. If you did not request it, you can ignore this email.</p>`, escaped, escaped)
	return subject, body
}
