package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

// Hooks allow tests to override SMTP sending behavior.
var sendMailHook = smtp.SendMail
var sendMailSSLHook = sendMailSSL

const (
	gmailHost = "smtp.gmail.com"
	gmailPort = 465
)

// Email sends notifications via SMTP. Port 465 uses implicit TLS; any other
// port goes through smtp.SendMail, which upgrades with STARTTLS when offered.
// User doubles as the sender address, which is how application passwords work
// for GMail and most hosted SMTP services.
type Email struct {
	Host, User, Pass string
	Port             int
	To               []string
}

// NewGmail returns an Email provider pinned to GMail's SMTP server. Empty
// sender or password fall back to the GMAIL_USERNAME and GMAIL_PASSWORD
// environment variables; if neither source yields credentials an error is
// returned.
func NewGmail(recipients []string, sender, password string) (*Email, error) {
	if sender == "" {
		sender = os.Getenv("GMAIL_USERNAME")
	}
	if password == "" {
		password = os.Getenv("GMAIL_PASSWORD")
	}
	if sender == "" || password == "" {
		return nil, errors.New("gmail credentials not provided and not set in GMAIL_USERNAME/GMAIL_PASSWORD")
	}
	if len(recipients) == 0 {
		return nil, errors.New("no gmail recipients provided")
	}
	return &Email{Host: gmailHost, Port: gmailPort, User: sender, Pass: password, To: recipients}, nil
}

// Name returns the provider name.
func (e *Email) Name() string {
	_ = e
	return "Email"
}

// Send sends an email with the provided title as subject and message as body.
// An empty title omits the Subject header.
func (e *Email) Send(ctx context.Context, title, message string) error {
	_ = ctx
	if len(e.To) == 0 {
		return errors.New("no email recipients configured")
	}
	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	auth := smtp.PlainAuth("", e.User, e.Pass, e.Host)
	msg := e.buildMessage(title, message)
	if e.Port == 465 {
		return sendMailSSLHook(addr, e.Host, auth, e.User, e.To, msg)
	}
	return sendMailHook(addr, auth, e.User, e.To, msg)
}

func (e *Email) buildMessage(title, message string) []byte {
	var b strings.Builder
	b.WriteString("From: " + e.User + "\r\n")
	b.WriteString("To: " + strings.Join(e.To, ", ") + "\r\n")
	if title != "" {
		b.WriteString("Subject: " + title + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(message)
	return []byte(b.String())
}

// sendMailSSL delivers a message over an implicit-TLS SMTP connection
// (the port 465 convention, predating STARTTLS).
func sendMailSSL(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}
