package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sentora/sentora/pkg/types"
)

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	host string
	port int
	user string
	pass string
	from string
	to   []string
}

// NewEmailChannel creates an SMTP channel. user and pass may be empty for
// unauthenticated relays.
func NewEmailChannel(host string, port int, user, pass, from string, to []string) *EmailChannel {
	if port == 0 {
		port = 587
	}
	return &EmailChannel{
		host: host,
		port: port,
		user: user,
		pass: pass,
		from: from,
		to:   to,
	}
}

// Kind implements Channel.
func (c *EmailChannel) Kind() types.ChannelKind {
	return types.ChannelEmail
}

// Send implements Channel. The connection honors ctx; STARTTLS is used
// when the server offers it.
func (c *EmailChannel) Send(ctx context.Context, alert *types.Alert) error {
	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if c.user != "" {
		auth := smtp.PlainAuth("", c.user, c.pass, c.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range c.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(c.buildMessage(alert))); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing message: %w", err)
	}

	return client.Quit()
}

func (c *EmailChannel) buildMessage(alert *types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.to, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s on %s\r\n", strings.ToUpper(string(alert.Severity)), alert.Kind, alert.AgentName)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "%s\r\n\r\n", alert.Message)
	fmt.Fprintf(&b, "Agent:     %s (%s)\r\n", alert.AgentName, alert.Hostname)
	fmt.Fprintf(&b, "Kind:      %s\r\n", alert.Kind)
	if alert.Subject != "" {
		fmt.Fprintf(&b, "Subject:   %s\r\n", alert.Subject)
	}
	fmt.Fprintf(&b, "Severity:  %s\r\n", alert.Severity)
	fmt.Fprintf(&b, "Triggered: %s\r\n", alert.FirstTriggered.Format(time.RFC3339))
	fmt.Fprintf(&b, "Alert ID:  %s\r\n", alert.ID)
	return b.String()
}
