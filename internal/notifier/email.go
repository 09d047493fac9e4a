package notifier

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/tigertag/tigertag-server/internal/config"
)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails notifications through an SMTP relay.
type EmailNotifier struct {
	name string
	addr string
	from string
	to   []string
	auth smtp.Auth
	now  func() time.Time
	send sendFunc
}

// NewEmailNotifier builds an email notifier. HOST, FROM and TO are
// required; TO is a comma separated list. PORT defaults to 25. USERNAME and
// PASSWORD enable PLAIN auth.
func NewEmailNotifier(cfg config.PluginConfig, _ Deps) (Notifier, error) {
	host, err := cfg.Prop("HOST")
	if err != nil {
		return nil, err
	}
	from, err := cfg.Prop("FROM")
	if err != nil {
		return nil, err
	}
	rawTo, err := cfg.Prop("TO")
	if err != nil {
		return nil, err
	}
	port, err := cfg.IntProp("PORT", 25)
	if err != nil {
		return nil, err
	}

	var to []string
	for _, addr := range strings.Split(rawTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	e := &EmailNotifier{
		name: cfg.ID,
		addr: net.JoinHostPort(host, fmt.Sprint(port)),
		from: from,
		to:   to,
		now:  time.Now,
		send: smtp.SendMail,
	}
	if user := cfg.PropOr("USERNAME", ""); user != "" {
		e.auth = smtp.PlainAuth("", user, cfg.PropOr("PASSWORD", ""), host)
	}
	return e, nil
}

// Name implements Notifier.
func (e *EmailNotifier) Name() string { return e.name }

// Notify implements Notifier.
func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.send(e.addr, e.auth, e.from, e.to, e.message(n)); err != nil {
		return fmt.Errorf("send mail via %s: %w", e.addr, err)
	}
	return nil
}

func (e *EmailNotifier) message(n Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", n.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(n.Message, "\n", "\r\n"))
	return []byte(b.String())
}
