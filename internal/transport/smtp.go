package transport

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/simplyinspect/permwatch/internal/config"
	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

// SMTPSender delivers messages over SMTP with optional PLAIN auth.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender creates an SMTP-backed sender
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one message. SMTP 5xx responses and malformed
// recipients are permanent; connection and 4xx failures are transient.
func (s *SMTPSender) Send(ctx context.Context, msg *notification.Message) error {
	if msg.Recipient == "" || !strings.Contains(msg.Recipient, "@") {
		return errors.PermanentDelivery(
			fmt.Sprintf("invalid recipient address %q", msg.Recipient), nil)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	payload := s.buildPayload(msg)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.cfg.FromAddress, []string{msg.Recipient}, payload)
	}()

	select {
	case <-ctx.Done():
		return errors.TransientDelivery("smtp send canceled", ctx.Err())
	case err := <-done:
		if err != nil {
			return classifySMTPError(err)
		}
		return nil
	}
}

// buildPayload renders RFC 5322 headers plus body. Messages with an
// HTML body go out as multipart/alternative.
func (s *SMTPSender) buildPayload(msg *notification.Message) []byte {
	var b strings.Builder

	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.FromAddress)
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTMLBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Body)
		return []byte(b.String())
	}

	const boundary = "permwatch-alt-boundary"
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Body)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}

// classifySMTPError maps an smtp.SendMail failure to the delivery error
// taxonomy. Server replies start with a three-digit status code.
func classifySMTPError(err error) error {
	text := err.Error()
	if len(text) >= 3 {
		if code, convErr := strconv.Atoi(text[:3]); convErr == nil && code >= 500 && code < 600 {
			return errors.PermanentDelivery("smtp server rejected message", err)
		}
	}
	return errors.TransientDelivery("smtp delivery failed", err)
}
