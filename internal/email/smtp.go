package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
)

const ProviderSMTP = "smtp"

// Ensure SMTP implements Sender
var _ Sender = (*SMTP)(nil)

// SMTP relays through a plain SMTP server. The server assigns no id we can read
// back, so the Message-ID header we generate is the provider message id.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

func NewSMTP(host string, port int, username, password string, timeout time.Duration) *SMTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTP{host: host, port: port, username: username, password: password, timeout: timeout}
}

func (s *SMTP) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(req.From))
	msg, err := buildMessage(req, msgID, time.Now())
	if err != nil {
		kind := appErrors.KindUnknown
		if errors.Is(err, errHeaderInjection) {
			kind = appErrors.KindInvalidAddress
		}
		return SendResult{}, appErrors.NewProviderError(ProviderSMTP, kind, err)
	}
	if err := s.deliver(ctx, req.From, req.To, msg); err != nil {
		return SendResult{}, appErrors.NewProviderError(ProviderSMTP, classifySMTP(err), err)
	}
	return SendResult{MessageID: msgID, Provider: ProviderSMTP}, nil
}

func (s *SMTP) deliver(ctx context.Context, from, to string, msg []byte) error {
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	deadline := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func classifySMTP(err error) appErrors.ProviderErrorKind {
	if isTimeout(err) {
		return appErrors.KindTimeout
	}
	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		switch {
		case tpe.Code == 501 || tpe.Code == 550 || tpe.Code == 551 || tpe.Code == 553:
			return appErrors.KindInvalidAddress
		case tpe.Code == 530 || tpe.Code == 535:
			return appErrors.KindNotConfigured
		case tpe.Code >= 500:
			return appErrors.KindRejected
		default:
			return appErrors.KindNetwork
		}
	}
	return appErrors.KindNetwork
}

var errHeaderInjection = errors.New("address contains a line break")

// buildMessage renders a multipart/alternative RFC 5322 message.
func buildMessage(req SendRequest, msgID string, now time.Time) ([]byte, error) {
	for _, addr := range []string{req.From, req.To, req.ReplyTo} {
		if strings.ContainsAny(addr, "\r\n") {
			return nil, fmt.Errorf("%w: %q", errHeaderInjection, addr)
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", req.From)
	header("To", req.To)
	if req.ReplyTo != "" {
		header("Reply-To", req.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", req.Subject))
	header("Message-ID", msgID)
	header("Date", now.UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", req.Text},
		{"text/html; charset=utf-8", req.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.ctype},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
