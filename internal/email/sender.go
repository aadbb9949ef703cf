package email

import (
	"context"
	"errors"
	"net"
)

// SendRequest is one transactional email to one recipient.
// Provider selects a specific implementation when routed through a Router;
// empty means the router default.
type SendRequest struct {
	From     string
	To       string
	Subject  string
	Text     string
	HTML     string
	ReplyTo  string
	Provider string
}

// SendResult carries the provider-assigned message identifier.
type SendResult struct {
	MessageID string
	Provider  string
}

// Sender delivers a single email. Implementations do not retry; every error
// they return is an *appErrors.ProviderError.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
