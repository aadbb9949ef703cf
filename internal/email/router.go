package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unclebandit/garage-campaigns/internal/config"
	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
)

// Ensure Router implements Sender
var _ Sender = (*Router)(nil)

// Router dispatches to a named provider, falling back to the configured default.
type Router struct {
	def     string
	senders map[string]Sender
}

func NewRouter(cfg config.EmailConfig, logger zerolog.Logger) *Router {
	return &Router{
		def: strings.ToLower(cfg.Provider),
		senders: map[string]Sender{
			ProviderBrevo: NewBrevo(cfg.BrevoAPIKey, cfg.BrevoBaseURL, cfg.Timeout),
			ProviderSMTP:  NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.Timeout),
			ProviderLog:   NewLog(logger),
		},
	}
}

func (r *Router) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if name == "" {
		name = r.def
	}
	s, ok := r.senders[name]
	if !ok {
		return SendResult{}, appErrors.NewProviderError(name, appErrors.KindNotConfigured, fmt.Errorf("unknown email provider %q", name))
	}
	return s.Send(ctx, req)
}
