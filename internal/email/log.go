package email

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const ProviderLog = "log"

var _ Sender = (*Log)(nil)

// Log is a development Sender: it records the email in the log and accepts it.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log { return &Log{logger: logger} }

func (l *Log) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	id := uuid.NewString()
	l.logger.Info().
		Str("message_id", id).
		Str("from", req.From).
		Str("to", req.To).
		Str("reply_to", req.ReplyTo).
		Str("subject", req.Subject).
		Int("html_bytes", len(req.HTML)).
		Int("text_bytes", len(req.Text)).
		Msg("email accepted by log provider")
	return SendResult{MessageID: id, Provider: ProviderLog}, nil
}
