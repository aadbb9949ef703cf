package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
)

const ProviderBrevo = "brevo"

// Ensure Brevo implements Sender
var _ Sender = (*Brevo)(nil)

type Brevo struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewBrevo(apiKey, baseURL string, timeout time.Duration) *Brevo {
	if baseURL == "" {
		baseURL = "https://api.brevo.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Brevo{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type brevoAddress struct {
	Email string `json:"email"`
}

type brevoEmail struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	ReplyTo     *brevoAddress  `json:"replyTo,omitempty"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent,omitempty"`
	TextContent string         `json:"textContent,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (b *Brevo) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if b.apiKey == "" {
		return SendResult{}, appErrors.NewProviderError(ProviderBrevo, appErrors.KindNotConfigured, fmt.Errorf("brevo api key missing"))
	}
	payload := brevoEmail{
		Sender:      brevoAddress{Email: req.From},
		To:          []brevoAddress{{Email: req.To}},
		Subject:     req.Subject,
		HTMLContent: req.HTML,
		TextContent: req.Text,
	}
	if req.ReplyTo != "" {
		payload.ReplyTo = &brevoAddress{Email: req.ReplyTo}
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, appErrors.NewProviderError(ProviderBrevo, appErrors.KindUnknown, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v3/smtp/email", bytes.NewReader(buf))
	if err != nil {
		return SendResult{}, appErrors.NewProviderError(ProviderBrevo, appErrors.KindUnknown, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("api-key", b.apiKey)

	resp, err := b.http.Do(httpReq)
	if err != nil {
		kind := appErrors.KindNetwork
		if isTimeout(err) {
			kind = appErrors.KindTimeout
		}
		return SendResult{}, appErrors.NewProviderError(ProviderBrevo, kind, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out brevoResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode >= 300 {
		return SendResult{}, appErrors.NewProviderError(ProviderBrevo, classifyBrevo(resp.StatusCode, out),
			fmt.Errorf("brevo send failed: %s %s", resp.Status, strings.TrimSpace(out.Message)))
	}
	if out.MessageID == "" {
		return SendResult{}, appErrors.NewProviderError(ProviderBrevo, appErrors.KindUnknown, fmt.Errorf("brevo response has no messageId"))
	}
	return SendResult{MessageID: out.MessageID, Provider: ProviderBrevo}, nil
}

func classifyBrevo(status int, out brevoResponse) appErrors.ProviderErrorKind {
	switch {
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(out.Message), "email"):
		return appErrors.KindInvalidAddress
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return appErrors.KindNotConfigured
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return appErrors.KindTimeout
	case status >= 500 || status == http.StatusTooManyRequests:
		return appErrors.KindNetwork
	default:
		return appErrors.KindRejected
	}
}
