package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"activation-code-service/internal/config"
	"activation-code-service/internal/domain/ports/adapter"
)

var _ adapter.EmailSender = (*BrevoSender)(nil)

// BrevoSender delivers through the Brevo transactional email API.
type BrevoSender struct {
	apiURL      string
	apiKey      string
	fromAddress string
	fromName    string
	client      *http.Client
}

func NewBrevoSender(cfg config.BrevoConfig, fromAddress, fromName string) *BrevoSender {
	return &BrevoSender{
		apiURL:      cfg.APIURL,
		apiKey:      cfg.APIKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *BrevoSender) Name() string { return "brevo" }

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
}

func (s *BrevoSender) Send(ctx context.Context, msg adapter.EmailMessage) (string, error) {
	b, _ := json.Marshal(brevoRequest{
		Sender:      brevoContact{Email: s.fromAddress, Name: s.fromName},
		To:          []brevoContact{{Email: msg.To, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTMLBody,
		TextContent: msg.TextBody,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		MessageID string `json:"messageId"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return "", fmt.Errorf("brevo http %d: %s", resp.StatusCode, out.Message)
		}
		return "", fmt.Errorf("brevo http %d", resp.StatusCode)
	}
	return out.MessageID, nil
}
