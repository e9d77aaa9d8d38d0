// File: internal/infra/adapters/token/upstream_gateway.go
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"activation-code-service/internal/config"
	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.TokenGateway = (*Gateway)(nil)

// Gateway asks the upstream issuance service for tokens and falls back to a
// local generator whenever that service is unset, slow or misbehaving.
type Gateway struct {
	baseURL   string
	endpoints map[model.CodeKind]string
	timeout   time.Duration
	client    *http.Client
	log       *zerolog.Logger
}

func NewGateway(cfg config.TokenConfig, logger *zerolog.Logger) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	compLog := logger.With().Str("component", "TokenGateway").Logger()
	return &Gateway{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		endpoints: map[model.CodeKind]string{
			model.CodeKindTrial:   cfg.TrialEndpoint,
			model.CodeKindPremium: cfg.PremiumEndpoint,
		},
		timeout: timeout,
		client:  &http.Client{},
		log:     &compLog,
	}
}

func (g *Gateway) Regenerate(kind model.CodeKind) string { return localToken(kind) }

func (g *Gateway) Acquire(ctx context.Context, req adapter.TokenRequest) adapter.TokenResult {
	endpoint := g.endpoints[req.Kind]
	if g.baseURL == "" || endpoint == "" {
		metrics.IncTokenAcquisition(string(adapter.TokenSourceLocal))
		return adapter.TokenResult{Token: localToken(req.Kind), Source: adapter.TokenSourceLocal}
	}

	start := time.Now()
	tok, exp, err := g.call(ctx, g.baseURL+endpoint, req)
	metrics.ObserveTokenUpstream(time.Since(start), err == nil)
	if err != nil {
		g.log.Warn().Err(err).Str("kind", string(req.Kind)).Msg("upstream token failed, using local generator")
		metrics.IncTokenAcquisition(string(adapter.TokenSourceUpstreamFallback))
		return adapter.TokenResult{
			Token:  localToken(req.Kind),
			Source: adapter.TokenSourceUpstreamFallback,
			Reason: err.Error(),
		}
	}
	metrics.IncTokenAcquisition(string(adapter.TokenSourceUpstream))
	return adapter.TokenResult{Token: tok, Source: adapter.TokenSourceUpstream, ExpiresAt: exp}
}

type upstreamRequest struct {
	NameCompany string `json:"nameCompany"`
	Email       string `json:"email"`
	CCCD        string `json:"cccd"`
	Type        string `json:"type"`
}

type upstreamResponse struct {
	Result *struct {
		TokenTrial   string `json:"tokenTrial"`
		TokenPremium string `json:"tokenPremium"`
		ExpiresAt    string `json:"expiresAt"`
	} `json:"result"`
}

func (g *Gateway) call(ctx context.Context, url string, req adapter.TokenRequest) (string, *time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, _ := json.Marshal(upstreamRequest{
		NameCompany: req.CompanyName,
		Email:       req.Email,
		CCCD:        req.NationalID,
		Type:        string(req.Kind),
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("%w after %s", domain.ErrUpstreamTimeout, g.timeout)
		}
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", nil, fmt.Errorf("%w: http %d", domain.ErrUpstreamFormat, resp.StatusCode)
	}

	var out upstreamResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("%w after %s", domain.ErrUpstreamTimeout, g.timeout)
		}
		return "", nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFormat, err)
	}
	if out.Result == nil {
		return "", nil, fmt.Errorf("%w: missing result", domain.ErrUpstreamFormat)
	}
	tok := out.Result.TokenPremium
	if req.Kind == model.CodeKindTrial {
		tok = out.Result.TokenTrial
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", nil, fmt.Errorf("%w: empty token", domain.ErrUpstreamFormat)
	}

	var exp *time.Time
	if out.Result.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, out.Result.ExpiresAt)
		if err != nil {
			g.log.Debug().Str("expires_at", out.Result.ExpiresAt).Msg("ignoring unparsable upstream expiry")
		} else {
			exp = &t
		}
	}
	return tok, exp, nil
}
