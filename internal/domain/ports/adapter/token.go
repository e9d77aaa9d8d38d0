package adapter

import (
	"context"
	"time"

	"activation-code-service/internal/domain/model"
)

type TokenSource string

const (
	TokenSourceLocal            TokenSource = "local"
	TokenSourceUpstream         TokenSource = "upstream"
	TokenSourceUpstreamFallback TokenSource = "upstream-fallback"
)

type TokenRequest struct {
	Kind        model.CodeKind
	CompanyName string
	Email       string
	NationalID  string
}

// TokenResult always carries a usable token. Reason explains a fallback.
type TokenResult struct {
	Token     string
	Source    TokenSource
	ExpiresAt *time.Time
	Reason    string
}

// TokenGateway obtains the string that becomes a Code, from the upstream
// issuance service when possible and from a local generator otherwise.
// Acquire never fails.
type TokenGateway interface {
	Acquire(ctx context.Context, req TokenRequest) TokenResult
	// Regenerate draws a fresh local token without calling upstream.
	Regenerate(kind model.CodeKind) string
}
