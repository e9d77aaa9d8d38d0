// File: internal/infra/adapters/payment/momo_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"activation-code-service/internal/config"
	"activation-code-service/internal/domain/ports/adapter"

	"github.com/oklog/ulid/v2"
)

var _ adapter.PaymentGateway = (*MoMoGateway)(nil)

// MoMoGateway implements adapter.PaymentGateway against the MoMo v2 create API.
type MoMoGateway struct {
	cfg         config.MoMoConfig
	ipnURL      string
	redirectURL string
	client      *http.Client
}

// NewMoMoGateway builds a gateway whose callbacks point at ipnURL and redirectURL.
func NewMoMoGateway(cfg config.MoMoConfig, ipnURL, redirectURL string) (*MoMoGateway, error) {
	if cfg.PartnerCode == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("momo: partner code, access key and secret key are required")
	}
	for _, u := range []string{cfg.Endpoint, ipnURL, redirectURL} {
		if _, err := url.ParseRequestURI(u); err != nil {
			return nil, fmt.Errorf("momo: invalid url %q: %w", u, err)
		}
	}
	if cfg.RequestType == "" {
		cfg.RequestType = "captureWallet"
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	return &MoMoGateway{
		cfg:         cfg,
		ipnURL:      ipnURL,
		redirectURL: redirectURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *MoMoGateway) Name() string { return "momo" }

// NewOrderID prefixes a ULID with the partner code; ULIDs sort by creation time.
func (g *MoMoGateway) NewOrderID() string {
	return g.cfg.PartnerCode + ulid.Make().String()
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

type momoCreateResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
	PayURL      string `json:"payUrl"`
}

// signCreate returns the signature of a create request.
func (g *MoMoGateway) signCreate(r momoCreateRequest) string {
	return sign(g.cfg.SecretKey, rawSignature(createFields, map[string]string{
		"accessKey":   r.AccessKey,
		"amount":      strconv.FormatInt(r.Amount, 10),
		"extraData":   r.ExtraData,
		"ipnUrl":      r.IpnURL,
		"orderId":     r.OrderID,
		"orderInfo":   r.OrderInfo,
		"partnerCode": r.PartnerCode,
		"redirectUrl": r.RedirectURL,
		"requestId":   r.RequestID,
		"requestType": r.RequestType,
	}))
}

func (g *MoMoGateway) CreatePayment(ctx context.Context, req adapter.PaymentRequest) (string, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = req.OrderID
	}
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = g.cfg.OrderInfo
	}
	body := momoCreateRequest{
		PartnerCode: g.cfg.PartnerCode,
		AccessKey:   g.cfg.AccessKey,
		RequestID:   requestID,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		OrderInfo:   orderInfo,
		RedirectURL: g.redirectURL,
		IpnURL:      g.ipnURL,
		ExtraData:   req.ExtraData,
		RequestType: g.cfg.RequestType,
		Lang:        g.cfg.Lang,
	}
	body.Signature = g.signCreate(body)

	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out momoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("momo: decode response (http %d): %w", resp.StatusCode, err)
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		return "", fmt.Errorf("momo: create failed: %d %s", out.ResultCode, out.Message)
	}
	return out.PayURL, nil
}

// VerifyCallback checks the signature MoMo attaches to IPN and redirect callbacks.
func (g *MoMoGateway) VerifyCallback(fields map[string]string, signature string) bool {
	data := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data["accessKey"] = g.cfg.AccessKey
	return VerifyMoMoSignature(g.cfg.SecretKey, data, signature)
}
