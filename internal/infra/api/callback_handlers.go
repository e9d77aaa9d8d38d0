package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/usecase"

	"github.com/go-chi/chi/v5"
)

// decodeCallbackBody flattens a wallet notification into strings. The
// wallet sends numbers for amount/resultCode/transId but test tools often
// send strings, so both are accepted.
func decodeCallbackBody(r io.Reader) (map[string]string, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out, nil
}

func queryFields(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}

func callbackFrom(fields map[string]string, transport string) (usecase.Callback, error) {
	cb := usecase.Callback{
		OrderID:      strings.TrimSpace(fields["orderId"]),
		ResultCode:   strings.TrimSpace(fields["resultCode"]),
		GatewayTxnID: fields["transId"],
		Message:      fields["message"],
		Transport:    transport,
	}
	if cb.OrderID == "" {
		return cb, fmt.Errorf("%w: orderId is required", domain.ErrInvalidArgument)
	}
	if s := strings.TrimSpace(fields["amount"]); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return cb, fmt.Errorf("%w: amount %q", domain.ErrInvalidArgument, s)
		}
		cb.Amount = &n
	}
	return cb, nil
}

func (s *Server) signatureOK(fields map[string]string) bool {
	if s.deps.Verifier == nil {
		return true
	}
	return s.deps.Verifier.VerifyCallback(fields, fields["signature"])
}

// handleNotify is the server-to-server transport. It always answers with a
// {status, ...} envelope.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeCallbackBody(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"status": "error", "message": "Invalid request body"})
		return
	}
	cb, err := callbackFrom(fields, usecase.TransportNotify)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"status": "error", "message": err.Error()})
		return
	}
	ctx := logging.WithOrderID(r.Context(), cb.OrderID)
	l := logging.With(ctx, s.log)
	if !s.signatureOK(fields) {
		l.Warn().Msg("notify rejected: bad signature")
		writeJSON(w, http.StatusBadRequest, envelope{"status": "error", "message": "Invalid signature"})
		return
	}

	res, err := s.deps.Reconcile.Reconcile(ctx, cb)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{"status": "error", "message": "Transaction not found"})
		return
	case errors.Is(err, domain.ErrReconcileInProgress):
		writeJSON(w, http.StatusConflict, envelope{"status": "error", "message": "Reconciliation in progress", "orderId": cb.OrderID})
		return
	case err != nil:
		l.Error().Err(err).Msg("notify processing failed")
		writeJSON(w, http.StatusInternalServerError, envelope{"status": "error", "message": "Processing error", "error": err.Error()})
		return
	}

	switch res.Action {
	case usecase.OutcomeIssue:
		writeJSON(w, http.StatusOK, envelope{
			"status":  "success",
			"message": "Payment processed successfully",
			"orderId": cb.OrderID,
			"code":    res.Code.Code,
		})
	case usecase.OutcomeHold:
		writeJSON(w, http.StatusOK, envelope{"status": "pending", "orderId": cb.OrderID, "resultCode": cb.ResultCode})
	default:
		writeJSON(w, http.StatusOK, envelope{"status": "failed", "orderId": cb.OrderID, "resultCode": cb.ResultCode})
	}
}

// handleRedirect is the browser transport: every outcome ends in a redirect
// to the portal.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	fields := queryFields(r.URL.Query())
	cb, err := callbackFrom(fields, usecase.TransportRedirect)
	if err != nil {
		s.redirectError(w, r, "invalid_request", err.Error())
		return
	}
	ctx := logging.WithOrderID(r.Context(), cb.OrderID)
	l := logging.With(ctx, s.log)
	if !s.signatureOK(fields) {
		l.Warn().Msg("redirect rejected: bad signature")
		s.redirectError(w, r, "invalid_signature", "")
		return
	}

	res, err := s.deps.Reconcile.Reconcile(ctx, cb)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.redirectError(w, r, "transaction_not_found", "")
		return
	case err != nil:
		l.Error().Err(err).Msg("redirect processing failed")
		s.redirectError(w, r, "processing_error", err.Error())
		return
	}

	switch res.Action {
	case usecase.OutcomeIssue:
		transID := cb.GatewayTxnID
		if transID == "" {
			transID = "TEST"
		}
		amount := fields["amount"]
		if amount == "" && res.Transaction != nil {
			amount = strconv.FormatInt(res.Transaction.Amount, 10)
		}
		q := url.Values{}
		q.Set("orderId", cb.OrderID)
		q.Set("transId", transID)
		q.Set("amount", amount)
		q.Set("code", res.Code.Code)
		http.Redirect(w, r, s.opts.PortalURL+"/payment-success?"+q.Encode(), http.StatusFound)
	case usecase.OutcomeHold:
		s.redirectError(w, r, "payment_pending", cb.Message)
	default:
		s.redirectError(w, r, "payment_failed", cb.Message)
	}
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, reason, message string) {
	q := url.Values{}
	q.Set("error", reason)
	if message != "" {
		q.Set("message", message)
	}
	http.Redirect(w, r, s.opts.PortalURL+"/payment-error?"+q.Encode(), http.StatusFound)
}

type paymentDataView struct {
	ProductType string `json:"productType"`
	Email       string `json:"email"`
	NameCompany string `json:"nameCompany"`
	NationalID  string `json:"cccd"`
}

type callbackDetailsView struct {
	TransID    *string `json:"transId,omitempty"`
	ResultCode *string `json:"resultCode,omitempty"`
	Message    *string `json:"message,omitempty"`
}

type statusView struct {
	Success          bool                 `json:"success"`
	OrderID          string               `json:"orderId"`
	CallbackReceived bool                 `json:"callbackReceived"`
	Status           string               `json:"status"`
	PaymentData      paymentDataView      `json:"paymentData"`
	Details          *callbackDetailsView `json:"details"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	t, err := s.deps.Txns.ByOrderID(r.Context(), orderID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, envelope{
			"success":          false,
			"message":          "Transaction not found",
			"callbackReceived": false,
			"status":           "not_found",
		})
		return
	}
	if err != nil {
		writeErr(w, err, "Error checking callback status")
		return
	}

	v := statusView{
		Success:          true,
		OrderID:          t.OrderID,
		CallbackReceived: t.CallbackReceived(),
		Status:           string(t.Status),
		PaymentData: paymentDataView{
			ProductType: string(t.ProductKind()),
			Email:       t.Context.Email,
			NameCompany: t.Context.NameCompany,
			NationalID:  maskNationalID(t.Context.NationalID),
		},
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.GatewayTxnID != nil || t.ResultCode != nil || t.Message != nil {
		v.Details = &callbackDetailsView{TransID: t.GatewayTxnID, ResultCode: t.ResultCode, Message: t.Message}
	}
	writeJSON(w, http.StatusOK, v)
}
