package api

import (
	"errors"
	"net/http"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type codeRequestBody struct {
	Email       string `json:"email"`
	NameCompany string `json:"nameCompany"`
	NationalID  string `json:"cccd"`
}

func (b codeRequestBody) toRequest() usecase.CodeRequest {
	return usecase.CodeRequest{Email: b.Email, NameCompany: b.NameCompany, NationalID: b.NationalID}
}

type codeView struct {
	Code        string           `json:"code"`
	Kind        model.CodeKind   `json:"type"`
	Status      model.CodeStatus `json:"status"`
	ExpiresAt   *time.Time       `json:"expiresAt"`
	ActivatedAt *time.Time       `json:"activatedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func viewOf(c *model.Code) *codeView {
	if c == nil {
		return nil
	}
	return &codeView{
		Code:        c.Code,
		Kind:        c.Kind,
		Status:      c.Status,
		ExpiresAt:   c.ExpiresAt,
		ActivatedAt: c.ActivatedAt,
		CreatedAt:   c.CreatedAt,
	}
}

func (s *Server) handleRequestTrial(w http.ResponseWriter, r *http.Request) {
	var body codeRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err, "Invalid request body")
		return
	}
	res, err := s.deps.Requests.RequestTrial(r.Context(), body.toRequest())
	switch {
	case errors.Is(err, domain.ErrTrialAlreadyGranted):
		writeErr(w, err, "Trial code already issued for this CCCD")
		return
	case errors.Is(err, domain.ErrNationalIDMismatch):
		writeErr(w, err, "This email is registered with a different CCCD")
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		writeErr(w, err, "email, nameCompany and cccd are required")
		return
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("trial request failed")
		writeErr(w, err, "Could not create a trial code, please try again later")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": "Your trial code has been sent to your email",
		"data": envelope{
			"code":      res.Code.Code,
			"type":      res.Code.Kind,
			"expiresAt": res.Code.ExpiresAt,
			"source":    res.Source,
		},
	})
}

func (s *Server) handleRequestPremium(w http.ResponseWriter, r *http.Request) {
	var body codeRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err, "Invalid request body")
		return
	}
	res, err := s.deps.Requests.RequestPremium(r.Context(), body.toRequest())
	switch {
	case errors.Is(err, domain.ErrNationalIDMismatch):
		writeErr(w, err, "This email is registered with a different CCCD")
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		writeErr(w, err, "email, nameCompany and cccd are required")
		return
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("premium request failed")
		writeErr(w, err, "Could not create the payment request, please try again later")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success":    true,
		"message":    "Redirecting to the payment page...",
		"paymentUrl": res.PayURL,
		"orderId":    res.Transaction.OrderID,
		"amount":     res.Transaction.Amount,
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Codes.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeErr(w, err, "Error checking code validity")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"valid":   res.Valid,
		"reason":  res.Reason,
		"code":    viewOf(res.Code),
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code   string `json:"code"`
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err, "Invalid request body")
		return
	}
	if body.Code == "" || body.UserID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "message": "code and userId are required"})
		return
	}
	c, err := s.deps.Codes.Activate(r.Context(), body.Code, body.UserID)
	if err != nil {
		writeErr(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Code activated successfully", "code": viewOf(c)})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err, "Invalid request body")
		return
	}
	if body.Code == "" {
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "message": "Code is required in request body"})
		return
	}
	c, err := s.deps.Codes.Deactivate(r.Context(), body.Code)
	if err != nil {
		writeErr(w, err, "")
		return
	}
	logging.With(r.Context(), s.log).Info().Str("code_id", c.ID).Str("session", SessionID(r.Context())).Msg("code deactivated")
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Code deactivated successfully", "code": viewOf(c)})
}
