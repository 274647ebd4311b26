package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/api/httpx"
	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
	"github.com/baharkarakas/qrcharge-backend/internal/auth"
	"github.com/baharkarakas/qrcharge-backend/internal/middleware"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

type WithdrawalHandler struct {
	Svc *services.Services
}

type withdrawReq struct {
	Amount         decimal.Decimal `json:"amount"`
	PayoutMethodID string          `json:"payout_method_id"`
}

func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req withdrawReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if err := validate.Collect(validate.Required("payout_method_id", req.PayoutMethodID)); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	wr, err := h.Svc.Withdrawals.Request(r.Context(), p.UserID, req.Amount, req.PayoutMethodID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"request_id": wr.ID, "status": wr.Status})
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	limit, offset := pagination(r)
	list, err := h.Svc.Withdrawals.List(r.Context(), p.UserID, limit, offset)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if list == nil {
		list = []models.WithdrawalRequest{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	owner := p.UserID
	if p.Role == auth.RoleAdmin {
		owner = ""
	}
	wr, err := h.Svc.Withdrawals.Get(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wr)
}

type resolveReq struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

func (h *WithdrawalHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if err := validate.Collect(
		validate.OneOf("outcome", req.Outcome, string(models.OutcomeApproved), string(models.OutcomeRejected)),
	); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	wr, err := h.Svc.Withdrawals.Resolve(r.Context(), chi.URLParam(r, "id"), models.WithdrawalOutcome(req.Outcome), req.Note)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wr)
}

type payoutMethodReq struct {
	Kind    string            `json:"kind"`
	Label   string            `json:"label"`
	Details map[string]string `json:"details"`
}

func (h *WithdrawalHandler) AddPayoutMethod(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req payoutMethodReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if err := validate.Collect(
		validate.OneOf("kind", req.Kind, string(models.PayoutMobileMoney), string(models.PayoutBank)),
		validate.Required("label", req.Label),
	); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	m, err := h.Svc.Withdrawals.AddPayoutMethod(r.Context(), models.PayoutMethod{
		OwnerID: p.UserID,
		Kind:    models.PayoutKind(req.Kind),
		Label:   req.Label,
		Details: req.Details,
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, m)
}
