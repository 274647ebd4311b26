package handlers

import (
	"net/http"

	"github.com/baharkarakas/qrcharge-backend/internal/api/httpx"
	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
	"github.com/baharkarakas/qrcharge-backend/internal/auth"
)

type AuthHandler struct {
	TM        *auth.TokenManager
	Clients   auth.Clients
	DevTokens bool
}

type tokenReq struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	// Dev shortcut, honoured only when dev tokens are enabled.
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Token issues a token pair for a registered client, or in dev for any
// user and role.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}

	var subject, role string
	switch {
	case req.ClientID != "":
		c, err := h.Clients.Verify(req.ClientID, req.ClientSecret)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid client credentials", nil)
			return
		}
		subject, role = c.ID, c.Role
	case h.DevTokens:
		if err := validate.Collect(validate.Required("user_id", req.UserID)); err != nil {
			httpx.WriteErr(w, err)
			return
		}
		subject, role = req.UserID, req.Role
		if role == "" {
			role = auth.RoleUser
		}
	default:
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "client credentials required", nil)
		return
	}

	pair, err := h.TM.GeneratePair(subject, role)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	claims, err := h.TM.ParseRefresh(req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	pair, err := h.TM.GeneratePair(claims.UserID, claims.Role)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}
