package middleware

import (
	"net/http"
	"strings"

	"github.com/baharkarakas/qrcharge-backend/internal/api/httpx"
	"github.com/baharkarakas/qrcharge-backend/internal/auth"
)

type AuthMiddleware struct {
	TM *auth.TokenManager
	// DevTokens accepts "Bearer dev-<uid>" (role user) and
	// "Bearer dev-<role>:<uid>" without a signature.
	DevTokens bool
}

func NewAuthMiddleware(tm *auth.TokenManager, devTokens bool) *AuthMiddleware {
	return &AuthMiddleware{TM: tm, DevTokens: devTokens}
}

func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[7:])

		if m.DevTokens && strings.HasPrefix(token, "dev-") {
			p := Principal{UserID: strings.TrimPrefix(token, "dev-"), Role: auth.RoleUser}
			if role, uid, ok := strings.Cut(p.UserID, ":"); ok {
				p = Principal{UserID: uid, Role: role}
			}
			if p.UserID == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid dev token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		claims, err := m.TM.ParseAccess(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		p := Principal{UserID: claims.UserID, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
