package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/prismkeys/prism/internal/server/middleware"
	"github.com/prismkeys/prism/internal/service"
)

const (
	stateCookie = "prism_oauth_state"
	stateTTL    = 10 * time.Minute
)

// AuthHandler serves the Discord sign-in routes for the dashboard.
type AuthHandler struct {
	auth   *service.AuthService
	secure bool
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. secure marks cookies Secure.
func NewAuthHandler(auth *service.AuthService, secure bool, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, secure: secure, logger: logger}
}

// Login handles GET /api/login by redirecting to Discord's consent page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Configured() {
		writeError(w, http.StatusInternalServerError, "Discord OAuth not configured")
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/callback. Any failure, including a non-VIP
// identity, lands on /unauthorized.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, stateCookie, "/api")

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
		h.logger.Warn("oauth callback: state mismatch")
		http.Redirect(w, r, "/unauthorized", http.StatusFound)
		return
	}

	ident, err := h.auth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Warn("oauth callback: exchange failed", "error", err)
		http.Redirect(w, r, "/unauthorized", http.StatusFound)
		return
	}

	user, token, err := h.auth.Login(r.Context(), ident)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			h.logger.Warn("dashboard login denied", "user_id", ident.ID)
		} else {
			h.logger.Error("dashboard login", "user_id", ident.ID, "error", err)
		}
		http.Redirect(w, r, "/unauthorized", http.StatusFound)
		return
	}

	h.logger.Info("dashboard login", "user_id", user.ID, "name", user.DisplayName)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout handles GET /api/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.SessionCookie, "/")
	http.Redirect(w, r, "/", http.StatusFound)
}

// CurrentUser handles GET /api/auth/user. It must run behind Authenticate.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), p.UserID)
	if errors.Is(err, service.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("fetch user", "user_id", p.UserID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
