package customer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/noah-isme/backend-grocer/internal/common"
)

// Handler exposes login, registration and account endpoints.
type Handler struct {
	Service        *Service
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer service not configured", nil)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Email and password are required.", nil)
		return
	}
	result, err := h.Service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		common.WriteAppError(w, err, "Internal server error.")
		return
	}
	h.setSessionCookie(w, result.Token, h.Service.sessions.TTL())
	common.JSON(w, http.StatusCreated, map[string]any{"ok": true, "customerId": result.Customer.ID})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer service not configured", nil)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Email and password are required.", nil)
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		common.WriteAppError(w, err, "Internal server error.")
		return
	}
	h.setSessionCookie(w, result.Token, h.Service.sessions.TTL())
	common.JSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"customerId": result.Customer.ID,
		"isAdmin":    result.Customer.IsAdmin,
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.setSessionCookie(w, "", -1)
	common.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Me handles GET /api/v1/account/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer service not configured", nil)
		return
	}
	id, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
		return
	}
	found, err := h.Service.Me(r.Context(), id)
	if err != nil {
		common.WriteAppError(w, err, "Internal server error")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": found})
}

// UpdateProfile handles PATCH /api/v1/account/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer service not configured", nil)
		return
	}
	id, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated.", nil)
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body.", nil)
		return
	}
	updated, err := h.Service.UpdateProfile(r.Context(), id, Profile{Name: req.Name, Email: req.Email})
	if err != nil {
		common.WriteAppError(w, err, "Failed to update account.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"ok": true, "customer": updated})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	name := h.CookieName
	if name == "" {
		name = "customer_session"
	}
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	}
	if ttl < 0 {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	} else {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}
