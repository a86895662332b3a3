package customer

import (
	"context"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-grocer/internal/common"
)

type adminChecker interface {
	Get(ctx context.Context, id string) (Customer, error)
}

// Middleware wires the session cookie into request contexts.
type Middleware struct {
	Sessions   *Sessions
	Customers  adminChecker
	CookieName string
}

// Attach puts the customer id on the context when a valid session cookie is present.
// Requests without one continue anonymously.
func (m Middleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := m.sessionCustomer(r); ok {
			r = r.WithContext(common.WithCustomerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCustomer rejects requests without an authenticated customer.
func (m Middleware) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := common.CustomerID(r.Context())
		if !ok {
			if id, ok = m.sessionCustomer(r); !ok {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
				return
			}
			r = r.WithContext(common.WithCustomerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests unless the session customer is an administrator.
// The flag is read from the database so revocation takes effect immediately.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireCustomer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := common.CustomerID(r.Context())
		if m.Customers == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer store not configured", nil)
			return
		}
		found, err := m.Customers.Get(r.Context(), id)
		if err != nil || !found.IsAdmin || !found.IsActive {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (m Middleware) sessionCustomer(r *http.Request) (string, bool) {
	if m.Sessions == nil {
		return "", false
	}
	name := m.CookieName
	if name == "" {
		name = "customer_session"
	}
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	id, err := m.Sessions.Parse(value)
	if err != nil {
		return "", false
	}
	return id, true
}
