package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/customer"
)

type adminLookup interface {
	Get(ctx context.Context, id string) (customer.Customer, error)
}

// Handler serves order history to signed-in customers.
type Handler struct {
	Svc       *Service
	Customers adminLookup
}

// List handles GET /api/v1/account/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	customerID, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	items, total, err := h.Svc.ForCustomer(r.Context(), customerID, page, perPage)
	if err != nil {
		writeError(w, err, "Failed to load orders.")
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	viewer, ok := common.CustomerID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
		return
	}
	admin := false
	if h.Customers != nil {
		if c, err := h.Customers.Get(r.Context(), viewer); err == nil {
			admin = c.IsAdmin && c.IsActive
		}
	}
	ord, err := h.Svc.View(r.Context(), chi.URLParam(r, "id"), viewer, admin)
	if err != nil {
		writeError(w, err, "Failed to load order.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "Order not found.", nil)
		return
	}
	common.WriteAppError(w, err, fallback)
}
