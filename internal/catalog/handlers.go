package catalog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/pricing"
)

// ClassResolver maps the session customer onto a price list.
type ClassResolver interface {
	Classify(ctx context.Context, customerID string) (pricing.CustomerClass, error)
}

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
	classes ClassResolver
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Classes ClassResolver
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, classes: cfg.Classes}
}

// Products handles GET /api/v1/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteAppError(w, err, "Failed to load products.")
		return
	}
	class := pricing.Retail
	if customerID, ok := common.CustomerID(r.Context()); ok && h.classes != nil {
		class, err = h.classes.Classify(r.Context(), customerID)
		if err != nil {
			common.WriteAppError(w, err, "Failed to load products.")
			return
		}
	}
	result, err := h.service.ListProducts(r.Context(), params, class)
	if err != nil {
		common.WriteAppError(w, err, "Failed to load products.")
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"priceList":  class,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}
