package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/backend-grocer/internal/common"
)

// Handler exposes the checkout endpoints. Both accept anonymous shoppers.
type Handler struct {
	Svc *Service
}

type previewRequest struct {
	Items []Item `json:"items"`
}

// Preview handles POST /api/v1/checkout/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		common.JSONError(w, http.StatusBadRequest, "CART_EMPTY", "Cart is empty.", nil)
		return
	}
	customerID, _ := common.CustomerID(r.Context())
	breakdown, err := h.Svc.Preview(r.Context(), customerID, req.Items)
	if err != nil {
		common.WriteAppError(w, err, "Failed to calculate totals.")
		return
	}
	common.JSON(w, http.StatusOK, breakdown)
}

// Place handles POST /api/v1/checkout.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body.", nil)
		return
	}
	customerID, _ := common.CustomerID(r.Context())
	out, err := h.Svc.Place(r.Context(), customerID, in)
	if err != nil {
		common.WriteAppError(w, err, "Failed to submit order.")
		return
	}
	common.JSON(w, http.StatusOK, out)
}
