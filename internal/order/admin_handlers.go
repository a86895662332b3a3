package order

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-grocer/internal/common"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc      *Service
	Validate *validator.Validate
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING CONFIRMED DISPATCHED COMPLETED CANCELLED pending confirmed dispatched completed cancelled"`
}

// List handles GET /api/v1/admin/orders.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	filter, ok := statusFilter(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 50, 200)
	filter.Limit = perPage
	filter.Offset = common.Offset(page, perPage)
	items, total, err := h.Svc.List(r.Context(), filter)
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

// PatchStatus handles PATCH /api/v1/admin/orders/{id}/status.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "New status is required.", nil)
		return
	}
	v := h.Validate
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid status value.", nil)
		return
	}
	target, _ := ParseStatus(req.Status)
	ord, err := h.Svc.ChangeStatus(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		writeError(w, err, "Failed to update status.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

// Export handles GET /api/v1/admin/orders/export.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	filter, ok := statusFilter(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.Svc.ExportCSV(r.Context(), &buf, filter.Status); err != nil {
		writeError(w, err, "Failed to export orders.")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders-export.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func statusFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return ListFilter{}, true
	}
	status, ok := ParseStatus(raw)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid status value.", nil)
		return ListFilter{}, false
	}
	return ListFilter{Status: status}, true
}
