package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-grocer/internal/common"
)

// AdminHandler exposes product and category management to administrators.
type AdminHandler struct {
	Admin *Admin
}

type activeRequest struct {
	IsActive *bool `json:"isActive"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *AdminHandler) ready(w http.ResponseWriter) bool {
	if h.Admin == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog admin not configured", nil)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body.", nil)
		return false
	}
	return true
}

// ListProducts handles GET /api/v1/admin/products.
func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	params, err := h.Admin.listing.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteAppError(w, err, "Failed to load products.")
		return
	}
	page, err := h.Admin.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteAppError(w, err, "Failed to load products.")
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(page.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       page.Items,
		"pagination": common.Pagination{Page: page.Page, PerPage: page.Limit, TotalItems: int(page.Total)},
	})
}

// GetProduct handles GET /api/v1/admin/products/{id}.
func (h *AdminHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	p, err := h.Admin.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteAppError(w, err, "Failed to load product.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// CreateProduct handles POST /api/v1/admin/products.
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.Admin.CreateProduct(r.Context(), in)
	if err != nil {
		common.WriteAppError(w, err, "Failed to create product.")
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": p})
}

// UpdateProduct handles PUT /api/v1/admin/products/{id}.
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.Admin.UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		common.WriteAppError(w, err, "Failed to update product.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// SetProductActive handles PATCH /api/v1/admin/products/{id}/active.
func (h *AdminHandler) SetProductActive(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req activeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "isActive is required.", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Admin.SetProductActive(r.Context(), id, *req.IsActive); err != nil {
		common.WriteAppError(w, err, "Failed to update product.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": id, "isActive": *req.IsActive}})
}

// DeleteProduct handles DELETE /api/v1/admin/products/{id}.
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Admin.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteAppError(w, err, "Failed to delete product.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategories handles GET /api/v1/admin/categories.
func (h *AdminHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	categories, err := h.Admin.ListCategories(r.Context())
	if err != nil {
		common.WriteAppError(w, err, "Failed to load categories.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": categories})
}

// CreateCategory handles POST /api/v1/admin/categories.
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Admin.CreateCategory(r.Context(), req.Name)
	if err != nil {
		common.WriteAppError(w, err, "Failed to create category.")
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// UpdateCategory handles PUT /api/v1/admin/categories/{id}.
func (h *AdminHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Admin.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		common.WriteAppError(w, err, "Failed to update category.")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// DeleteCategory handles DELETE /api/v1/admin/categories/{id}.
func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Admin.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteAppError(w, err, "Failed to delete category.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
