package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/pricing"
)

type adminStore interface {
	productReader
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, p ProductWrite) (string, error)
	UpdateProduct(ctx context.Context, id string, p ProductWrite) error
	SetProductActive(ctx context.Context, id string, active bool) error
	DeleteProduct(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name, slug string) (Category, error)
	UpdateCategory(ctx context.Context, id, name, slug string) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

var maxVATRate = decimal.NewFromInt(1)

// Admin manages products and categories. Every successful write drops the cached
// storefront page so new prices show up immediately.
type Admin struct {
	store    adminStore
	listing  *Service
	validate *validator.Validate
	logger   zerolog.Logger
}

// AdminConfig groups Admin dependencies.
type AdminConfig struct {
	Store     adminStore
	Listing   *Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// NewAdmin constructs an Admin.
func NewAdmin(cfg AdminConfig) (*Admin, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: admin store is required")
	}
	if cfg.Listing == nil {
		return nil, errors.New("catalog: listing service is required")
	}
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}
	return &Admin{store: cfg.Store, listing: cfg.Listing, validate: v, logger: cfg.Logger}, nil
}

// ProductInput is the admin form for creating or replacing a product. Prices are
// GBP and may be sent as JSON numbers or strings.
type ProductInput struct {
	SKU            string           `json:"sku" validate:"required,max=64"`
	Name           string           `json:"name" validate:"required,max=200"`
	Description    string           `json:"description" validate:"max=4000"`
	Barcode        string           `json:"barcode" validate:"max=64"`
	RetailPrice    *decimal.Decimal `json:"retailPrice"`
	WholesalePrice *decimal.Decimal `json:"wholesalePrice"`
	UnitWeightKg   *decimal.Decimal `json:"unitWeightKg"`
	VATRate        *decimal.Decimal `json:"vatRate"`
	IsActive       *bool            `json:"isActive"`
	CategoryIDs    []string         `json:"categoryIds" validate:"omitempty,dive,uuid"`
}

func (a *Admin) productWrite(in ProductInput) (ProductWrite, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Barcode = strings.TrimSpace(in.Barcode)
	if err := a.validate.Struct(in); err != nil {
		return ProductWrite{}, invalidField(fieldOf(err), "SKU and name are required; category ids must be UUIDs.", err)
	}
	w := ProductWrite{Product: Product{
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Barcode:     in.Barcode,
		Active:      in.IsActive == nil || *in.IsActive,
	}, CategoryIDs: in.CategoryIDs}

	var err error
	if w.RetailPrice, err = bounded("retailPrice", in.RetailPrice, 2, pricing.MaxAmount); err != nil {
		return ProductWrite{}, err
	}
	if w.WholesalePrice, err = bounded("wholesalePrice", in.WholesalePrice, 2, pricing.MaxAmount); err != nil {
		return ProductWrite{}, err
	}
	if w.UnitWeightKg, err = bounded("unitWeightKg", in.UnitWeightKg, 3, pricing.MaxWeightKg); err != nil {
		return ProductWrite{}, err
	}
	if w.VATRate, err = bounded("vatRate", in.VATRate, 4, maxVATRate); err != nil {
		return ProductWrite{}, err
	}
	return w, nil
}

func bounded(field string, v *decimal.Decimal, places int32, limit decimal.Decimal) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	rounded := v.Round(places)
	if rounded.IsNegative() || rounded.GreaterThan(limit) {
		return decimal.NullDecimal{}, invalidField(field, fmt.Sprintf("%s must be between 0 and %s.", field, limit.String()), nil)
	}
	return decimal.NewNullDecimal(rounded), nil
}

// ListProducts returns the admin product list, hidden products included.
func (a *Admin) ListProducts(ctx context.Context, params ListParams) (AdminProductPage, error) {
	filter := ListFilter{
		Query:           params.Query,
		Category:        params.Category,
		IncludeInactive: true,
		Offset:          (params.Page - 1) * params.Limit,
		Limit:           params.Limit,
	}
	total, err := a.store.CountProducts(ctx, filter)
	if err != nil {
		return AdminProductPage{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := a.store.ListProducts(ctx, filter)
	if err != nil {
		return AdminProductPage{}, fmt.Errorf("list products: %w", err)
	}
	if rows == nil {
		rows = []Product{}
	}
	return AdminProductPage{Items: rows, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// AdminProductPage is an unpriced product page, hidden products included.
type AdminProductPage struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// CreateProduct validates in and stores a new product.
func (a *Admin) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	w, err := a.productWrite(in)
	if err != nil {
		return Product{}, err
	}
	id, err := a.store.CreateProduct(ctx, w)
	if err != nil {
		return Product{}, adminError(err)
	}
	a.changed(ctx, "product_created", id)
	return a.GetProduct(ctx, id)
}

// UpdateProduct replaces product id with in.
func (a *Admin) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	if !validID(id) {
		return Product{}, adminError(ErrProductNotFound)
	}
	w, err := a.productWrite(in)
	if err != nil {
		return Product{}, err
	}
	if err := a.store.UpdateProduct(ctx, id, w); err != nil {
		return Product{}, adminError(err)
	}
	a.changed(ctx, "product_updated", id)
	return a.GetProduct(ctx, id)
}

// GetProduct loads one product for the admin form.
func (a *Admin) GetProduct(ctx context.Context, id string) (Product, error) {
	if !validID(id) {
		return Product{}, adminError(ErrProductNotFound)
	}
	p, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, adminError(err)
	}
	return p, nil
}

// SetProductActive shows or hides product id on the storefront.
func (a *Admin) SetProductActive(ctx context.Context, id string, active bool) error {
	if !validID(id) {
		return adminError(ErrProductNotFound)
	}
	if err := a.store.SetProductActive(ctx, id, active); err != nil {
		return adminError(err)
	}
	a.changed(ctx, "product_visibility_changed", id)
	return nil
}

// DeleteProduct removes product id. Orders that reference it keep their lines.
func (a *Admin) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return adminError(ErrProductNotFound)
	}
	if err := a.store.DeleteProduct(ctx, id); err != nil {
		return adminError(err)
	}
	a.changed(ctx, "product_deleted", id)
	return nil
}

// ListCategories returns every category.
func (a *Admin) ListCategories(ctx context.Context) ([]Category, error) {
	return a.store.ListCategories(ctx)
}

// CreateCategory adds a category named name. Its slug is derived from the name.
func (a *Admin) CreateCategory(ctx context.Context, name string) (Category, error) {
	name, slug, err := categoryName(name)
	if err != nil {
		return Category{}, err
	}
	c, err := a.store.CreateCategory(ctx, name, slug)
	if err != nil {
		return Category{}, adminError(err)
	}
	a.changed(ctx, "category_created", c.ID)
	return c, nil
}

// UpdateCategory renames category id and recomputes its slug.
func (a *Admin) UpdateCategory(ctx context.Context, id, name string) (Category, error) {
	if !validID(id) {
		return Category{}, adminError(ErrCategoryNotFound)
	}
	name, slug, err := categoryName(name)
	if err != nil {
		return Category{}, err
	}
	c, err := a.store.UpdateCategory(ctx, id, name, slug)
	if err != nil {
		return Category{}, adminError(err)
	}
	a.changed(ctx, "category_updated", id)
	return c, nil
}

// DeleteCategory removes category id; its products stay listed without it.
func (a *Admin) DeleteCategory(ctx context.Context, id string) error {
	if !validID(id) {
		return adminError(ErrCategoryNotFound)
	}
	if err := a.store.DeleteCategory(ctx, id); err != nil {
		return adminError(err)
	}
	a.changed(ctx, "category_deleted", id)
	return nil
}

func (a *Admin) changed(ctx context.Context, action, id string) {
	a.logger.Info().Str("action", action).Str("id", id).Msg("catalog_changed")
	if err := a.listing.InvalidateListing(ctx); err != nil {
		a.logger.Warn().Err(err).Str("action", action).Msg("catalog_cache_invalidate_failed")
	}
}

// Slugify lower-cases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

func categoryName(raw string) (string, string, error) {
	name := strings.TrimSpace(raw)
	slug := Slugify(name)
	if name == "" || slug == "" || len(name) > 120 {
		return "", "", invalidField("name", "Category name must contain letters or digits.", nil)
	}
	return name, slug, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func fieldOf(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}

func invalidField(field, message string, err error) *common.AppError {
	appErr := common.BadRequest("VALIDATION_ERROR", message, err)
	if field != "" {
		appErr.Details = map[string]any{"field": field}
	}
	return appErr
}

func adminError(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return common.NotFound("Product not found.", err)
	case errors.Is(err, ErrCategoryNotFound):
		return common.NotFound("Category not found.", err)
	case errors.Is(err, ErrDuplicateSKU):
		return common.NewAppError("CONFLICT", "A product with this SKU already exists.", http.StatusConflict, err)
	case errors.Is(err, ErrDuplicateSlug):
		return common.NewAppError("CONFLICT", "A category with this name already exists.", http.StatusConflict, err)
	case errors.Is(err, ErrUnknownCategory):
		return common.BadRequest("UNKNOWN_CATEGORY", "One or more categories do not exist.", err)
	}
	return err
}
