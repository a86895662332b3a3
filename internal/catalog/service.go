package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/pricing"
)

type productReader interface {
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
	CountProducts(ctx context.Context, filter ListFilter) (int64, error)
}

// Service serves the storefront listing and caches its default page.
type Service struct {
	products     productReader
	prices       pricing.Calculator
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies. Prices should be the calculator
// checkout uses so listed and charged prices agree.
type ServiceConfig struct {
	Products     productReader
	Prices       pricing.Calculator
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	Page     int
	Limit    int
}

// ProductListItem is a storefront entry priced for the caller's class.
type ProductListItem struct {
	ID           string   `json:"id"`
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Price        *float64 `json:"price"`
	UnitWeightKg *float64 `json:"unitWeightKg,omitempty"`
	Categories   []string `json:"categories"`
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductListItem
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Products == nil {
		return nil, errors.New("catalog: product reader is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 24
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		products:     cfg.Products,
		prices:       cfg.Prices,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

// ListProducts returns the storefront page priced for class. Only the unfiltered
// first page is cached; prices are applied after the cache so one entry serves
// every class.
func (s *Service) ListProducts(ctx context.Context, params ListParams, class pricing.CustomerClass) (ProductListResult, error) {
	rows, total, err := s.load(ctx, params)
	if err != nil {
		return ProductListResult{}, err
	}
	items := make([]ProductListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.listItem(row, class))
	}
	return ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

type cachedList struct {
	Products []Product `json:"products"`
	Total    int64     `json:"total"`
}

func (s *Service) load(ctx context.Context, params ListParams) ([]Product, int64, error) {
	key, useCache := s.listCacheKey(params)
	if useCache && s.cache != nil {
		var cached cachedList
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached.Products, cached.Total, nil
		}
	}
	filter := ListFilter{
		Query:    params.Query,
		Category: params.Category,
		Offset:   (params.Page - 1) * params.Limit,
		Limit:    params.Limit,
	}
	total, err := s.products.CountProducts(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.products.ListProducts(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	if useCache && s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, cachedList{Products: rows, Total: total})
	}
	return rows, total, nil
}

// InvalidateListing drops the cached default page.
func (s *Service) InvalidateListing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	key, _ := s.listCacheKey(ListParams{Page: 1, Limit: s.defaultLimit})
	return s.cache.Delete(ctx, key)
}

func (s *Service) listCacheKey(params ListParams) (string, bool) {
	if params.Page != 1 || params.Limit != s.defaultLimit {
		return "", false
	}
	if params.Query != "" || params.Category != "" {
		return "", false
	}
	return "catalog:products:list:default", true
}

func (s *Service) listItem(p Product, class pricing.CustomerClass) ProductListItem {
	item := ProductListItem{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Categories:  p.Categories,
	}
	if item.Categories == nil {
		item.Categories = []string{}
	}
	if price, ok := s.prices.UnitPrice(p.Facts(), class); ok {
		item.Price = optionalFloat(decimal.NewNullDecimal(price))
	}
	item.UnitWeightKg = optionalFloat(p.UnitWeightKg)
	return item
}

func optionalFloat(value decimal.NullDecimal) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Decimal.InexactFloat64()
	return &f
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
