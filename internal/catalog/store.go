package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Product is a catalog row as stored in Postgres.
type Product struct {
	ID             string              `json:"id"`
	SKU            string              `json:"sku"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Barcode        string              `json:"barcode,omitempty"`
	RetailPrice    decimal.NullDecimal `json:"retailPrice"`
	WholesalePrice decimal.NullDecimal `json:"wholesalePrice"`
	UnitWeightKg   decimal.NullDecimal `json:"unitWeightKg"`
	VATRate        decimal.NullDecimal `json:"vatRate"`
	Active         bool                `json:"active"`
	Categories     []string            `json:"categories"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Facts projects the pricing-relevant columns of the product.
func (p Product) Facts() pricing.Facts {
	return pricing.Facts{
		RetailUnitPrice:    p.RetailPrice,
		WholesaleUnitPrice: p.WholesalePrice,
		UnitWeightKg:       p.UnitWeightKg,
		VATRate:            p.VATRate,
	}
}

// ListFilter narrows the storefront listing. IncludeInactive is for admin views.
type ListFilter struct {
	Query           string
	Category        string
	IncludeInactive bool
	Offset          int
	Limit           int
}

// Store reads products from Postgres.
type Store struct {
	db DB
}

// NewStore constructs a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// PricingFacts loads the pricing facts of every known id in a single round trip.
// Ids that are not valid product identifiers are simply absent from the result.
func (s *Store) PricingFacts(ctx context.Context, ids []string) (map[string]pricing.Facts, error) {
	valid := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		valid = append(valid, parsed)
	}
	out := make(map[string]pricing.Facts, len(valid))
	if len(valid) == 0 {
		return out, nil
	}
	const q = `
SELECT id::text, retail_price::text, wholesale_price::text, unit_weight_kg::text, vat_rate::text
FROM products
WHERE id = ANY($1)
`
	rows, err := s.db.Query(ctx, q, valid)
	if err != nil {
		return nil, fmt.Errorf("query pricing facts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id                               string
			retail, wholesale, weight, vatTx *string
		)
		if err := rows.Scan(&id, &retail, &wholesale, &weight, &vatTx); err != nil {
			return nil, fmt.Errorf("scan pricing facts: %w", err)
		}
		var f pricing.Facts
		if f.RetailUnitPrice, err = parseNullDecimal(retail); err != nil {
			return nil, err
		}
		if f.WholesaleUnitPrice, err = parseNullDecimal(wholesale); err != nil {
			return nil, err
		}
		if f.UnitWeightKg, err = parseNullDecimal(weight); err != nil {
			return nil, err
		}
		if f.VATRate, err = parseNullDecimal(vatTx); err != nil {
			return nil, err
		}
		out[id] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pricing facts: %w", err)
	}
	// Results are keyed by the canonical uuid text; map back to the ids as submitted.
	for _, id := range ids {
		parsed, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		if f, ok := out[parsed.String()]; ok {
			out[id] = f
		}
	}
	return out, nil
}

const productColumns = `p.id::text, p.sku, p.name, COALESCE(p.description, ''), COALESCE(p.barcode, ''),
       p.retail_price::text, p.wholesale_price::text, p.unit_weight_kg::text, p.vat_rate::text,
       p.is_active, p.created_at,
       COALESCE((SELECT array_agg(c.slug ORDER BY c.slug)
                 FROM product_categories pc JOIN categories c ON c.id = pc.category_id
                 WHERE pc.product_id = p.id), '{}')`

const productFilter = `
WHERE ($3 OR p.is_active)
  AND ($1 = '' OR p.name ILIKE '%' || $1 || '%' OR p.sku ILIKE '%' || $1 || '%' OR COALESCE(p.barcode, '') ILIKE '%' || $1 || '%')
  AND ($2 = '' OR EXISTS (
        SELECT 1 FROM product_categories pc JOIN categories c ON c.id = pc.category_id
        WHERE pc.product_id = p.id AND c.slug = $2))
`

// ListProducts returns products matching the filter, newest first.
func (s *Store) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	q := "SELECT " + productColumns + "\nFROM products p" + productFilter + "ORDER BY p.created_at DESC, p.id\nOFFSET $4 LIMIT $5"
	rows, err := s.db.Query(ctx, q, filter.Query, filter.Category, filter.IncludeInactive, filter.Offset, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

// CountProducts counts products matching the filter.
func (s *Store) CountProducts(ctx context.Context, filter ListFilter) (int64, error) {
	q := "SELECT count(*)\nFROM products p" + productFilter
	var total int64
	if err := s.db.QueryRow(ctx, q, filter.Query, filter.Category, filter.IncludeInactive).Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// GetProduct loads a single product, active or not.
func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	q := "SELECT " + productColumns + "\nFROM products p\nWHERE p.id = $1"
	p, err := scanProduct(s.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p                                 Product
		retail, wholesale, weight, vatTxt *string
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Barcode, &retail, &wholesale, &weight, &vatTxt, &p.Active, &p.CreatedAt, &p.Categories); err != nil {
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	var err error
	if p.RetailPrice, err = parseNullDecimal(retail); err != nil {
		return Product{}, err
	}
	if p.WholesalePrice, err = parseNullDecimal(wholesale); err != nil {
		return Product{}, err
	}
	if p.UnitWeightKg, err = parseNullDecimal(weight); err != nil {
		return Product{}, err
	}
	if p.VATRate, err = parseNullDecimal(vatTxt); err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpsertProduct inserts or updates a product keyed by SKU and returns its id.
func (s *Store) UpsertProduct(ctx context.Context, p Product) (string, error) {
	const q = `
INSERT INTO products (sku, name, description, retail_price, wholesale_price, unit_weight_kg, vat_rate, is_active, barcode)
VALUES ($1, $2, NULLIF($3, ''), $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, NULLIF($9, ''))
ON CONFLICT (sku) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    barcode = EXCLUDED.barcode,
    retail_price = EXCLUDED.retail_price,
    wholesale_price = EXCLUDED.wholesale_price,
    unit_weight_kg = EXCLUDED.unit_weight_kg,
    vat_rate = EXCLUDED.vat_rate,
    is_active = EXCLUDED.is_active
RETURNING id::text
`
	var id string
	err := s.db.QueryRow(ctx, q, p.SKU, p.Name, p.Description,
		decimalArg(p.RetailPrice), decimalArg(p.WholesalePrice), decimalArg(p.UnitWeightKg), decimalArg(p.VATRate), p.Active, p.Barcode,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert product %s: %w", p.SKU, err)
	}
	return id, nil
}

func parseNullDecimal(value *string) (decimal.NullDecimal, error) {
	if value == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*value)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse numeric %q: %w", *value, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func decimalArg(value decimal.NullDecimal) *string {
	if !value.Valid {
		return nil
	}
	s := value.Decimal.String()
	return &s
}
