package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Errors returned by admin writes.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrDuplicateSKU     = errors.New("sku already exists")
	ErrDuplicateSlug    = errors.New("category already exists")
	ErrUnknownCategory  = errors.New("unknown category")
)

// Category groups products on the storefront.
type Category struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	ProductCount int64     `json:"productCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProductWrite is a full product record plus the categories it belongs to.
type ProductWrite struct {
	Product
	CategoryIDs []string
}

// CreateProduct inserts p and links its categories in one round trip.
func (s *Store) CreateProduct(ctx context.Context, p ProductWrite) (string, error) {
	id := uuid.NewString()
	const q = `
INSERT INTO products (id, sku, name, description, barcode, retail_price, wholesale_price, unit_weight_kg, vat_rate, is_active)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10)
`
	batch := &pgx.Batch{}
	batch.Queue(q, id, p.SKU, p.Name, p.Description, p.Barcode,
		decimalArg(p.RetailPrice), decimalArg(p.WholesalePrice), decimalArg(p.UnitWeightKg), decimalArg(p.VATRate), p.Active)
	if err := queueCategoryLinks(batch, id, p.CategoryIDs, false); err != nil {
		return "", err
	}
	if err := s.runProductBatch(ctx, batch); err != nil {
		return "", fmt.Errorf("create product %s: %w", p.SKU, err)
	}
	return id, nil
}

// UpdateProduct replaces every column of product id and its category links.
func (s *Store) UpdateProduct(ctx context.Context, id string, p ProductWrite) error {
	const q = `
UPDATE products SET
    sku = $2, name = $3, description = NULLIF($4, ''), barcode = NULLIF($5, ''),
    retail_price = $6::numeric, wholesale_price = $7::numeric, unit_weight_kg = $8::numeric,
    vat_rate = $9::numeric, is_active = $10
WHERE id = $1
`
	batch := &pgx.Batch{}
	batch.Queue(q, id, p.SKU, p.Name, p.Description, p.Barcode,
		decimalArg(p.RetailPrice), decimalArg(p.WholesalePrice), decimalArg(p.UnitWeightKg), decimalArg(p.VATRate), p.Active)
	if err := queueCategoryLinks(batch, id, p.CategoryIDs, true); err != nil {
		return err
	}
	if err := s.runProductBatch(ctx, batch); err != nil {
		return fmt.Errorf("update product %s: %w", id, err)
	}
	return nil
}

// queueCategoryLinks appends the link statements. The batch runs as one implicit
// transaction, so a failed link rolls back the product write.
func queueCategoryLinks(batch *pgx.Batch, productID string, categoryIDs []string, replace bool) error {
	ids := make([]uuid.UUID, 0, len(categoryIDs))
	for _, raw := range categoryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
		}
		ids = append(ids, id)
	}
	if replace {
		batch.Queue(`DELETE FROM product_categories WHERE product_id = $1`, productID)
	}
	if len(ids) == 0 {
		return nil
	}
	batch.Queue(`
INSERT INTO product_categories (product_id, category_id)
SELECT $1, c FROM unnest($2::uuid[]) AS c
ON CONFLICT DO NOTHING
`, productID, ids)
	return nil
}

func (s *Store) runProductBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err == nil && i == 0 && tag.RowsAffected() == 0 {
			err = ErrProductNotFound
		}
		if err != nil {
			_ = br.Close()
			return mapWriteError(err, ErrDuplicateSKU)
		}
	}
	return br.Close()
}

// SetProductActive shows or hides a product on the storefront.
func (s *Store) SetProductActive(ctx context.Context, id string, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set product %s active: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct removes a product. Past order lines keep their prices with a null product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListCategories returns every category by name with its product count.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	const q = `
SELECT c.id::text, c.slug, c.name, count(pc.product_id), c.created_at
FROM categories c
LEFT JOIN product_categories pc ON pc.category_id = c.id
GROUP BY c.id
ORDER BY c.name, c.slug
`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.ProductCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, name, slug string) (Category, error) {
	c := Category{Name: name, Slug: slug}
	err := s.db.QueryRow(ctx,
		`INSERT INTO categories (slug, name) VALUES ($1, $2) RETURNING id::text, created_at`,
		slug, name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Category{}, fmt.Errorf("create category %s: %w", slug, mapWriteError(err, ErrDuplicateSlug))
	}
	return c, nil
}

// UpdateCategory renames a category.
func (s *Store) UpdateCategory(ctx context.Context, id, name, slug string) (Category, error) {
	c := Category{ID: id, Name: name, Slug: slug}
	err := s.db.QueryRow(ctx, `
UPDATE categories SET slug = $2, name = $3 WHERE id = $1
RETURNING created_at, (SELECT count(*) FROM product_categories WHERE category_id = $1)
`, id, slug, name).Scan(&c.CreatedAt, &c.ProductCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, fmt.Errorf("update category %s: %w", id, mapWriteError(err, ErrDuplicateSlug))
	}
	return c, nil
}

// DeleteCategory removes a category and its product links.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// mapWriteError turns constraint violations into catalog errors. duplicate is
// returned for unique violations.
func mapWriteError(err, duplicate error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", duplicate, pgErr.ConstraintName)
	case "23503":
		if pgErr.ConstraintName == "product_categories_category_id_fkey" {
			return ErrUnknownCategory
		}
		return ErrProductNotFound
	}
	return err
}
