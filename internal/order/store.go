package order

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

	"github.com/noah-isme/backend-grocer/internal/customer"
	"github.com/noah-isme/backend-grocer/internal/pricing"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore persists orders in Postgres.
type PGStore struct {
	db  DB
	now func() time.Time
}

// NewPGStore constructs a PGStore.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

// Create writes the order, its lines and (optionally) the customer's contact
// details in a single transaction.
func (s *PGStore) Create(ctx context.Context, in NewOrder) (Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var customerID *uuid.UUID
	if in.CustomerID != "" {
		parsed, err := uuid.Parse(in.CustomerID)
		if err != nil {
			return Order{}, fmt.Errorf("invalid customer id %q: %w", in.CustomerID, err)
		}
		customerID = &parsed
	}
	b := in.Quote.Breakdown
	accepted := s.now().UTC()

	const insertOrder = `
INSERT INTO orders (
    customer_id, customer_name, customer_type, business_name, street, city, postcode, phone, email,
    delivery_method, notes, status, price_list,
    subtotal, vat, shipping, total, total_weight_kg, accepted_terms_at
) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''),
    $10, NULLIF($11, ''), $12, $13,
    $14::numeric, $15::numeric, $16::numeric, $17::numeric, $18::numeric, $19)
RETURNING id::text, created_at, updated_at
`
	out := Order{
		CustomerID:     in.CustomerID,
		CustomerName:   in.CustomerName,
		CustomerType:   in.CustomerType,
		BusinessName:   in.BusinessName,
		Street:         in.Street,
		City:           in.City,
		Postcode:       in.Postcode,
		Phone:          in.Phone,
		Email:          in.Email,
		DeliveryMethod: in.DeliveryMethod,
		Notes:          in.Notes,
		Status:         StatusPending,
		PriceList:      in.Quote.Class,
		Totals:         b,
		AcceptedTerms:  accepted,
	}
	err = tx.QueryRow(ctx, insertOrder,
		customerID, in.CustomerName, in.CustomerType, in.BusinessName, in.Street, in.City, in.Postcode, in.Phone, in.Email,
		string(in.DeliveryMethod), in.Notes, string(StatusPending), string(in.Quote.Class),
		b.Subtotal.String(), b.VAT.String(), b.Shipping.String(), b.Total.String(), b.TotalWeightKg.String(), accepted,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	const insertLine = `
INSERT INTO order_items (order_id, product_id, qty, unit_price, line_total, weight_kg, vat_rate)
VALUES ($1::uuid, $2::uuid, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric)
`
	batch := &pgx.Batch{}
	for _, line := range in.Quote.Lines {
		batch.Queue(insertLine, out.ID, line.ProductID, line.Qty,
			line.UnitPrice.String(), line.LineTotal.String(), line.WeightKg.String(), nullDecimalArg(line.VATRate))
		out.Lines = append(out.Lines, Line{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
			WeightKg:  line.WeightKg,
			VATRate:   line.VATRate,
		})
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Order{}, fmt.Errorf("insert order items: %w", err)
		}
	}

	if in.UpdateContact && in.CustomerID != "" {
		err := customer.UpdateContact(ctx, tx, in.CustomerID, customer.Contact{
			BusinessName: in.BusinessName,
			Street:       in.Street,
			City:         in.City,
			Postcode:     in.Postcode,
			Phone:        in.Phone,
		})
		if err != nil && !errors.Is(err, customer.ErrNotFound) {
			return Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit order: %w", err)
	}
	return out, nil
}

const orderColumns = `o.id::text, COALESCE(o.customer_id::text, ''), o.customer_name, COALESCE(o.customer_type, ''),
       COALESCE(o.business_name, ''), o.street, o.city, o.postcode, o.phone, COALESCE(o.email, ''),
       o.delivery_method, COALESCE(o.notes, ''), o.status, o.price_list,
       o.subtotal::text, o.vat::text, o.shipping::text, o.total::text, o.total_weight_kg::text,
       o.accepted_terms_at, o.created_at, o.updated_at`

// Get loads an order with its lines.
func (s *PGStore) Get(ctx context.Context, id string) (Order, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Order{}, ErrNotFound
	}
	q := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	ord, err := scanOrder(s.db.QueryRow(ctx, q, parsed))
	if err != nil {
		return Order{}, err
	}

	const lines = `
SELECT oi.product_id::text, COALESCE(p.sku, ''), COALESCE(p.name, ''), oi.qty,
       oi.unit_price::text, oi.line_total::text, oi.weight_kg::text, oi.vat_rate::text
FROM order_items oi
LEFT JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1
ORDER BY oi.id
`
	rows, err := s.db.Query(ctx, lines, parsed)
	if err != nil {
		return Order{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l                   Line
			unit, total, weight string
			vat                 *string
		)
		if err := rows.Scan(&l.ProductID, &l.SKU, &l.Name, &l.Qty, &unit, &total, &weight, &vat); err != nil {
			return Order{}, fmt.Errorf("scan order item: %w", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return Order{}, err
		}
		if l.LineTotal, err = decimal.NewFromString(total); err != nil {
			return Order{}, err
		}
		if l.WeightKg, err = decimal.NewFromString(weight); err != nil {
			return Order{}, err
		}
		if vat != nil {
			rate, err := decimal.NewFromString(*vat)
			if err != nil {
				return Order{}, err
			}
			l.VATRate = decimal.NewNullDecimal(rate)
		}
		ord.Lines = append(ord.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("iterate order items: %w", err)
	}
	return ord, nil
}

const summaryColumns = `o.id::text, o.created_at, o.status, o.customer_name, COALESCE(o.business_name, c.business_name, ''),
       o.phone, o.city, o.postcode, o.delivery_method, o.total::text`

const summaryFrom = ` FROM orders o LEFT JOIN customers c ON c.id = o.customer_id`

// ListForCustomer returns the customer's orders, newest first.
func (s *PGStore) ListForCustomer(ctx context.Context, customerID string, limit, offset int) ([]Summary, int64, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(customerID))
	if err != nil {
		return []Summary{}, 0, nil
	}
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE customer_id = $1`, parsed).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customer orders: %w", err)
	}
	q := `SELECT ` + summaryColumns + summaryFrom + ` WHERE o.customer_id = $1 ORDER BY o.created_at DESC, o.id LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, q, parsed, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query customer orders: %w", err)
	}
	items, err := scanSummaries(rows)
	return items, total, err
}

// ListAll returns orders for the admin dashboard, newest first. A zero Limit
// returns every matching order.
func (s *PGStore) ListAll(ctx context.Context, filter ListFilter) ([]Summary, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	q := `SELECT ` + summaryColumns + summaryFrom + ` WHERE ($1 = '' OR o.status = $1) ORDER BY o.created_at DESC, o.id`
	args := []any{string(filter.Status)}
	if filter.Limit > 0 {
		q += ` LIMIT $2 OFFSET $3`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	items, err := scanSummaries(rows)
	return items, total, err
}

// UpdateStatus moves an order from one status to another. It fails with
// ErrStatusChanged when the stored status no longer matches from.
func (s *PGStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`, parsed, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                                      Order
		delivery, status, priceList            string
		subtotal, vat, shipping, total, weight string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.CustomerType,
		&o.BusinessName, &o.Street, &o.City, &o.Postcode, &o.Phone, &o.Email,
		&delivery, &o.Notes, &status, &priceList,
		&subtotal, &vat, &shipping, &total, &weight,
		&o.AcceptedTerms, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.DeliveryMethod = ParseDeliveryMethod(delivery)
	o.Status = Status(status)
	o.PriceList = pricing.ParseCustomerClass(priceList)
	amounts, err := parseDecimals(subtotal, vat, shipping, total, weight)
	if err != nil {
		return Order{}, err
	}
	o.Totals = pricing.Breakdown{
		Subtotal:      amounts[0],
		VAT:           amounts[1],
		Shipping:      amounts[2],
		Total:         amounts[3],
		TotalWeightKg: amounts[4],
	}
	o.Totals.ShippingUnits, _ = pricing.ShippingFor(o.Totals.TotalWeightKg)
	return o, nil
}

func scanSummaries(rows pgx.Rows) ([]Summary, error) {
	defer rows.Close()
	items := []Summary{}
	for rows.Next() {
		var (
			s              Summary
			status, method string
			total          string
		)
		if err := rows.Scan(&s.ID, &s.CreatedAt, &status, &s.CustomerName, &s.BusinessName, &s.Phone, &s.City, &s.Postcode, &method, &total); err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		s.Status = Status(status)
		s.DeliveryMethod = ParseDeliveryMethod(method)
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, err
		}
		s.Total = amount
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order summaries: %w", err)
	}
	return items, nil
}

func parseDecimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}

func nullDecimalArg(value decimal.NullDecimal) *string {
	if !value.Valid {
		return nil
	}
	s := value.Decimal.String()
	return &s
}
