package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

func TestParseNullDecimal(t *testing.T) {
	got, err := parseNullDecimal(nil)
	require.NoError(t, err)
	require.False(t, got.Valid)

	text := "14.990"
	got, err = parseNullDecimal(&text)
	require.NoError(t, err)
	require.True(t, got.Valid)
	require.Equal(t, "14.99", got.Decimal.String())
	require.Equal(t, "14.99", *decimalArg(got))

	bad := "abc"
	_, err = parseNullDecimal(&bad)
	require.Error(t, err)
}

func TestProductFacts(t *testing.T) {
	text := "5"
	weight, err := parseNullDecimal(&text)
	require.NoError(t, err)
	p := Product{UnitWeightKg: weight}
	facts := p.Facts()
	require.True(t, facts.UnitWeightKg.Valid)
	require.False(t, facts.RetailUnitPrice.Valid)
	require.Nil(t, decimalArg(facts.RetailUnitPrice))
}

type factRow []any

type cannedRows struct {
	rows    []factRow
	pos     int
	scanErr error
	err     error
	closed  bool
}

func (r *cannedRows) Close() { r.closed = true }
func (r *cannedRows) Err() error { return r.err }
func (r *cannedRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *cannedRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *cannedRows) Values() ([]any, error) { return r.rows[r.pos-1], nil }
func (r *cannedRows) RawValues() [][]byte { return nil }
func (r *cannedRows) Conn() *pgx.Conn { return nil }

func (r *cannedRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *cannedRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d targets for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch target := d.(type) {
		case *string:
			*target = row[i].(string)
		case **string:
			if row[i] == nil {
				*target = nil
				continue
			}
			v := row[i].(string)
			*target = &v
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

type factsDB struct {
	rows     *cannedRows
	queryErr error
	queries  int
	args     []any
}

func (db *factsDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	db.queries++
	db.args = args
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return db.rows, nil
}

func (db *factsDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("QueryRow not expected")
}

func (db *factsDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("Exec not expected")
}

func (db *factsDB) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("SendBatch not expected")
}

const riceID = "5b0f0a4e-8a57-4c1e-9f0e-2f6c1d3b7a10"

func riceRow() factRow {
	return factRow{riceID, "14.99", "11.20", "5.000", nil}
}

func TestPricingFactsMapsSubmittedIDs(t *testing.T) {
	rows := &cannedRows{rows: []factRow{riceRow()}}
	db := &factsDB{rows: rows}
	store := NewStore(db)

	upper := strings.ToUpper(riceID)
	padded := "  " + riceID + " "
	facts, err := store.PricingFacts(context.Background(), []string{upper, padded, "not-a-uuid"})
	require.NoError(t, err)
	require.True(t, rows.closed)
	require.Equal(t, 1, db.queries)
	require.Equal(t, []uuid.UUID{uuid.MustParse(riceID), uuid.MustParse(riceID)}, db.args[0])

	require.Contains(t, facts, upper)
	require.Contains(t, facts, padded)
	require.NotContains(t, facts, "not-a-uuid")

	f := facts[upper]
	require.Equal(t, "14.99", f.RetailUnitPrice.Decimal.String())
	require.Equal(t, "11.2", f.WholesaleUnitPrice.Decimal.String())
	require.True(t, f.UnitWeightKg.Valid)
	require.False(t, f.VATRate.Valid)
}

func TestPricingFactsSkipsQueryWithoutValidIDs(t *testing.T) {
	db := &factsDB{}
	facts, err := NewStore(db).PricingFacts(context.Background(), []string{"BR-5KG", ""})
	require.NoError(t, err)
	require.Empty(t, facts)
	require.Zero(t, db.queries)
}

func TestPricingFactsNullColumns(t *testing.T) {
	db := &factsDB{rows: &cannedRows{rows: []factRow{{riceID, nil, nil, nil, nil}}}}
	facts, err := NewStore(db).PricingFacts(context.Background(), []string{riceID})
	require.NoError(t, err)
	f := facts[riceID]
	require.False(t, f.RetailUnitPrice.Valid)
	require.False(t, f.WholesaleUnitPrice.Valid)
	require.False(t, f.UnitWeightKg.Valid)
}

func TestPricingFactsPropagatesErrors(t *testing.T) {
	boom := errors.New("connection reset")
	cases := map[string]*factsDB{
		"query": {queryErr: boom},
		"scan":  {rows: &cannedRows{rows: []factRow{riceRow()}, scanErr: boom}},
		"rows":  {rows: &cannedRows{err: boom}},
	}
	for name, db := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewStore(db).PricingFacts(context.Background(), []string{riceID})
			require.ErrorIs(t, err, boom)
		})
	}

	bad := &factsDB{rows: &cannedRows{rows: []factRow{{riceID, "abc", nil, nil, nil}}}}
	_, err := NewStore(bad).PricingFacts(context.Background(), []string{riceID})
	require.Error(t, err)
}

func TestQuoteThroughStore(t *testing.T) {
	calc := pricing.Calculator{}
	db := &factsDB{rows: &cannedRows{rows: []factRow{riceRow()}}}
	quote, err := calc.Quote(context.Background(),
		[]pricing.Line{{ProductID: strings.ToUpper(riceID), Qty: 1}}, pricing.Retail, NewStore(db))
	require.NoError(t, err)
	require.Equal(t, "14.99", quote.Breakdown.Subtotal.StringFixed(2))

	db = &factsDB{rows: &cannedRows{}}
	_, err = calc.Quote(context.Background(),
		[]pricing.Line{{ProductID: "BR-5KG", Qty: 1}}, pricing.Retail, NewStore(db))
	require.ErrorIs(t, err, pricing.ErrProductNotFound)
	var nf *pricing.ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, []string{"BR-5KG"}, nf.IDs)
}

type batchStep struct {
	tag string
	err error
}

type scriptedBatch struct {
	steps  []batchStep
	pos    int
	closed int
}

func (b *scriptedBatch) Exec() (pgconn.CommandTag, error) {
	step := b.steps[b.pos]
	b.pos++
	return pgconn.NewCommandTag(step.tag), step.err
}

func (b *scriptedBatch) Query() (pgx.Rows, error) { return nil, errors.New("not scripted") }
func (b *scriptedBatch) QueryRow() pgx.Row { return nil }
func (b *scriptedBatch) Close() error {
	b.closed++
	return nil
}

type writeDB struct {
	factsDB
	batch  *scriptedBatch
	queued []string
	tag    string
	err    error
}

func (db *writeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		db.queued = append(db.queued, strings.Fields(q.SQL)[0])
	}
	return db.batch
}

func (db *writeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(db.tag), db.err
}

const dairyID = "0d9c2b1e-5f7a-4c3b-8e21-6a4f0b9d2c11"

func TestUpdateProductReplacesCategoriesInOneBatch(t *testing.T) {
	db := &writeDB{batch: &scriptedBatch{steps: []batchStep{{tag: "UPDATE 1"}, {tag: "DELETE 2"}, {tag: "INSERT 0 1"}}}}
	err := NewStore(db).UpdateProduct(context.Background(), riceID, ProductWrite{
		Product:     Product{SKU: "BR-5KG", Name: "Basmati"},
		CategoryIDs: []string{dairyID},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"UPDATE", "DELETE", "INSERT"}, db.queued)
	require.Equal(t, 1, db.batch.closed)
}

func TestUpdateProductMissingRow(t *testing.T) {
	db := &writeDB{batch: &scriptedBatch{steps: []batchStep{{tag: "UPDATE 0"}, {tag: "DELETE 0"}}}}
	err := NewStore(db).UpdateProduct(context.Background(), riceID, ProductWrite{Product: Product{SKU: "X", Name: "X"}})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "products_sku_key"}
	db := &writeDB{batch: &scriptedBatch{steps: []batchStep{{err: dup}}}}
	_, err := NewStore(db).CreateProduct(context.Background(), ProductWrite{Product: Product{SKU: "BR-5KG", Name: "Basmati"}})
	require.ErrorIs(t, err, ErrDuplicateSKU)
	require.Equal(t, []string{"INSERT"}, db.queued)
}

func TestCreateProductRejectsMalformedCategory(t *testing.T) {
	db := &writeDB{}
	_, err := NewStore(db).CreateProduct(context.Background(), ProductWrite{
		Product:     Product{SKU: "BR-5KG", Name: "Basmati"},
		CategoryIDs: []string{"dairy"},
	})
	require.ErrorIs(t, err, ErrUnknownCategory)
	require.Empty(t, db.queued)
}

func TestDeleteAndToggleReportMissingRows(t *testing.T) {
	db := &writeDB{tag: "DELETE 0"}
	store := NewStore(db)
	require.ErrorIs(t, store.DeleteProduct(context.Background(), riceID), ErrProductNotFound)
	require.ErrorIs(t, store.DeleteCategory(context.Background(), dairyID), ErrCategoryNotFound)

	db.tag = "UPDATE 1"
	require.NoError(t, store.SetProductActive(context.Background(), riceID, false))
}

func TestMapWriteError(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "product_categories_category_id_fkey"}
	require.ErrorIs(t, mapWriteError(fk, ErrDuplicateSKU), ErrUnknownCategory)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "categories_slug_key"}
	require.ErrorIs(t, mapWriteError(dup, ErrDuplicateSlug), ErrDuplicateSlug)

	plain := errors.New("timeout")
	require.Equal(t, plain, mapWriteError(plain, ErrDuplicateSKU))
}
