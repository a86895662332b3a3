package pricing_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

type stubCatalog struct {
	mu    sync.Mutex
	facts map[string]pricing.Facts
	err   error
	calls [][]string
}

func (s *stubCatalog) PricingFacts(_ context.Context, ids []string) (map[string]pricing.Facts, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), ids...))
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]pricing.Facts, len(ids))
	for _, id := range ids {
		if f, ok := s.facts[id]; ok {
			out[id] = f
		}
	}
	return out, nil
}

func dec(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "expected %s got %s", want, got.StringFixed(3))
}

func groceryCatalog() *stubCatalog {
	return &stubCatalog{facts: map[string]pricing.Facts{
		"rice-5kg": {
			RetailUnitPrice:    dec("14.99"),
			WholesaleUnitPrice: dec("11.20"),
			UnitWeightKg:       dec("5"),
		},
		"oil-1l": {
			RetailUnitPrice:    dec("10.00"),
			WholesaleUnitPrice: dec("7.50"),
		},
		"rose-water": {
			RetailUnitPrice: dec("2.49"),
			UnitWeightKg:    dec("0.5"),
		},
		"free-sample": {
			RetailUnitPrice:    dec("0"),
			WholesaleUnitPrice: dec("0"),
			UnitWeightKg:       dec("1"),
		},
	}}
}

func TestQuoteRetailRiceScenario(t *testing.T) {
	catalog := groceryCatalog()
	quote, err := pricing.Calculator{}.Quote(context.Background(), []pricing.Line{{ProductID: "rice-5kg", Qty: 3}}, pricing.Retail, catalog)
	require.NoError(t, err)

	b := quote.Breakdown
	requireAmount(t, "44.97", b.Subtotal)
	requireAmount(t, "15.000", b.TotalWeightKg)
	require.Equal(t, int64(2), b.ShippingUnits)
	requireAmount(t, "8.00", b.Shipping)
	requireAmount(t, "8.99", b.VAT)
	requireAmount(t, "61.96", b.Total)

	require.Len(t, quote.Lines, 1)
	requireAmount(t, "14.99", quote.Lines[0].UnitPrice)
	requireAmount(t, "44.97", quote.Lines[0].LineTotal)
	require.Equal(t, pricing.Retail, quote.Class)
}

func TestQuoteCustomerClassSelectsPriceList(t *testing.T) {
	catalog := groceryCatalog()
	lines := []pricing.Line{{ProductID: "oil-1l", Qty: 2}}

	retail, err := pricing.Calculator{}.Quote(context.Background(), lines, pricing.Retail, catalog)
	require.NoError(t, err)
	requireAmount(t, "20.00", retail.Breakdown.Subtotal)

	wholesale, err := pricing.Calculator{}.Quote(context.Background(), lines, pricing.Wholesale, catalog)
	require.NoError(t, err)
	requireAmount(t, "15.00", wholesale.Breakdown.Subtotal)
}

func TestQuoteEmptyCartSkipsLookup(t *testing.T) {
	catalog := groceryCatalog()

	_, err := pricing.Calculator{}.Quote(context.Background(), nil, pricing.Retail, catalog)
	require.ErrorIs(t, err, pricing.ErrCartEmpty)

	_, err = pricing.Calculator{}.Quote(context.Background(), []pricing.Line{{ProductID: "rice-5kg", Qty: 0}, {ProductID: "oil-1l", Qty: -2}}, pricing.Retail, catalog)
	require.ErrorIs(t, err, pricing.ErrCartEmpty)

	require.Empty(t, catalog.calls)
}

func TestQuoteUnknownProductRejectsWholeCart(t *testing.T) {
	catalog := groceryCatalog()
	lines := []pricing.Line{
		{ProductID: "rice-5kg", Qty: 1},
		{ProductID: "ghost", Qty: 1},
		{ProductID: "ghost", Qty: 2},
	}

	quote, err := pricing.Calculator{}.Quote(context.Background(), lines, pricing.Retail, catalog)
	require.ErrorIs(t, err, pricing.ErrProductNotFound)
	require.Empty(t, quote.Lines)
	require.True(t, quote.Breakdown.Total.IsZero())

	var notFound *pricing.ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, []string{"ghost"}, notFound.IDs)
}

func TestQuoteLooksUpDistinctIDs(t *testing.T) {
	catalog := groceryCatalog()
	lines := []pricing.Line{
		{ProductID: "rice-5kg", Qty: 1},
		{ProductID: "oil-1l", Qty: 1},
		{ProductID: "rice-5kg", Qty: 2},
	}
	quote, err := pricing.Calculator{}.Quote(context.Background(), lines, pricing.Retail, catalog)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"rice-5kg", "oil-1l"}}, catalog.calls)
	requireAmount(t, "54.97", quote.Breakdown.Subtotal)
	require.Len(t, quote.Lines, 3)
}

func TestQuoteCatalogFailurePropagates(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("connection refused")}
	_, err := pricing.Calculator{}.Quote(context.Background(), []pricing.Line{{ProductID: "rice-5kg", Qty: 1}}, pricing.Retail, catalog)
	require.Error(t, err)
	require.NotErrorIs(t, err, pricing.ErrProductNotFound)
	require.Contains(t, err.Error(), "connection refused")
}

func TestComputeZeroQuantityLinesContributeNothing(t *testing.T) {
	catalog := groceryCatalog()
	lines := []pricing.Line{
		{ProductID: "rice-5kg", Qty: 0},
		{ProductID: "oil-1l", Qty: 1},
	}
	quote, err := pricing.Calculator{}.Compute(lines, pricing.Retail, catalog.facts)
	require.NoError(t, err)
	requireAmount(t, "10.00", quote.Breakdown.Subtotal)
	requireAmount(t, "0", quote.Breakdown.TotalWeightKg)
	require.Len(t, quote.Lines, 1)
}

func TestComputeZeroWeightShipsFree(t *testing.T) {
	catalog := groceryCatalog()
	quote, err := pricing.Calculator{}.Compute([]pricing.Line{{ProductID: "oil-1l", Qty: 250}}, pricing.Retail, catalog.facts)
	require.NoError(t, err)
	requireAmount(t, "0", quote.Breakdown.TotalWeightKg)
	requireAmount(t, "0.00", quote.Breakdown.Shipping)
	require.Equal(t, int64(0), quote.Breakdown.ShippingUnits)
}

func TestComputeNoValidItems(t *testing.T) {
	catalog := groceryCatalog()
	_, err := pricing.Calculator{}.Compute([]pricing.Line{{ProductID: "free-sample", Qty: 3}}, pricing.Retail, catalog.facts)
	require.ErrorIs(t, err, pricing.ErrNoValidItems)
}

func TestComputePriceFallbackPolicy(t *testing.T) {
	catalog := groceryCatalog()
	lines := []pricing.Line{{ProductID: "rose-water", Qty: 4}}

	_, err := pricing.Calculator{Fallback: pricing.FallbackNone}.Compute(lines, pricing.Wholesale, catalog.facts)
	require.ErrorIs(t, err, pricing.ErrNoValidItems)

	quote, err := pricing.Calculator{Fallback: pricing.FallbackOtherPrice}.Compute(lines, pricing.Wholesale, catalog.facts)
	require.NoError(t, err)
	requireAmount(t, "9.96", quote.Breakdown.Subtotal)
	requireAmount(t, "2.000", quote.Breakdown.TotalWeightKg)
	requireAmount(t, "4.00", quote.Breakdown.Shipping)
}

func TestUnitPriceMatchesFallback(t *testing.T) {
	rose := groceryCatalog().facts["rose-water"]

	_, ok := pricing.Calculator{}.UnitPrice(rose, pricing.Wholesale)
	require.False(t, ok)

	price, ok := pricing.Calculator{Fallback: pricing.FallbackOtherPrice}.UnitPrice(rose, pricing.Wholesale)
	require.True(t, ok)
	requireAmount(t, "2.49", price)

	price, ok = pricing.Calculator{}.UnitPrice(rose, pricing.Retail)
	require.True(t, ok)
	requireAmount(t, "2.49", price)
}

func TestComputeRejectsOversizedLines(t *testing.T) {
	catalog := groceryCatalog()
	calc := pricing.Calculator{}

	_, err := calc.Compute([]pricing.Line{{ProductID: "oil-1l", Qty: pricing.MaxLineQty + 1}}, pricing.Retail, catalog.facts)
	require.ErrorIs(t, err, pricing.ErrQuantityTooLarge)

	_, err = calc.Compute([]pricing.Line{{ProductID: "ghost", Qty: pricing.MaxLineQty + 1}}, pricing.Retail, catalog.facts)
	require.ErrorIs(t, err, pricing.ErrProductNotFound)

	_, err = calc.Compute([]pricing.Line{{ProductID: "oil-1l", Qty: pricing.MaxLineQty}}, pricing.Retail, catalog.facts)
	require.NoError(t, err)

	gold := map[string]pricing.Facts{"bullion": {RetailUnitPrice: dec("9999999.99")}}
	_, err = calc.Compute([]pricing.Line{{ProductID: "bullion", Qty: 2000}}, pricing.Retail, gold)
	require.ErrorIs(t, err, pricing.ErrOrderTooLarge)
}

func TestComputeIsDeterministic(t *testing.T) {
	catalog := groceryCatalog()
	lines := []pricing.Line{
		{ProductID: "rice-5kg", Qty: 7},
		{ProductID: "rose-water", Qty: 3},
		{ProductID: "oil-1l", Qty: 1},
	}
	calc := pricing.Calculator{}
	first, err := calc.Compute(lines, pricing.Retail, catalog.facts)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first.Breakdown)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := calc.Compute(lines, pricing.Retail, catalog.facts)
			if err != nil {
				return
			}
			results[i], _ = json.Marshal(q.Breakdown)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		require.Equal(t, firstJSON, got)
	}
}

func TestShippingBands(t *testing.T) {
	cases := []struct {
		weight string
		units  int64
		cost   string
	}{
		{"0", 0, "0"},
		{"-3", 0, "0"},
		{"0.001", 1, "4"},
		{"14", 1, "4"},
		{"14.001", 2, "8"},
		{"28", 2, "8"},
		{"28.5", 3, "12"},
	}
	for _, tc := range cases {
		units, cost := pricing.ShippingFor(decimal.RequireFromString(tc.weight))
		require.Equal(t, tc.units, units, "weight %s", tc.weight)
		requireAmount(t, tc.cost, cost)
	}
}

func TestComputeBandBoundaryThroughCart(t *testing.T) {
	facts := map[string]pricing.Facts{
		"sack":      {RetailUnitPrice: dec("1.00"), UnitWeightKg: dec("14")},
		"sack-plus": {RetailUnitPrice: dec("1.00"), UnitWeightKg: dec("14.001")},
	}
	at, err := pricing.Calculator{}.Compute([]pricing.Line{{ProductID: "sack", Qty: 1}}, pricing.Retail, facts)
	require.NoError(t, err)
	requireAmount(t, "4.00", at.Breakdown.Shipping)

	over, err := pricing.Calculator{}.Compute([]pricing.Line{{ProductID: "sack-plus", Qty: 1}}, pricing.Retail, facts)
	require.NoError(t, err)
	requireAmount(t, "8.00", over.Breakdown.Shipping)
	requireAmount(t, "14.001", over.Breakdown.TotalWeightKg)
}

func TestTotalsVATInvariant(t *testing.T) {
	cent := decimal.RequireFromString("0.01")
	for _, raw := range []string{"0.01", "0.05", "1.005", "19.99", "44.97", "123.455", "9999.99"} {
		subtotal := decimal.RequireFromString(raw)
		b := pricing.Totals(subtotal, decimal.RequireFromString("15"))
		requireAmount(t, subtotal.Mul(pricing.VATRate).Round(2).String(), b.VAT)
		sum := b.Subtotal.Add(b.VAT).Add(b.Shipping)
		require.True(t, sum.Sub(b.Total).Abs().LessThanOrEqual(cent), "subtotal %s", raw)
	}
}

func TestBreakdownJSONShape(t *testing.T) {
	b := pricing.Totals(decimal.RequireFromString("44.97"), decimal.RequireFromString("15"))
	data, err := json.Marshal(b)
	require.NoError(t, err)
	require.JSONEq(t, `{"subtotal":44.97,"vat":8.99,"shipping":8,"total":61.96,"totalWeightKg":15}`, string(data))

	var decoded pricing.Breakdown
	require.NoError(t, json.Unmarshal(data, &decoded))
	requireAmount(t, "61.96", decoded.Total)
	require.Equal(t, int64(2), decoded.ShippingUnits)
}

func TestParseHelpers(t *testing.T) {
	require.Equal(t, pricing.Wholesale, pricing.ParseCustomerClass("wholesale"))
	require.Equal(t, pricing.Retail, pricing.ParseCustomerClass(""))
	require.Equal(t, pricing.Retail, pricing.ParseCustomerClass("BUSINESS"))
	require.Equal(t, pricing.FallbackOtherPrice, pricing.ParseFallback("other"))
	require.Equal(t, pricing.FallbackNone, pricing.ParseFallback("nope"))
}
