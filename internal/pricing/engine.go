package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CustomerClass selects which price list applies to a whole cart.
type CustomerClass string

const (
	Retail    CustomerClass = "RETAIL"
	Wholesale CustomerClass = "WHOLESALE"
)

// ParseCustomerClass maps a stored customer type onto a price list. Anything other
// than WHOLESALE prices at retail.
func ParseCustomerClass(value string) CustomerClass {
	if strings.EqualFold(strings.TrimSpace(value), string(Wholesale)) {
		return Wholesale
	}
	return Retail
}

// Fallback controls what happens when the price for the selected class is missing.
type Fallback string

const (
	// FallbackNone prices a line with a missing price at zero, which drops it.
	FallbackNone Fallback = "none"
	// FallbackOtherPrice uses the other class's price when the selected one is missing.
	FallbackOtherPrice Fallback = "other"
)

// ParseFallback normalises a configured fallback policy, defaulting to FallbackNone.
func ParseFallback(value string) Fallback {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "other", "other_price", "other-price":
		return FallbackOtherPrice
	default:
		return FallbackNone
	}
}

// Line is one cart entry submitted by a shopper.
type Line struct {
	ProductID string
	Qty       int
}

// Facts is the catalog snapshot of a single product needed for pricing.
type Facts struct {
	RetailUnitPrice    decimal.NullDecimal
	WholesaleUnitPrice decimal.NullDecimal
	UnitWeightKg       decimal.NullDecimal
	// VATRate is recorded for invoices only; totals always use VATRate below.
	VATRate decimal.NullDecimal
}

// Catalog resolves pricing facts for a set of product ids. Ids missing from the
// returned map are treated as unknown products.
type Catalog interface {
	PricingFacts(ctx context.Context, ids []string) (map[string]Facts, error)
}

// PricedLine is a cart line that contributed to the subtotal.
type PricedLine struct {
	ProductID string
	Qty       int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	WeightKg  decimal.Decimal
	VATRate   decimal.NullDecimal
}

// Quote is the calculator result: the rounded breakdown plus the lines behind it.
type Quote struct {
	Breakdown Breakdown
	Lines     []PricedLine
	Class     CustomerClass
}

// Calculator prices carts. The zero value uses FallbackNone.
type Calculator struct {
	Fallback Fallback
}

// Quote validates the cart, fetches facts for every referenced product and computes
// the totals. An empty cart is rejected before the catalog is consulted.
func (c Calculator) Quote(ctx context.Context, lines []Line, class CustomerClass, catalog Catalog) (Quote, error) {
	if !hasEffectiveLine(lines) {
		return Quote{}, ErrCartEmpty
	}
	if catalog == nil {
		return Quote{}, fmt.Errorf("pricing: catalog not configured")
	}
	facts, err := catalog.PricingFacts(ctx, ProductIDs(lines))
	if err != nil {
		return Quote{}, fmt.Errorf("pricing: lookup products: %w", err)
	}
	return c.Compute(lines, class, facts)
}

// Compute is the pure part of Quote. Identical inputs always produce identical output.
func (c Calculator) Compute(lines []Line, class CustomerClass, facts map[string]Facts) (Quote, error) {
	if !hasEffectiveLine(lines) {
		return Quote{}, ErrCartEmpty
	}
	var missing []string
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := facts[line.ProductID]; ok {
			continue
		}
		if _, dup := seen[line.ProductID]; dup {
			continue
		}
		seen[line.ProductID] = struct{}{}
		missing = append(missing, line.ProductID)
	}
	if len(missing) > 0 {
		return Quote{}, &ProductNotFoundError{IDs: missing}
	}
	for _, line := range lines {
		if line.Qty > MaxLineQty {
			return Quote{}, fmt.Errorf("%w: %d units of %s (max %d)", ErrQuantityTooLarge, line.Qty, line.ProductID, MaxLineQty)
		}
	}

	subtotal := decimal.Zero
	weight := decimal.Zero
	priced := make([]PricedLine, 0, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		f := facts[line.ProductID]
		price, _ := c.UnitPrice(f, class)
		if !price.IsPositive() {
			continue
		}
		qty := decimal.NewFromInt(int64(line.Qty))
		lineTotal := price.Mul(qty)
		lineWeight := decimal.Zero
		if f.UnitWeightKg.Valid && f.UnitWeightKg.Decimal.IsPositive() {
			lineWeight = f.UnitWeightKg.Decimal.Mul(qty)
		}
		subtotal = subtotal.Add(lineTotal)
		weight = weight.Add(lineWeight)
		priced = append(priced, PricedLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitPrice: price.Round(2),
			LineTotal: lineTotal.Round(2),
			WeightKg:  lineWeight.Round(3),
			VATRate:   f.VATRate,
		})
	}
	if !subtotal.IsPositive() {
		return Quote{}, ErrNoValidItems
	}
	breakdown := Totals(subtotal, weight)
	if !breakdown.Recordable() {
		return Quote{}, fmt.Errorf("%w: total %s, weight %s kg", ErrOrderTooLarge, breakdown.Total.StringFixed(2), breakdown.TotalWeightKg.StringFixed(3))
	}
	return Quote{Breakdown: breakdown, Lines: priced, Class: class}, nil
}

// UnitPrice picks the unit price for class under the configured fallback. The bool
// is false when no price applies, in which case the line contributes nothing.
func (c Calculator) UnitPrice(f Facts, class CustomerClass) (decimal.Decimal, bool) {
	selected, other := f.RetailUnitPrice, f.WholesaleUnitPrice
	if class == Wholesale {
		selected, other = f.WholesaleUnitPrice, f.RetailUnitPrice
	}
	if selected.Valid {
		return selected.Decimal, true
	}
	if c.Fallback == FallbackOtherPrice && other.Valid {
		return other.Decimal, true
	}
	return decimal.Zero, false
}

// ProductIDs returns the distinct product ids referenced by lines in first-seen order.
func ProductIDs(lines []Line) []string {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func hasEffectiveLine(lines []Line) bool {
	for _, line := range lines {
		if line.Qty > 0 {
			return true
		}
	}
	return false
}
