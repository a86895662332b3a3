package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

var (
	// VATRate is applied to the whole subtotal.
	VATRate = decimal.RequireFromString("0.20")
	// ShippingBandKg is the weight covered by one shipping charge.
	ShippingBandKg = decimal.NewFromInt(14)
	// ShippingBandCharge is the charge in GBP for each started band.
	ShippingBandCharge = decimal.NewFromInt(4)

	// MaxAmount is the largest money value an order column holds (NUMERIC(12,2)).
	MaxAmount = decimal.RequireFromString("9999999999.99")
	// MaxWeightKg is the largest weight an order column holds (NUMERIC(12,3)).
	MaxWeightKg = decimal.RequireFromString("999999999.999")
)

// MaxLineQty caps the units on a single cart line.
const MaxLineQty = 10000

// Breakdown holds checkout totals. Money is rounded to pence and weight to grams.
type Breakdown struct {
	Subtotal      decimal.Decimal
	VAT           decimal.Decimal
	Shipping      decimal.Decimal
	Total         decimal.Decimal
	TotalWeightKg decimal.Decimal
	ShippingUnits int64
}

// Totals derives the breakdown from an unrounded subtotal and weight. Rounding
// happens here and nowhere else.
func Totals(subtotal, weightKg decimal.Decimal) Breakdown {
	units, shipping := ShippingFor(weightKg)
	vat := subtotal.Mul(VATRate)
	total := subtotal.Add(vat).Add(shipping)
	return Breakdown{
		Subtotal:      subtotal.Round(2),
		VAT:           vat.Round(2),
		Shipping:      shipping.Round(2),
		Total:         total.Round(2),
		TotalWeightKg: weightKg.Round(3),
		ShippingUnits: units,
	}
}

// Recordable reports whether every amount in b fits the order columns.
func (b Breakdown) Recordable() bool {
	return b.Total.LessThanOrEqual(MaxAmount) && b.TotalWeightKg.LessThanOrEqual(MaxWeightKg)
}

// ShippingFor returns the number of started 14 kg bands and their cost. Zero or
// negative weight ships free.
func ShippingFor(weightKg decimal.Decimal) (int64, decimal.Decimal) {
	if !weightKg.IsPositive() {
		return 0, decimal.Zero
	}
	units := weightKg.Div(ShippingBandKg).Ceil().IntPart()
	return units, ShippingBandCharge.Mul(decimal.NewFromInt(units))
}

type breakdownJSON struct {
	Subtotal      float64 `json:"subtotal"`
	VAT           float64 `json:"vat"`
	Shipping      float64 `json:"shipping"`
	Total         float64 `json:"total"`
	TotalWeightKg float64 `json:"totalWeightKg"`
}

// MarshalJSON renders every amount as a plain JSON number.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(breakdownJSON{
		Subtotal:      b.Subtotal.InexactFloat64(),
		VAT:           b.VAT.InexactFloat64(),
		Shipping:      b.Shipping.InexactFloat64(),
		Total:         b.Total.InexactFloat64(),
		TotalWeightKg: b.TotalWeightKg.InexactFloat64(),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	var raw breakdownJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Subtotal = decimal.NewFromFloat(raw.Subtotal)
	b.VAT = decimal.NewFromFloat(raw.VAT)
	b.Shipping = decimal.NewFromFloat(raw.Shipping)
	b.Total = decimal.NewFromFloat(raw.Total)
	b.TotalWeightKg = decimal.NewFromFloat(raw.TotalWeightKg)
	b.ShippingUnits, _ = ShippingFor(b.TotalWeightKg)
	return nil
}
