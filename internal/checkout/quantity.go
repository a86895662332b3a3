package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

// Quantity is a cart quantity decoded leniently. Numbers, numeric strings and null
// are accepted; anything that is not a whole number decodes to zero, which the
// calculator treats as a line with no effect. Whole numbers beyond the int range
// saturate, so the calculator rejects them as too large.
type Quantity int

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	*q = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(raw)
	if err == nil {
		*q = Quantity(n)
		return nil
	}
	if errors.Is(err, strconv.ErrRange) {
		*q = saturate(!strings.HasPrefix(raw, "-"))
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return nil
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		*q = saturate(f > 0)
		return nil
	}
	*q = Quantity(int64(f))
	return nil
}

// saturate keeps out-of-range quantities on the correct side of zero so oversized
// lines are rejected rather than ignored.
func saturate(positive bool) Quantity {
	if positive {
		return Quantity(math.MaxInt)
	}
	return Quantity(math.MinInt)
}

// Item is one submitted cart line.
type Item struct {
	ProductID string   `json:"productId"`
	Qty       Quantity `json:"qty"`
}

func toLines(items []Item) []pricing.Line {
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.Line{ProductID: strings.TrimSpace(it.ProductID), Qty: int(it.Qty)})
	}
	return lines
}
