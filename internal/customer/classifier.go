package customer

import (
	"context"
	"errors"
	"strings"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

type customerGetter interface {
	Get(ctx context.Context, id string) (Customer, error)
}

// Classifier resolves the price list for a session customer.
type Classifier struct {
	Customers customerGetter
}

// Classify returns WHOLESALE only when the stored customer says so. Anonymous and
// unknown customers buy at retail.
func (c Classifier) Classify(ctx context.Context, customerID string) (pricing.CustomerClass, error) {
	if strings.TrimSpace(customerID) == "" || c.Customers == nil {
		return pricing.Retail, nil
	}
	found, err := c.Customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return pricing.Retail, nil
		}
		return pricing.Retail, err
	}
	return found.Class(), nil
}
