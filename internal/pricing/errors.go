package pricing

import (
	"errors"
	"strings"
)

var (
	// ErrCartEmpty is returned when no line has a positive quantity.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrProductNotFound is returned when the catalog does not know a requested product.
	ErrProductNotFound = errors.New("product not found")
	// ErrNoValidItems is returned when nothing priced above zero.
	ErrNoValidItems = errors.New("no valid items in cart")
	// ErrQuantityTooLarge is returned when a line asks for more than MaxLineQty units.
	ErrQuantityTooLarge = errors.New("quantity too large")
	// ErrOrderTooLarge is returned when an amount or weight exceeds what an order can record.
	ErrOrderTooLarge = errors.New("order too large")
)

// ProductNotFoundError lists the unknown product ids. It matches ErrProductNotFound.
type ProductNotFoundError struct {
	IDs []string
}

func (e *ProductNotFoundError) Error() string {
	return "product not found: " + strings.Join(e.IDs, ", ")
}

// Is reports ErrProductNotFound equivalence for errors.Is.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}
