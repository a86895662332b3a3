package order

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusDispatched Status = "DISPATCHED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// DeliveryMethod is how the order reaches the customer.
type DeliveryMethod string

const (
	DeliveryShip   DeliveryMethod = "SHIP"
	DeliveryPickup DeliveryMethod = "PICKUP"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order: not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("order: status transition not allowed")
	// ErrStatusChanged is returned when the order moved on concurrently.
	ErrStatusChanged = errors.New("order: status changed concurrently")
)

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusDispatched: 2,
	StatusCompleted:  3,
}

// ParseStatus normalises a status name. ok is false for unknown values.
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(value)))
	switch s {
	case StatusPending, StatusConfirmed, StatusDispatched, StatusCompleted, StatusCancelled:
		return s, true
	}
	return "", false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward through fulfilment; any open order may be cancelled.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	return okFrom && okTo && toRank > fromRank
}

// ParseDeliveryMethod maps anything other than PICKUP onto SHIP.
func ParseDeliveryMethod(value string) DeliveryMethod {
	if strings.EqualFold(strings.TrimSpace(value), string(DeliveryPickup)) {
		return DeliveryPickup
	}
	return DeliveryShip
}

// Line is a persisted order line.
type Line struct {
	ProductID string
	SKU       string
	Name      string
	Qty       int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	WeightKg  decimal.Decimal
	VATRate   decimal.NullDecimal
}

// Order is a placed order with its totals frozen at commit time.
type Order struct {
	ID             string
	CustomerID     string
	CustomerName   string
	CustomerType   string
	BusinessName   string
	Street         string
	City           string
	Postcode       string
	Phone          string
	Email          string
	DeliveryMethod DeliveryMethod
	Notes          string
	Status         Status
	PriceList      pricing.CustomerClass
	Totals         pricing.Breakdown
	AcceptedTerms  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// NewOrder is the input for Store.Create.
type NewOrder struct {
	CustomerID     string
	CustomerName   string
	CustomerType   string
	BusinessName   string
	Street         string
	City           string
	Postcode       string
	Phone          string
	Email          string
	DeliveryMethod DeliveryMethod
	Notes          string
	Quote          pricing.Quote
	// UpdateContact copies the address block onto the customer record in the same transaction.
	UpdateContact bool
}

type lineJSON struct {
	ProductID string   `json:"productId"`
	SKU       string   `json:"sku,omitempty"`
	Name      string   `json:"name,omitempty"`
	Qty       int      `json:"qty"`
	UnitPrice float64  `json:"unitPrice"`
	LineTotal float64  `json:"lineTotal"`
	WeightKg  float64  `json:"weightKg"`
	VATRate   *float64 `json:"vatRate,omitempty"`
}

// MarshalJSON renders amounts as plain numbers.
func (l Line) MarshalJSON() ([]byte, error) {
	out := lineJSON{
		ProductID: l.ProductID,
		SKU:       l.SKU,
		Name:      l.Name,
		Qty:       l.Qty,
		UnitPrice: l.UnitPrice.InexactFloat64(),
		LineTotal: l.LineTotal.InexactFloat64(),
		WeightKg:  l.WeightKg.InexactFloat64(),
	}
	if l.VATRate.Valid {
		rate := l.VATRate.Decimal.InexactFloat64()
		out.VATRate = &rate
	}
	return json.Marshal(out)
}

type orderJSON struct {
	ID             string                `json:"id"`
	CustomerID     string                `json:"customerId,omitempty"`
	CustomerName   string                `json:"customerName"`
	CustomerType   string                `json:"customerType,omitempty"`
	BusinessName   string                `json:"businessName,omitempty"`
	Street         string                `json:"street"`
	City           string                `json:"city"`
	Postcode       string                `json:"postcode"`
	Phone          string                `json:"phone"`
	Email          string                `json:"email,omitempty"`
	DeliveryMethod DeliveryMethod        `json:"deliveryMethod"`
	Notes          string                `json:"notes,omitempty"`
	Status         Status                `json:"status"`
	PriceList      pricing.CustomerClass `json:"priceList"`
	Totals         pricing.Breakdown     `json:"totals"`
	CreatedAt      time.Time             `json:"createdAt"`
	Items          []Line                `json:"items,omitempty"`
}

// MarshalJSON renders the order for API responses.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		CustomerName:   o.CustomerName,
		CustomerType:   o.CustomerType,
		BusinessName:   o.BusinessName,
		Street:         o.Street,
		City:           o.City,
		Postcode:       o.Postcode,
		Phone:          o.Phone,
		Email:          o.Email,
		DeliveryMethod: o.DeliveryMethod,
		Notes:          o.Notes,
		Status:         o.Status,
		PriceList:      o.PriceList,
		Totals:         o.Totals,
		CreatedAt:      o.CreatedAt,
		Items:          o.Lines,
	})
}

// Summary is the list projection of an order.
type Summary struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	Status         Status          `json:"status"`
	CustomerName   string          `json:"customerName"`
	BusinessName   string          `json:"businessName,omitempty"`
	Phone          string          `json:"phone"`
	City           string          `json:"city"`
	Postcode       string          `json:"postcode"`
	DeliveryMethod DeliveryMethod  `json:"deliveryMethod"`
	Total          decimal.Decimal `json:"total"`
}

type summaryJSON Summary

// MarshalJSON renders the total as a plain number.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		summaryJSON
		Total float64 `json:"total"`
	}{summaryJSON: summaryJSON(s), Total: s.Total.InexactFloat64()})
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
