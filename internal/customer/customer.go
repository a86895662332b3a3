package customer

import (
	"errors"
	"time"

	"github.com/noah-isme/backend-grocer/internal/pricing"
)

// ErrNotFound is returned by stores when no customer matches.
var ErrNotFound = errors.New("customer: not found")

// Customer is a registered shopper.
type Customer struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Type         string    `json:"customerType"`
	BusinessName string    `json:"businessName,omitempty"`
	Street       string    `json:"street,omitempty"`
	City         string    `json:"city,omitempty"`
	Postcode     string    `json:"postcode,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	IsActive     bool      `json:"isActive"`
	IsAdmin      bool      `json:"isAdmin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Class returns the price list the customer buys from.
func (c Customer) Class() pricing.CustomerClass {
	return pricing.ParseCustomerClass(c.Type)
}

// Contact is the address block captured at checkout.
type Contact struct {
	BusinessName string
	Street       string
	City         string
	Postcode     string
	Phone        string
}

// Profile carries optional account changes. Empty fields are left untouched.
type Profile struct {
	Name  string
	Email string
}
