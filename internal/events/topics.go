package events

// Topic constants for domain events emitted by the shop.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)

// OrderCreated is the payload of TopicOrderCreated.
type OrderCreated struct {
	OrderID        string  `json:"orderId"`
	CustomerID     string  `json:"customerId,omitempty"`
	CustomerName   string  `json:"customerName"`
	Email          string  `json:"email,omitempty"`
	DeliveryMethod string  `json:"deliveryMethod"`
	PriceList      string  `json:"priceList"`
	Subtotal       float64 `json:"subtotal"`
	VAT            float64 `json:"vat"`
	Shipping       float64 `json:"shipping"`
	Total          float64 `json:"total"`
	TotalWeightKg  float64 `json:"totalWeightKg"`
	ItemCount      int     `json:"itemCount"`
}

// OrderStatusChanged is the payload of TopicOrderStatusChanged.
type OrderStatusChanged struct {
	OrderID string `json:"orderId"`
	From    string `json:"from"`
	To      string `json:"to"`
}
