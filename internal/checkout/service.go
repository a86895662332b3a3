package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/customer"
	"github.com/noah-isme/backend-grocer/internal/events"
	"github.com/noah-isme/backend-grocer/internal/obs"
	"github.com/noah-isme/backend-grocer/internal/order"
	"github.com/noah-isme/backend-grocer/internal/pricing"
)

const (
	stagePreview = "preview"
	stageCommit  = "commit"
)

type customerReader interface {
	Get(ctx context.Context, id string) (customer.Customer, error)
}

type orderWriter interface {
	Create(ctx context.Context, in order.NewOrder) (order.Order, error)
}

type emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Input is the checkout form submitted by the storefront.
type Input struct {
	CustomerName   string  `json:"customerName" validate:"required"`
	CustomerType   string  `json:"customerType"`
	BusinessName   string  `json:"businessName"`
	Street         string  `json:"street" validate:"required"`
	City           string  `json:"city" validate:"required"`
	Postcode       string  `json:"postcode" validate:"required"`
	Phone          string  `json:"phone" validate:"required"`
	Email          string  `json:"email" validate:"omitempty,email"`
	DeliveryMethod string  `json:"deliveryMethod"`
	Notes          *string `json:"notes"`
	Items          []Item  `json:"items"`
}

func (in *Input) normalise() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.Street = strings.TrimSpace(in.Street)
	in.City = strings.TrimSpace(in.City)
	in.Postcode = strings.TrimSpace(in.Postcode)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
}

// Output acknowledges a placed order.
type Output struct {
	OK        bool   `json:"ok"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// Service prices carts and places orders. Preview and Place share one calculator.
type Service struct {
	calc          pricing.Calculator
	catalog       pricing.Catalog
	customers     customerReader
	orders        orderWriter
	events        emitter
	validate      *validator.Validate
	lookupTimeout time.Duration
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Calculator    pricing.Calculator
	Catalog       pricing.Catalog
	Customers     customerReader
	Orders        orderWriter
	Events        emitter
	Validator     *validator.Validate
	LookupTimeout time.Duration
	Logger        zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	if cfg.Orders == nil {
		return nil, errors.New("checkout: order store is required")
	}
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}
	return &Service{
		calc:          cfg.Calculator,
		catalog:       cfg.Catalog,
		customers:     cfg.Customers,
		orders:        cfg.Orders,
		events:        cfg.Events,
		validate:      v,
		lookupTimeout: cfg.LookupTimeout,
		logger:        cfg.Logger,
		tracer:        otel.Tracer("checkout.Service"),
	}, nil
}

// Preview prices the cart for the session customer without persisting anything.
func (s *Service) Preview(ctx context.Context, customerID string, items []Item) (pricing.Breakdown, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Preview")
	defer span.End()

	cust, err := s.resolveCustomer(ctx, customerID)
	if err != nil {
		return pricing.Breakdown{}, s.fail(span, stagePreview, err)
	}
	quote, err := s.quote(ctx, items, classOf(cust))
	if err != nil {
		return pricing.Breakdown{}, s.fail(span, stagePreview, err)
	}
	span.SetAttributes(attribute.String("checkout.price_list", string(quote.Class)))
	obs.ObserveQuote(stagePreview, "ok")
	return quote.Breakdown, nil
}

// Place validates the checkout form, prices the cart and records the order.
func (s *Service) Place(ctx context.Context, customerID string, in Input) (Output, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Place")
	defer span.End()

	in.normalise()
	if err := s.validate.Struct(in); err != nil {
		return Output{}, s.fail(span, stageCommit, invalidInput(err))
	}
	if len(in.Items) == 0 {
		return Output{}, s.fail(span, stageCommit, pricing.ErrCartEmpty)
	}
	cust, err := s.resolveCustomer(ctx, customerID)
	if err != nil {
		return Output{}, s.fail(span, stageCommit, err)
	}
	quote, err := s.quote(ctx, in.Items, classOf(cust))
	if err != nil {
		return Output{}, s.fail(span, stageCommit, err)
	}

	b := quote.Breakdown
	shippingNote := fmt.Sprintf("Shipping: £%s on total weight %s kg (charged at £4 per 14kg).",
		b.Shipping.StringFixed(2), b.TotalWeightKg.StringFixed(2))
	notes := shippingNote
	if in.Notes != nil && *in.Notes != "" {
		notes = *in.Notes + "\n\n" + shippingNote
	}
	newOrder := order.NewOrder{
		CustomerName:   in.CustomerName,
		BusinessName:   in.BusinessName,
		Street:         in.Street,
		City:           in.City,
		Postcode:       in.Postcode,
		Phone:          in.Phone,
		Email:          in.Email,
		DeliveryMethod: order.ParseDeliveryMethod(in.DeliveryMethod),
		Notes:          notes,
		Quote:          quote,
	}
	if cust != nil {
		newOrder.CustomerID = cust.ID
		newOrder.CustomerType = cust.Type
		newOrder.UpdateContact = true
		if newOrder.Email == "" {
			newOrder.Email = cust.Email
		}
	}
	created, err := s.orders.Create(ctx, newOrder)
	if err != nil {
		return Output{}, s.fail(span, stageCommit, fmt.Errorf("create order: %w", err))
	}
	obs.ObserveQuote(stageCommit, "ok")
	obs.ObserveOrderTotal(b.Total.InexactFloat64())
	span.SetAttributes(
		attribute.String("order.id", created.ID),
		attribute.String("checkout.price_list", string(quote.Class)),
	)
	s.logger.Info().Str("order_id", created.ID).Str("price_list", string(quote.Class)).
		Str("total", b.Total.StringFixed(2)).Msg("order_placed")

	s.emitCreated(ctx, created, newOrder, quote)
	return Output{
		OK:        true,
		Reference: created.ID,
		Message:   "Order placed successfully. Reference: " + created.ID,
	}, nil
}

func (s *Service) emitCreated(ctx context.Context, created order.Order, in order.NewOrder, quote pricing.Quote) {
	if s.events == nil {
		return
	}
	b := quote.Breakdown
	payload := events.OrderCreated{
		OrderID:        created.ID,
		CustomerID:     in.CustomerID,
		CustomerName:   in.CustomerName,
		Email:          in.Email,
		DeliveryMethod: string(in.DeliveryMethod),
		PriceList:      string(quote.Class),
		Subtotal:       b.Subtotal.InexactFloat64(),
		VAT:            b.VAT.InexactFloat64(),
		Shipping:       b.Shipping.InexactFloat64(),
		Total:          b.Total.InexactFloat64(),
		TotalWeightKg:  b.TotalWeightKg.InexactFloat64(),
		ItemCount:      len(quote.Lines),
	}
	if _, err := s.events.Emit(ctx, events.TopicOrderCreated, created.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("order_id", created.ID).Msg("order_created_event_failed")
	}
}

func (s *Service) resolveCustomer(ctx context.Context, customerID string) (*customer.Customer, error) {
	if strings.TrimSpace(customerID) == "" || s.customers == nil {
		return nil, nil
	}
	c, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return &c, nil
}

func (s *Service) quote(ctx context.Context, items []Item, class pricing.CustomerClass) (pricing.Quote, error) {
	return s.calc.Quote(ctx, toLines(items), class, timeoutCatalog{inner: s.catalog, timeout: s.lookupTimeout})
}

func (s *Service) fail(span trace.Span, stage string, err error) error {
	result := "error"
	mapped := err
	switch {
	case errors.Is(err, pricing.ErrCartEmpty):
		result = "cart_empty"
		mapped = common.BadRequest("CART_EMPTY", "Cart is empty.", err)
	case errors.Is(err, pricing.ErrProductNotFound):
		result = "product_not_found"
		appErr := common.BadRequest("PRODUCT_NOT_FOUND", "Some products in your cart could not be found. Please refresh and try again.", err)
		var nf *pricing.ProductNotFoundError
		if errors.As(err, &nf) {
			appErr.Details = map[string]any{"productIds": nf.IDs}
		}
		mapped = appErr
	case errors.Is(err, pricing.ErrNoValidItems):
		result = "no_valid_items"
		mapped = common.BadRequest("NO_VALID_ITEMS", "No valid items in cart.", err)
	case errors.Is(err, pricing.ErrQuantityTooLarge):
		result = "quantity_too_large"
		appErr := common.BadRequest("QUANTITY_TOO_LARGE", fmt.Sprintf("Quantity per item cannot exceed %d.", pricing.MaxLineQty), err)
		appErr.Details = map[string]any{"maxQty": pricing.MaxLineQty}
		mapped = appErr
	case errors.Is(err, pricing.ErrOrderTooLarge):
		result = "order_too_large"
		mapped = common.BadRequest("ORDER_TOO_LARGE", "Order is too large to process. Please reduce quantities.", err)
	case common.IsAppError(err):
		result = "invalid"
	}
	obs.ObserveQuote(stage, result)
	span.RecordError(err)
	if result == "error" {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Str("stage", stage).Msg("checkout_failed")
	} else {
		s.logger.Info().Str("stage", stage).Str("reason", result).Msg("checkout_rejected")
	}
	return mapped
}

func invalidInput(err error) *common.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Email" {
				return common.NewAppError("VALIDATION_ERROR", "Email address is invalid.", http.StatusBadRequest, err)
			}
		}
	}
	return common.NewAppError("VALIDATION_ERROR", "Missing required customer or address fields.", http.StatusBadRequest, err)
}

func classOf(c *customer.Customer) pricing.CustomerClass {
	if c == nil {
		return pricing.Retail
	}
	return c.Class()
}

// timeoutCatalog bounds every catalog lookup. A zero timeout leaves the context as is.
type timeoutCatalog struct {
	inner   pricing.Catalog
	timeout time.Duration
}

func (c timeoutCatalog) PricingFacts(ctx context.Context, ids []string) (map[string]pricing.Facts, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.inner.PricingFacts(ctx, ids)
}
