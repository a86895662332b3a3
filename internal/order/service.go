package order

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/events"
	"github.com/noah-isme/backend-grocer/internal/obs"
)

type store interface {
	Get(ctx context.Context, id string) (Order, error)
	ListForCustomer(ctx context.Context, customerID string, limit, offset int) ([]Summary, int64, error)
	ListAll(ctx context.Context, filter ListFilter) ([]Summary, int64, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

type emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service implements order history and administration.
type Service struct {
	store  store
	events emitter
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  store
	Events emitter
	Logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("order: store is required")
	}
	return &Service{store: cfg.Store, events: cfg.Events, logger: cfg.Logger}, nil
}

// ForCustomer lists a customer's own orders.
func (s *Service) ForCustomer(ctx context.Context, customerID string, page, perPage int) ([]Summary, int64, error) {
	items, total, err := s.store.ListForCustomer(ctx, customerID, perPage, common.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("list customer orders: %w", err)
	}
	return items, total, nil
}

// View returns an order to its owner or to an administrator. Other callers get
// ErrNotFound so order ids cannot be enumerated.
func (s *Service) View(ctx context.Context, id, viewerID string, admin bool) (Order, error) {
	ord, err := s.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !admin && (ord.CustomerID == "" || ord.CustomerID != viewerID) {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

// List returns orders for the admin dashboard.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Summary, int64, error) {
	items, total, err := s.store.ListAll(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return items, total, nil
}

// ChangeStatus moves an order to target, enforcing the fulfilment state machine.
func (s *Service) ChangeStatus(ctx context.Context, id string, target Status) (Order, error) {
	ord, err := s.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(ord.Status, target) {
		obs.ObserveStatusChange(string(target), "rejected")
		return Order{}, &common.AppError{
			Code:       "INVALID_STATE",
			Message:    fmt.Sprintf("Cannot change status from %s to %s.", ord.Status, target),
			HTTPStatus: http.StatusConflict,
			Err:        ErrInvalidTransition,
			Details:    map[string]any{"from": ord.Status, "to": target},
		}
	}
	if err := s.store.UpdateStatus(ctx, id, ord.Status, target); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			obs.ObserveStatusChange(string(target), "conflict")
			return Order{}, &common.AppError{Code: "INVALID_STATE", Message: "Order status changed, reload and try again.", HTTPStatus: http.StatusConflict, Err: err}
		}
		return Order{}, err
	}
	obs.ObserveStatusChange(string(target), "ok")
	from := ord.Status
	ord.Status = target
	if s.events != nil {
		if _, err := s.events.Emit(ctx, events.TopicOrderStatusChanged, ord.ID, events.OrderStatusChanged{OrderID: ord.ID, From: string(from), To: string(target)}); err != nil {
			s.logger.Warn().Err(err).Str("order_id", ord.ID).Msg("order_status_event_failed")
		}
	}
	return ord, nil
}

// CSVHeader is the column layout of the order export.
var CSVHeader = []string{"OrderID", "CreatedAt", "Status", "CustomerName", "BusinessName", "Phone", "City", "Postcode", "TotalGBP"}

// ExportCSV writes every order matching status (all when empty), newest first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, status Status) error {
	items, _, err := s.store.ListAll(ctx, ListFilter{Status: status})
	if err != nil {
		return fmt.Errorf("export orders: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, it := range items {
		record := []string{
			it.ID,
			it.CreatedAt.UTC().Format(time.RFC3339),
			string(it.Status),
			it.CustomerName,
			it.BusinessName,
			it.Phone,
			it.City,
			it.Postcode,
			it.Total.StringFixed(2),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
