package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/queue"
)

// OrderEmailHandler processes queue.TypeOrderConfirmationEmail tasks.
type OrderEmailHandler struct {
	Mail   common.EmailSender
	From   string
	Guard  ConfirmationGuard
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h OrderEmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if h.Mail == nil {
		return errors.New("order email: sender not configured")
	}
	p, err := queue.DecodeOrderConfirmation(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if strings.TrimSpace(p.Order.Email) == "" {
		return nil
	}
	orderID := p.Order.OrderID
	if h.Guard != nil {
		ok, err := h.Guard.Claim(ctx, orderID)
		if err != nil {
			return fmt.Errorf("order email: claim %s: %w", orderID, err)
		}
		if !ok {
			h.Logger.Info().Str("order_id", p.Order.OrderID).Msg("order_email_already_sent")
			return nil
		}
	}
	msg, err := OrderConfirmationEmail(h.From, p.Order)
	if err != nil {
		return err
	}
	if err := h.Mail.Send(ctx, msg); err != nil {
		if h.Guard != nil {
			if ferr := h.Guard.Forget(ctx, orderID); ferr != nil {
				h.Logger.Warn().Err(ferr).Str("order_id", orderID).Msg("order_email_guard_release_failed")
			}
		}
		return fmt.Errorf("order email: send: %w", err)
	}
	h.Logger.Info().Str("order_id", p.Order.OrderID).Msg("order_email_sent")
	return nil
}
