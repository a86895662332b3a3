package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultConfirmationHold is how long a sent confirmation blocks a resend.
const DefaultConfirmationHold = 7 * 24 * time.Hour

// ConfirmationGuard records which orders already had their confirmation email sent.
type ConfirmationGuard interface {
	// Claim reports whether the caller may send the confirmation for orderID.
	Claim(ctx context.Context, orderID string) (bool, error)
	// Forget undoes a Claim after a failed send so a retry can try again.
	Forget(ctx context.Context, orderID string) error
}

// RedisConfirmationGuard keeps one key per confirmed order. A nil Client claims everything.
type RedisConfirmationGuard struct {
	Client *redis.Client
	Hold   time.Duration
}

// ConfirmationKey is the Redis key marking orderID's confirmation as sent.
func ConfirmationKey(orderID string) string {
	return "grocer:email:order_confirmation:" + orderID
}

func (g RedisConfirmationGuard) Claim(ctx context.Context, orderID string) (bool, error) {
	if g.Client == nil {
		return true, nil
	}
	hold := g.Hold
	if hold <= 0 {
		hold = DefaultConfirmationHold
	}
	return g.Client.SetNX(ctx, ConfirmationKey(orderID), time.Now().UTC().Format(time.RFC3339), hold).Result()
}

func (g RedisConfirmationGuard) Forget(ctx context.Context, orderID string) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Del(ctx, ConfirmationKey(orderID)).Err()
}
