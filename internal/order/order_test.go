package order_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/order"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to order.Status
		want     bool
	}{
		{order.StatusPending, order.StatusConfirmed, true},
		{order.StatusPending, order.StatusDispatched, true},
		{order.StatusConfirmed, order.StatusPending, false},
		{order.StatusDispatched, order.StatusCompleted, true},
		{order.StatusDispatched, order.StatusCancelled, true},
		{order.StatusCompleted, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusPending, false},
		{order.StatusPending, order.StatusPending, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, order.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := order.ParseStatus(" dispatched ")
	require.True(t, ok)
	require.Equal(t, order.StatusDispatched, s)

	_, ok = order.ParseStatus("shipped")
	require.False(t, ok)
}

func TestParseDeliveryMethod(t *testing.T) {
	require.Equal(t, order.DeliveryPickup, order.ParseDeliveryMethod("pickup"))
	require.Equal(t, order.DeliveryShip, order.ParseDeliveryMethod(""))
	require.Equal(t, order.DeliveryShip, order.ParseDeliveryMethod("drone"))
}
