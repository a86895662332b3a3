package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query   string
		page    int
		perPage int
	}{
		{"", 1, 20},
		{"?page=3&limit=5", 3, 5},
		{"?page=0&limit=-1", 1, 20},
		{"?page=abc&limit=500", 1, 100},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/orders"+tc.query, nil)
		page, perPage := ParsePagination(r, 20, 100)
		require.Equal(t, tc.page, page, tc.query)
		require.Equal(t, tc.perPage, perPage, tc.query)
	}
	require.Equal(t, 40, Offset(3, 20))
	require.Equal(t, 0, Offset(0, 20))
}

func TestWriteAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, fmt.Errorf("wrapped: %w", BadRequest("CART_EMPTY", "Cart is empty.", nil)), "fallback")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Cart is empty.", body.Error)
	require.Equal(t, "CART_EMPTY", body.Code)

	rec = httptest.NewRecorder()
	WriteAppError(rec, errors.New("db exploded"), "Failed to submit order.")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Failed to submit order.", body.Error)
	require.NotContains(t, rec.Body.String(), "db exploded")
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := NotFound("missing", cause)
	require.ErrorIs(t, err, cause)
	require.True(t, IsAppError(fmt.Errorf("ctx: %w", err)))
	require.False(t, IsAppError(cause))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	require.Equal(t, "10.0.0.9", ClientIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.4")
	require.Equal(t, "192.0.2.4", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "unknown, 198.51.100.1, 10.0.0.1")
	require.Equal(t, "198.51.100.1", ClientIP(r))
}

func TestIdempotencyRejectsReplayAfterSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	calls := 0
	h := Idem{R: rdb}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		JSON(w, http.StatusOK, map[string]bool{"ok": true})
	}))

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		r.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	require.Equal(t, http.StatusOK, send().Code)
	replay := send()
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Contains(t, replay.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, calls)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := http.StatusBadRequest
	h := Idem{R: rdb}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	r.Header.Set("Idempotency-Key", "retry-me")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, mr.Keys())

	status = http.StatusOK
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, mr.Keys(), 1)
}

func TestIdempotencyScopedByCustomer(t *testing.T) {
	base := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	a := base.WithContext(WithCustomerID(base.Context(), "cust-a"))
	b := base.WithContext(WithCustomerID(base.Context(), "cust-b"))
	require.NotEqual(t, idemKey(a, "k"), idemKey(b, "k"))
	require.Equal(t, idemKey(a, "k"), idemKey(a, "k"))
}
