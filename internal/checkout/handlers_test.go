package checkout_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/checkout"
	"github.com/noah-isme/backend-grocer/internal/common"
)

func serve(h http.HandlerFunc, body, customerID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if customerID != "" {
		req = req.WithContext(common.WithCustomerID(req.Context(), customerID))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body common.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestPreviewHandler(t *testing.T) {
	h := &checkout.Handler{Svc: newFixture(t).svc}

	rec := serve(h.Preview, `{"items":[{"productId":"rice-5kg","qty":"3"}]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"subtotal":44.97,"vat":8.99,"shipping":8,"total":61.96,"totalWeightKg":15}`, rec.Body.String())

	rec = serve(h.Preview, `{"items":[{"productId":"oil","qty":1}]}`, "trade")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"subtotal":7.5`)
}

func TestPreviewHandlerErrors(t *testing.T) {
	h := &checkout.Handler{Svc: newFixture(t).svc}

	rec := serve(h.Preview, `{"items":[]}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Cart is empty.", errorMessage(t, rec))

	rec = serve(h.Preview, `not json`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.Preview, `{"items":[{"productId":"missing","qty":1}]}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Some products in your cart could not be found. Please refresh and try again.", errorMessage(t, rec))

	rec = serve(h.Preview, `{"items":[{"productId":"sample","qty":1}]}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No valid items in cart.", errorMessage(t, rec))
}

func TestPreviewHandlerInternalError(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = errTest
	h := &checkout.Handler{Svc: f.svc}
	rec := serve(h.Preview, `{"items":[{"productId":"oil","qty":1}]}`, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to calculate totals.", errorMessage(t, rec))
}

func TestPlaceHandler(t *testing.T) {
	f := newFixture(t)
	h := &checkout.Handler{Svc: f.svc}
	body := `{"customerName":"Ada","street":"1 High St","city":"Leeds","postcode":"LS1 1AA","phone":"0123",
		"deliveryMethod":"SHIP","items":[{"productId":"rice-5kg","qty":3}]}`

	rec := serve(h.Place, body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true,"reference":"ord-1","message":"Order placed successfully. Reference: ord-1"}`, rec.Body.String())
}

func TestPlaceHandlerErrors(t *testing.T) {
	f := newFixture(t)
	h := &checkout.Handler{Svc: f.svc}

	rec := serve(h.Place, `{`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid JSON body.", errorMessage(t, rec))

	rec = serve(h.Place, `{"customerName":"Ada","items":[{"productId":"oil","qty":1}]}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Missing required customer or address fields.", errorMessage(t, rec))

	f.orders.err = errTest
	rec = serve(h.Place, `{"customerName":"Ada","street":"s","city":"c","postcode":"p","phone":"1","items":[{"productId":"oil","qty":1}]}`, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to submit order.", errorMessage(t, rec))
}
