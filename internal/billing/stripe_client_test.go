package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/promptcraft/promptcraft/internal/config"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStripe struct {
	mu    sync.Mutex
	forms map[string]url.Values
}

func newFakeStripe(t *testing.T) (*fakeStripe, *httptest.Server) {
	t.Helper()
	f := &fakeStripe{forms: map[string]url.Values{}}
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, body any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
	mux.HandleFunc("/v1/prices", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		reply(w, map[string]any{
			"object":   "list",
			"url":      "/v1/prices",
			"has_more": false,
			"data": []any{
				map[string]any{
					"id": "price_pro_new", "object": "price", "active": true, "currency": "usd", "unit_amount": 900,
					"recurring": map[string]any{"interval": "month"},
					"metadata":  map[string]string{"monthly_quota": "800"},
					"product": map[string]any{
						"id": "prod_pro", "object": "product", "name": "Pro Plus", "description": "More prompts",
						"metadata": map[string]string{"features": `["800 prompts per month"]`},
					},
				},
				map[string]any{
					"id": "price_other", "object": "price", "active": true, "currency": "usd", "unit_amount": 100,
					"recurring": map[string]any{"interval": "month"},
					"product":   map[string]any{"id": "prod_unlinked", "object": "product", "name": "Other"},
				},
			},
		})
	})
	mux.HandleFunc("/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		reply(w, map[string]any{"id": "cus_new", "object": "customer"})
	})
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		reply(w, map[string]any{"id": "cs_1", "object": "checkout.session", "url": "https://checkout.example/cs_1"})
	})
	mux.HandleFunc("/v1/billing_portal/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		reply(w, map[string]any{"id": "bps_1", "object": "billing_portal.session", "url": "https://portal.example/bps_1"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeStripe) record(r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forms[r.URL.Path] = r.Form
}

func (f *fakeStripe) form(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[path]
}

func TestPriceSyncer_SyncOnce(t *testing.T) {
	conn := openTestDB(t)
	_, server := newFakeStripe(t)
	client := NewStripeClient("sk_test_123", server.URL)

	syncer := NewPriceSyncer(conn, client, 0)
	applied, err := syncer.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	var tier models.Tier
	require.NoError(t, conn.Where("id = ?", "pro").Take(&tier).Error)
	assert.Equal(t, "Pro Plus", tier.Name)
	assert.Equal(t, "More prompts", tier.Description)
	assert.Equal(t, "price_pro_new", tier.ProviderMonthlyPriceID)
	assert.Equal(t, "price_pro_y", tier.ProviderYearlyPriceID)
	assert.Equal(t, int64(900), tier.MonthlyPriceCents)
	assert.Equal(t, int64(800), tier.MonthlyQuota)
	assert.JSONEq(t, `["800 prompts per month"]`, string(tier.Features))
}

func TestCheckoutService(t *testing.T) {
	conn := openTestDB(t)
	fake, server := newFakeStripe(t)
	cfg := config.StripeConfig{SuccessURL: "https://app.example/ok", CancelURL: "https://app.example/cancel", PortalReturnURL: "https://app.example/account"}
	service := NewCheckoutService(conn, NewStripeClient("sk_test_123", server.URL), cfg)
	ctx := context.Background()

	_, err := service.Portal(ctx, testUserID)
	require.ErrorIs(t, err, ErrNoCustomer)

	_, err = service.Checkout(ctx, testUserID, "user@example.com", "price_unknown")
	require.ErrorIs(t, err, ErrUnknownPrice)

	checkoutURL, err := service.Checkout(ctx, testUserID, "user@example.com", "price_pro_m")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", checkoutURL)

	form := fake.form("/v1/checkout/sessions")
	assert.Equal(t, testUserID, form.Get("client_reference_id"))
	assert.Equal(t, "cus_new", form.Get("customer"))
	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "price_pro_m", form.Get("line_items[0][price]"))
	assert.Equal(t, testUserID, form.Get("subscription_data[metadata][user_id]"))
	assert.Equal(t, testUserID, fake.form("/v1/customers").Get("metadata[user_id]"))

	sub := loadSub(t, conn)
	assert.Equal(t, "cus_new", sub.ProviderCustomerID)
	assert.Equal(t, models.FreeTierID, sub.TierID)

	portalURL, err := service.Portal(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example/bps_1", portalURL)
	assert.Equal(t, "cus_new", fake.form("/v1/billing_portal/sessions").Get("customer"))
}

func TestNewStripeClient_EmptyKeyDisablesGateway(t *testing.T) {
	client := NewStripeClient("  ", "")
	_, err := client.ListPrices(context.Background())
	require.ErrorIs(t, err, ErrGatewayDisabled)

	conn := openTestDB(t)
	require.NoError(t, conn.Create(&models.Subscription{UserID: testUserID, TierID: models.FreeTierID, Status: models.SubscriptionStatusActive, ProviderCustomerID: "cus_1"}).Error)
	var gateway Gateway = client
	_, err = NewCheckoutService(conn, gateway, config.StripeConfig{}).Portal(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrGatewayDisabled)
}
