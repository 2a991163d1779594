package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// SubscriptionSource fetches subscriptions from the billing provider.
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// CheckoutParams describes a hosted checkout session request.
type CheckoutParams struct {
	UserID     string
	Email      string
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Gateway is the billing provider surface used outside webhook handling.
type Gateway interface {
	SubscriptionSource
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ListPrices(ctx context.Context) ([]*stripe.Price, error)
}

// ErrGatewayDisabled is returned when no billing provider key is configured.
var ErrGatewayDisabled = errors.New("billing: provider not configured")

// StripeClient implements Gateway with the Stripe API.
type StripeClient struct {
	api *client.API
}

// NewStripeClient constructs a StripeClient. backendURL overrides the API base
// URL and is empty in production.
func NewStripeClient(secretKey, backendURL string) *StripeClient {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil
	}
	backendURL = strings.TrimSpace(backendURL)
	// GetBackendWithConfig fills in defaults on the config it is given.
	newConfig := func() *stripe.BackendConfig {
		cfg := &stripe.BackendConfig{LeveledLogger: log.StandardLogger()}
		if backendURL != "" {
			cfg.URL = stripe.String(backendURL)
			cfg.MaxNetworkRetries = stripe.Int64(0)
		}
		return cfg
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, newConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, newConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, newConfig()),
	}
	return &StripeClient{api: client.New(secretKey, backends)}
}

// GetSubscription retrieves a subscription with its price expanded.
func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if c == nil {
		return nil, ErrGatewayDisabled
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("billing: get subscription %s: %w", id, err)
	}
	return sub, nil
}

// CreateCustomer creates a customer tagged with the user id.
func (c *StripeClient) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	if c == nil {
		return "", ErrGatewayDisabled
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email = strings.TrimSpace(email); email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(metadataUserID, userID)
	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: create customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a subscription-mode checkout session and returns its URL.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	if c == nil {
		return "", ErrGatewayDisabled
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(p.UserID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: p.UserID},
		},
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.AddMetadata(metadataUserID, p.UserID)

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	return session.URL, nil
}

// CreatePortalSession creates a billing portal session and returns its URL.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if c == nil {
		return "", ErrGatewayDisabled
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	session, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: create portal session: %w", err)
	}
	return session.URL, nil
}

// ListPrices returns all active recurring prices.
func (c *StripeClient) ListPrices(ctx context.Context) ([]*stripe.Price, error) {
	if c == nil {
		return nil, ErrGatewayDisabled
	}
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.product")
	iter := c.api.Prices.List(params)
	var out []*stripe.Price
	for iter.Next() {
		out = append(out, iter.Price())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("billing: list prices: %w", err)
	}
	return out, nil
}
