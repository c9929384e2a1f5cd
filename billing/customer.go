package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/customersession"
	"github.com/stripe/stripe-go/v84/setupintent"

	"github.com/semanticallynull/fleetengine-backend/rider"
)

// CreateCustomer registers the rider with Stripe and returns the customer id.
func (s *StripeInvoicer) CreateCustomer(ctx context.Context, r rider.Rider) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(r.Email),
		Name:  stripe.String(r.Name),
		Metadata: map[string]string{
			"auth0_id": r.Auth0ID,
			"id":       r.ID,
		},
	}
	params.Context = ctx
	c, err := stripecustomer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

// CustomerSession returns a client secret for the mobile customer sheet.
func (s *StripeInvoicer) CustomerSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerSessionParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.AddExtra("components[customer_sheet][enabled]", "true")
	params.AddExtra("components[customer_sheet][features][payment_method_remove]", "enabled")
	cs, err := customersession.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer session: %w", err)
	}
	return cs.ClientSecret, nil
}

// SetupIntent returns a client secret for saving a payment method.
func (s *StripeInvoicer) SetupIntent(ctx context.Context, customerID string) (string, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	si, err := setupintent.New(params)
	if err != nil {
		return "", fmt.Errorf("create setup intent: %w", err)
	}
	return si.ClientSecret, nil
}
