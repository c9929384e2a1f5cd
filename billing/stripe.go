package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/invoice"

	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

var ErrNoStripeCustomer = errors.New("rider has no stripe customer")

// StripeInvoicer publishes issued bills as paid Stripe invoices.
type StripeInvoicer struct {
	TaxRate float64
	logger  *slog.Logger
}

func NewStripeInvoicer(key string, taxRate float64, logger *slog.Logger) *StripeInvoicer {
	stripe.Key = key
	return &StripeInvoicer{TaxRate: taxRate, logger: logger}
}

func (s *StripeInvoicer) Invoice(ctx context.Context, r rider.Rider, t trip.Trip) error {
	if t.Bill == nil {
		return fmt.Errorf("trip %s has no bill", t.ID)
	}
	if r.StripeID == nil {
		return ErrNoStripeCustomer
	}
	b := t.Bill

	inParams := &stripe.InvoiceParams{
		Customer: stripe.String(*r.StripeID),
	}
	inParams.Context = ctx
	inParams.AddMetadata("trip_id", t.ID)
	inParams.AddMetadata("bill_id", b.ID)
	in, err := invoice.New(inParams)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}

	description := fmt.Sprintf("Trip - %d minutes", t.DurationMinutes)
	if t.Status == trip.Abandoned {
		description = "Abandoned trip fee"
	}
	ilParams := &stripe.InvoiceAddLinesParams{
		Lines: []*stripe.InvoiceAddLinesLineParams{
			{
				Amount:      stripe.Int64(b.Total),
				Description: stripe.String(description),
				TaxAmounts: []*stripe.InvoiceAddLinesLineTaxAmountParams{
					{
						Amount:        stripe.Int64(b.Tax),
						TaxableAmount: stripe.Int64(b.Cost),
						TaxRateData: &stripe.InvoiceAddLinesLineTaxAmountTaxRateDataParams{
							Percentage:  stripe.Float64(s.TaxRate * 100),
							Description: stripe.String("Sales tax"),
							DisplayName: stripe.String(fmt.Sprintf("Sales tax (%.3f%%)", s.TaxRate*100)),
							Inclusive:   stripe.Bool(true),
						},
					},
				},
			},
		},
	}
	ilParams.Context = ctx
	if _, err = invoice.AddLines(in.ID, ilParams); err != nil {
		return fmt.Errorf("add invoice lines: %w", err)
	}

	finalize := &stripe.InvoiceFinalizeInvoiceParams{}
	finalize.Context = ctx
	if _, err = invoice.FinalizeInvoice(in.ID, finalize); err != nil {
		return fmt.Errorf("finalize invoice: %w", err)
	}
	if _, err = invoice.Pay(in.ID, nil); err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}

	s.logger.Info("trip invoiced", "trip_id", t.ID, "bill_id", b.ID, "invoice_id", in.ID)
	return nil
}
