package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/fleetengine-backend/internal/middleware"
	"github.com/semanticallynull/fleetengine-backend/rider"
)

// currentRider resolves the authenticated rider, registering them on first
// contact. It writes the error response itself and reports false on failure.
func (a *API) currentRider(c *gin.Context) (rider.Rider, bool) {
	sub, ok := middleware.GetAuth0ID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return rider.Rider{}, false
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	r, err := a.fleet.RiderByAuth0ID(c.Request.Context(), sub, func(ctx context.Context) (string, string) {
		if a.auth0 == nil || token == "" {
			return "", ""
		}
		info, err := a.auth0.GetUserInfo(ctx, token)
		if err != nil {
			middleware.GetLogger(c).WarnContext(ctx, "failed to fetch user info", "error", err)
			return "", ""
		}
		return info.Name, info.Email
	})
	if err != nil {
		fail(c, err)
		return rider.Rider{}, false
	}
	middleware.SetRider(c, r.ID)
	return r, true
}

// stripeCustomer returns the rider's Stripe customer id, creating the
// customer when the rider has none yet.
func (a *API) stripeCustomer(c *gin.Context) (string, bool) {
	logger := middleware.GetLogger(c)

	if a.payments == nil {
		respondError(c, http.StatusNotImplemented, "UNAVAILABLE", "Payments are not configured")
		return "", false
	}
	r, ok := a.currentRider(c)
	if !ok {
		return "", false
	}
	if r.StripeID != nil {
		return *r.StripeID, true
	}

	id, err := a.payments.CreateCustomer(c.Request.Context(), r)
	if err != nil {
		logger.Error("Failed to create stripe customer", "error", err)
		respondError(c, http.StatusBadGateway, "PAYMENT_PROVIDER", "Failed to create customer")
		return "", false
	}
	if err := a.fleet.SetStripeID(c.Request.Context(), r.ID, id); err != nil {
		fail(c, err)
		return "", false
	}
	return id, true
}

func (a *API) createCustomerSession(c *gin.Context) {
	customerID, ok := a.stripeCustomer(c)
	if !ok {
		return
	}

	secret, err := a.payments.CustomerSession(c.Request.Context(), customerID)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to create customer session", "error", err)
		respondError(c, http.StatusBadGateway, "PAYMENT_PROVIDER", "Failed to create customer session")
		return
	}

	c.JSON(http.StatusOK, struct {
		CustomerID   string `json:"customerId"`
		ClientSecret string `json:"clientSecret"`
	}{
		CustomerID:   customerID,
		ClientSecret: secret,
	})
}

func (a *API) createSetupIntent(c *gin.Context) {
	customerID, ok := a.stripeCustomer(c)
	if !ok {
		return
	}

	secret, err := a.payments.SetupIntent(c.Request.Context(), customerID)
	if err != nil {
		middleware.GetLogger(c).Error("Failed to create setup intent", "error", err)
		respondError(c, http.StatusBadGateway, "PAYMENT_PROVIDER", "Failed to create setup intent")
		return
	}

	c.JSON(http.StatusOK, struct {
		SetupIntent string `json:"setupIntent"`
	}{
		SetupIntent: secret,
	})
}

func (a *API) statsHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}
	st, err := a.tiers.Stats(c.Request.Context(), r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) tierHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}
	tier, policy, err := a.tiers.Policy(c.Request.Context(), r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":             tier,
		"discountRate":     policy.DiscountRate,
		"extraHoldMinutes": policy.ExtraHoldMinutes,
	})
}
