package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/pricing"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratetoken"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/supplier"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/validation"
)

var selectionErrors = []error{
	ratetoken.ErrNoRates,
	ratetoken.ErrMixedRateKeys,
	ratetoken.ErrSessionMismatch,
	ratetoken.ErrGroupMismatch,
	ratetoken.ErrHotelMismatch,
	ratetoken.ErrInvalidToken,
}

// selectionError returns the client safe message for a rate selection failure, or "" when
// err did not come from the selection checks.
func selectionError(err error) string {
	for _, known := range selectionErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ""
}

type prebookRate struct {
	Rate      string   `json:"rate"`
	Available bool     `json:"available"`
	Price     *float64 `json:"price,omitempty"`
	Currency  string   `json:"currency,omitempty"`
}

// RegisterHotelRoutes registers the prebook step.
func RegisterHotelRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/hotels/:hotelCode/prebook", func(c *gin.Context) {
		ctx := c.Request.Context()
		hotelCode := c.Param("hotelCode")

		var req validation.PrebookRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		sel, err := ratetoken.ResolveSelection(cfg.Codec, hotelCode, req.SessionID, req.Rates)
		if err != nil {
			cfg.Logger.Info("prebook rejected", zap.String("hotel_code", hotelCode), zap.Error(err))
			msg := selectionError(err)
			if msg == "" {
				msg = "invalid rate selection"
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rate_selection", "msg": msg})
			return
		}

		checked, err := cfg.Rates.CheckRates(ctx, supplier.CheckRatesRequest{
			HotelCode: hotelCode,
			SessionID: sel.SessionID,
			RateKeys:  sel.RateKeys,
		})
		if err != nil {
			cfg.Logger.Error("supplier checkrates", zap.String("hotel_code", hotelCode), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "supplier_unavailable"})
			return
		}
		byKey := make(map[string]supplier.CheckedRate, len(checked.Rates))
		for _, cr := range checked.Rates {
			byKey[cr.RateKey] = cr
		}

		out := make([]prebookRate, 0, len(sel.RateKeys))
		for i, key := range sel.RateKeys {
			pr := prebookRate{Rate: req.Rates[i]}
			if cr, ok := byKey[key]; ok && cr.Available {
				pr.Available = true
				pr.Currency = cr.Currency
				base := cr.Net
				if base == nil {
					base = cr.Gross
				}
				if base != nil {
					if marked, err := pricing.ApplyMarkup(*base, cfg.HotelMarkup); err == nil {
						pr.Price = &marked
					}
				}
			}
			out = append(out, pr)
		}

		c.JSON(http.StatusOK, gin.H{
			"hotel_code": hotelCode,
			"session_id": sel.SessionID,
			"group_code": sel.GroupCode,
			"rates":      out,
		})
	})
}
