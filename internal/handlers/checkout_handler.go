package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/checkout"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/coupons"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/idempotency"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/validation"
)

// RegisterCheckoutRoutes registers the idempotent checkout endpoint.
func RegisterCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/checkout", func(c *gin.Context) {
		ctx := c.Request.Context()

		// Require idempotency key header
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
			return
		}
		var req validation.CheckoutRequest
		if err := validation.DecodeAndValidate(c, body, &req, v); err != nil {
			// DecodeAndValidate already wrote a 400
			return
		}

		out, err := cfg.Checkout.Start(ctx, key, idempotency.HashRequest(body), req)
		if err != nil {
			status, code := checkoutError(err)
			if status >= http.StatusInternalServerError {
				cfg.Logger.Error("checkout failed", zap.String("idempotency_key", key), zap.Error(err))
			} else {
				cfg.Logger.Info("checkout rejected", zap.String("idempotency_key", key), zap.Error(err))
			}
			resp := gin.H{"error": code}
			if msg := selectionError(err); msg != "" {
				resp["msg"] = msg
			}
			c.JSON(status, resp)
			return
		}

		if out.Replayed {
			c.Header("Idempotent-Replayed", "true")
		}
		c.Header("Location", fmt.Sprintf("/payments/%s/status", out.BillNo))
		c.Data(out.Status, "application/json", out.Body)
	})
}

// checkoutError maps a checkout failure to a status and a stable error code.
func checkoutError(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrMissingKey):
		return http.StatusBadRequest, "missing_idempotency_key"
	case errors.Is(err, checkout.ErrKeyReused):
		return http.StatusUnprocessableEntity, "idempotency_key_reused"
	case errors.Is(err, checkout.ErrInProgress):
		return http.StatusAccepted, "request_in_progress"
	case errors.Is(err, checkout.ErrPreviousFailed):
		return http.StatusConflict, "previous_attempt_failed"
	case selectionError(err) != "":
		return http.StatusBadRequest, "invalid_rate_selection"
	case errors.Is(err, checkout.ErrRateUnavailable):
		return http.StatusConflict, "rate_unavailable"
	case errors.Is(err, coupons.ErrNotFound), errors.Is(err, coupons.ErrExpired):
		return http.StatusUnprocessableEntity, "invalid_coupon"
	case errors.Is(err, coupons.ErrNotApplicable):
		return http.StatusUnprocessableEntity, "coupon_not_applicable"
	case errors.Is(err, checkout.ErrInvalidTotal):
		return http.StatusUnprocessableEntity, "invalid_total"
	default:
		return http.StatusInternalServerError, "checkout_failed"
	}
}
