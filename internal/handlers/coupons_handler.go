package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/coupons"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratelimit"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/validation"
)

// RegisterCouponRoutes registers the rate limited coupon check.
func RegisterCouponRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	chain := []gin.HandlerFunc{}
	if cfg.CouponLimiter != nil {
		chain = append(chain, ratelimit.Middleware(cfg.CouponLimiter, "coupon", cfg.Logger))
	}
	chain = append(chain, func(c *gin.Context) {
		var req validation.CouponRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if cfg.Coupons == nil {
			c.JSON(http.StatusNotFound, gin.H{"valid": false})
			return
		}
		coupon, err := cfg.Coupons.Validate(c.Request.Context(), req.Code)
		switch {
		case errors.Is(err, coupons.ErrNotFound), errors.Is(err, coupons.ErrExpired):
			// one answer for both so codes cannot be enumerated by expiry
			c.JSON(http.StatusNotFound, gin.H{"valid": false})
			return
		case err != nil:
			cfg.Logger.Error("validate coupon", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "coupon_check_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"valid":    true,
			"code":     coupon.Code,
			"kind":     coupon.Kind,
			"value":    coupon.Value,
			"currency": coupon.Currency,
		})
	})

	r.POST("/coupons/validate", chain...)
}
