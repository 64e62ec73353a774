package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/checkout"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/payments"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratelimit"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratetoken"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/reconcile"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/validation"
)

// NotificationHandler processes one gateway callback.
type NotificationHandler interface {
	Handle(ctx context.Context, n reconcile.Notification) reconcile.Result
}

// CheckoutStarter creates pending payments.
type CheckoutStarter interface {
	Start(ctx context.Context, key, requestHash string, req validation.CheckoutRequest) (*checkout.Outcome, error)
}

// HandlerConfig groups dependencies for the HTTP surface.
type HandlerConfig struct {
	Reconciler    NotificationHandler
	Payments      payments.Repository
	Checkout      CheckoutStarter
	Codec         *ratetoken.Codec
	Rates         checkout.RateChecker
	Coupons       checkout.CouponValidator
	CouponLimiter ratelimit.Limiter
	HotelMarkup   *float64
	AllowOrigins  []string
	Logger        *zap.Logger
}

// SetupRouter builds the gin engine with every route registered.
func SetupRouter(cfg HandlerConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(cfg.Logger))
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Idempotency-Key"},
			ExposeHeaders: []string{"Content-Length", "Location", "Retry-After", "Idempotent-Replayed", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterPaymentRoutes(r, cfg)
	RegisterCouponRoutes(r, cfg)
	RegisterHotelRoutes(r, cfg)
	RegisterCheckoutRoutes(r, cfg)
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}
