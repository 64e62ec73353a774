package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/payments"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/reconcile"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/validation"
)

// RegisterPaymentRoutes registers the gateway callback and the payment status page.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	// The gateway reads plain text: "OK" acknowledges, anything else is a rejection.
	r.POST("/payments/idram/result", func(c *gin.Context) {
		var form validation.IdramResultForm
		if err := validation.BindForm(c, &form); err != nil {
			c.String(http.StatusBadRequest, reconcile.BodyMissingFields)
			return
		}
		res := cfg.Reconciler.Handle(c.Request.Context(), reconcile.Notification{
			BillNo:       strings.TrimSpace(form.BillNo),
			RecAccount:   strings.TrimSpace(form.RecAccount),
			Amount:       form.Amount,
			Precheck:     strings.EqualFold(strings.TrimSpace(form.Precheck), "YES"),
			PayerAccount: strings.TrimSpace(form.PayerAccount),
			TransID:      strings.TrimSpace(form.TransID),
			TransDate:    strings.TrimSpace(form.TransDate),
			Checksum:     strings.TrimSpace(form.Checksum),
		})
		c.String(res.Status, res.Body)
	})

	r.GET("/payments/:billNo/status", func(c *gin.Context) {
		billNo := c.Param("billNo")
		p, err := cfg.Payments.Get(c.Request.Context(), billNo)
		if err != nil {
			cfg.Logger.Error("load payment status", zap.String("bill_no", billNo), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "status_unavailable"})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, statusView(p))
	})
}

// statusView is what the payer's outcome page shows. Supplier error text stays internal.
func statusView(p *payments.PendingPayment) gin.H {
	out := gin.H{
		"bill_no":  p.BillNo,
		"status":   p.Status,
		"terminal": payments.IsTerminal(p.Status),
		"amount":   p.Amount.Formatted,
		"currency": p.Amount.Currency,
		"hotel":    p.Payload.HotelName,
		"check_in": p.Payload.CheckIn,
	}
	switch p.Status {
	case payments.StatusBookingComplete:
		if p.BookingResult != nil {
			out["reference"] = p.BookingResult.Reference
		}
	case payments.StatusBookingFailed:
		out["message"] = "Payment received but the booking could not be confirmed. Our team will contact you."
	}
	return out
}
