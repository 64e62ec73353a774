package validation

import "github.com/imrishuroy/go-hotel-paymentflow/internal/booking"

// IdramResultForm is the gateway's form-encoded result callback.
// Fields are optional here; the reconciler decides which are missing.
type IdramResultForm struct {
	BillNo       string `form:"EDP_BILL_NO"`
	RecAccount   string `form:"EDP_REC_ACCOUNT"`
	Amount       string `form:"EDP_AMOUNT"`
	Precheck     string `form:"EDP_PRECHECK"`
	PayerAccount string `form:"EDP_PAYER_ACCOUNT"`
	TransID      string `form:"EDP_TRANS_ID"`
	TransDate    string `form:"EDP_TRANS_DATE"`
	Checksum     string `form:"EDP_CHECKSUM"`
}

// CouponRequest is the payload for POST /coupons/validate
type CouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// PrebookRequest is the payload for POST /hotels/:hotelCode/prebook
type PrebookRequest struct {
	SessionID string   `json:"sessionId,omitempty"`
	Rates     []string `json:"rates" validate:"required,min=1,max=10,dive,required"` // tokens or raw keys, never mixed
}

// CheckoutRequest is the payload for POST /checkout. Room rate keys may be rate tokens.
type CheckoutRequest struct {
	Booking    booking.Payload `json:"booking"`
	UserID     string          `json:"user_id,omitempty"`
	UserEmail  string          `json:"user_email,omitempty" validate:"omitempty,email"`
	UserName   string          `json:"user_name,omitempty"`
	Locale     string          `json:"locale,omitempty" validate:"omitempty,oneof=hy en ru"`
	CouponCode string          `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}
