package validation

import (
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the stay must be at least one night
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

// checkoutStructValidation verifies check_out falls after check_in.
// Malformed dates are left to the datetime tag on the fields.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	in, errIn := time.Parse(dateLayout, req.Booking.CheckIn)
	out, errOut := time.Parse(dateLayout, req.Booking.CheckOut)
	if errIn != nil || errOut != nil {
		return
	}
	if !out.After(in) {
		sl.ReportError(req.Booking.CheckOut, "check_out", "CheckOut", "after_check_in", "")
	}
}
