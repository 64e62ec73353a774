package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
)

var (
	// ErrInvalidAmount is returned for NaN or infinite amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrCurrencyUnconvertible is returned when a component has no exchange rate to the target currency.
	ErrCurrencyUnconvertible = errors.New("currency cannot be converted")
)

// Options tunes total calculation.
type Options struct {
	HotelMarkup *float64
}

// Money is an amount in a single currency.
type Money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ApplyMarkup returns amount*(1+rate). A nil or non-finite rate is treated as zero.
func ApplyMarkup(amount float64, rate *float64) (float64, error) {
	if !finite(amount) {
		return 0, ErrInvalidAmount
	}
	if rate == nil || !finite(*rate) {
		return amount, nil
	}
	return amount * (1 + *rate), nil
}

// roomPrice prefers the net price and falls back to gross.
func roomPrice(r booking.Room) (float64, bool) {
	if r.Net != nil && finite(*r.Net) {
		return *r.Net, true
	}
	if r.Gross != nil && finite(*r.Gross) {
		return *r.Gross, true
	}
	return 0, false
}

// services returns every flat-priced add-on of the payload.
func services(p booking.Payload) []booking.Service {
	out := make([]booking.Service, 0, len(p.Transfers)+len(p.Excursions)+len(p.Flights)+1)
	out = append(out, p.Transfers...)
	out = append(out, p.Excursions...)
	if p.Insurance != nil {
		out = append(out, *p.Insurance)
	}
	out = append(out, p.Flights...)
	return out
}

// CalculateBookingTotal sums marked-up room prices and flat service totals.
// Each component is taken as already expressed in the booking currency.
func CalculateBookingTotal(p booking.Payload, opts Options) (float64, error) {
	var total float64
	for i, r := range p.Rooms {
		price, ok := roomPrice(r)
		if !ok {
			return 0, fmt.Errorf("room %d: %w", i, ErrInvalidAmount)
		}
		marked, err := ApplyMarkup(price, opts.HotelMarkup)
		if err != nil {
			return 0, fmt.Errorf("room %d: %w", i, err)
		}
		total += marked
	}
	for _, s := range services(p) {
		if !finite(s.Total) {
			return 0, fmt.Errorf("service %s: %w", s.Code, ErrInvalidAmount)
		}
		total += s.Total
	}
	return total, nil
}

// Rates maps a currency code to how many units of the target currency one unit is worth.
type Rates map[string]float64

func (r Rates) convert(amount float64, from, to string) (float64, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == "" || from == to {
		return amount, nil
	}
	rate, ok := r[from]
	if !ok || !finite(rate) || rate <= 0 {
		return 0, fmt.Errorf("%s -> %s: %w", from, to, ErrCurrencyUnconvertible)
	}
	return amount * rate, nil
}

// CalculateBookingTotalIn converts every component into target before summing.
// Components without a currency are taken to be in the payload currency.
// Any unconvertible component fails the whole total; no partial sum is ever returned.
func CalculateBookingTotalIn(p booking.Payload, opts Options, target string, rates Rates) (Money, error) {
	currencyOf := func(c string) string {
		if c == "" {
			return p.Currency
		}
		return c
	}

	var total float64
	for i, r := range p.Rooms {
		price, ok := roomPrice(r)
		if !ok {
			return Money{}, fmt.Errorf("room %d: %w", i, ErrInvalidAmount)
		}
		marked, err := ApplyMarkup(price, opts.HotelMarkup)
		if err != nil {
			return Money{}, fmt.Errorf("room %d: %w", i, err)
		}
		converted, err := rates.convert(marked, currencyOf(r.Currency), target)
		if err != nil {
			return Money{}, fmt.Errorf("room %d: %w", i, err)
		}
		total += converted
	}
	for _, s := range services(p) {
		if !finite(s.Total) {
			return Money{}, fmt.Errorf("service %s: %w", s.Code, ErrInvalidAmount)
		}
		converted, err := rates.convert(s.Total, currencyOf(s.Currency), target)
		if err != nil {
			return Money{}, fmt.Errorf("service %s: %w", s.Code, err)
		}
		total += converted
	}
	return Money{Value: total, Currency: strings.ToUpper(target)}, nil
}

// FormatAmount renders an amount the way the payment gateway expects it (two decimals).
func FormatAmount(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', 2, 64)
}

// ParseAmount parses a gateway amount string and rejects non-finite values.
func ParseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
