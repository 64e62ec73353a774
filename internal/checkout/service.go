package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/coupons"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/idempotency"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/payments"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/pricing"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratetoken"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/supplier"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/validation"
)

var (
	ErrMissingKey      = errors.New("missing idempotency key")
	ErrKeyReused       = errors.New("idempotency key reused with a different request")
	ErrInProgress      = errors.New("request already in progress")
	ErrPreviousFailed  = errors.New("previous attempt with this key failed")
	ErrRateUnavailable = errors.New("selected rate is no longer available")
	ErrInvalidTotal    = errors.New("booking total could not be computed")
)

// RateChecker reprices raw supplier rate keys.
type RateChecker interface {
	CheckRates(ctx context.Context, req supplier.CheckRatesRequest) (*supplier.CheckRatesResponse, error)
}

// CouponValidator resolves a coupon code.
type CouponValidator interface {
	Validate(ctx context.Context, code string) (*coupons.Coupon, error)
}

// Creator persists the idempotency record and the pending payment together.
type Creator interface {
	Create(ctx context.Context, rec idempotency.Record, p payments.PendingPayment) error
}

// Redirect is what the client needs to send the payer to the gateway.
type Redirect struct {
	BillNo     string            `json:"bill_no"`
	Amount     string            `json:"amount"`
	Currency   string            `json:"currency"`
	GatewayURL string            `json:"gateway_url"`
	Fields     map[string]string `json:"fields"`
}

// Outcome is the HTTP answer to a checkout, fresh or replayed.
type Outcome struct {
	BillNo   string
	Status   int
	Body     []byte
	Replayed bool
}

// Config carries the pricing and gateway settings.
type Config struct {
	RecAccount  string
	GatewayURL  string
	HotelMarkup *float64
}

// Service turns a validated checkout request into a pending payment.
type Service struct {
	idem      *idempotency.Store
	creator   Creator
	codec     *ratetoken.Codec
	rates     RateChecker
	coupons   CouponValidator
	cfg       Config
	logger    *zap.Logger
	newBillNo func() string
}

// NewService wires a Service. rates and coupons may be nil.
func NewService(idem *idempotency.Store, creator Creator, codec *ratetoken.Codec, rates RateChecker, cv CouponValidator, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		idem:      idem,
		creator:   creator,
		codec:     codec,
		rates:     rates,
		coupons:   cv,
		cfg:       cfg,
		logger:    logger,
		newBillNo: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// replay answers a repeated key from its stored record.
func replay(rec *idempotency.Record, requestHash string) (*Outcome, error) {
	if rec.RequestHash != "" && rec.RequestHash != requestHash {
		return nil, ErrKeyReused
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return &Outcome{BillNo: rec.BillNo, Status: rec.ResponseStatus, Body: []byte(rec.ResponseBody), Replayed: true}, nil
	case idempotency.StatusInProgress:
		return nil, ErrInProgress
	case idempotency.StatusFailed:
		return nil, ErrPreviousFailed
	default:
		return nil, fmt.Errorf("unknown idempotency status %q", rec.Status)
	}
}

// Start creates the pending payment for req exactly once per idempotency key.
func (s *Service) Start(ctx context.Context, key, requestHash string, req validation.CheckoutRequest) (*Outcome, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	existing, err := s.idem.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if existing != nil {
		return replay(existing, requestHash)
	}

	payload, err := s.priceRooms(ctx, req.Booking)
	if err != nil {
		return nil, err
	}
	total, err := pricing.CalculateBookingTotal(payload, pricing.Options{HotelMarkup: s.cfg.HotelMarkup})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTotal, err)
	}
	if req.CouponCode != "" {
		total, err = s.applyCoupon(ctx, req.CouponCode, total, payload.Currency)
		if err != nil {
			return nil, err
		}
	}
	formatted := pricing.FormatAmount(total)
	value, err := pricing.ParseAmount(formatted)
	if err != nil || value <= 0 {
		return nil, ErrInvalidTotal
	}

	billNo := s.newBillNo()
	pending := payments.PendingPayment{
		BillNo:     billNo,
		Status:     payments.StatusCreated,
		RecAccount: s.cfg.RecAccount,
		Amount:     payments.Amount{Value: value, Formatted: formatted, Currency: strings.ToUpper(payload.Currency)},
		Payload:    payload,
		UserID:     req.UserID,
		UserEmail:  req.UserEmail,
		UserName:   req.UserName,
		Locale:     req.Locale,
	}
	if err := s.creator.Create(ctx, s.idem.NewRecord(key, billNo, requestHash), pending); err != nil {
		if errors.Is(err, payments.ErrAlreadyExists) {
			// A concurrent request with the same key won the write.
			if rec, gerr := s.idem.Get(ctx, key); gerr == nil && rec != nil {
				return replay(rec, requestHash)
			}
			return nil, ErrInProgress
		}
		return nil, fmt.Errorf("create pending payment: %w", err)
	}

	redirect := Redirect{
		BillNo:     billNo,
		Amount:     formatted,
		Currency:   pending.Amount.Currency,
		GatewayURL: s.cfg.GatewayURL,
		Fields: map[string]string{
			"EDP_LANGUAGE":    gatewayLanguage(req.Locale),
			"EDP_REC_ACCOUNT": s.cfg.RecAccount,
			"EDP_DESCRIPTION": describe(payload),
			"EDP_AMOUNT":      formatted,
			"EDP_BILL_NO":     billNo,
			"EDP_EMAIL":       req.UserEmail,
		},
	}
	body, err := json.Marshal(redirect)
	if err != nil {
		return nil, fmt.Errorf("marshal redirect: %w", err)
	}
	if err := s.idem.MarkDone(ctx, key, string(body), 201); err != nil {
		// The payment exists; a retry with this key will see IN_PROGRESS rather than a duplicate bill.
		s.logger.Warn("mark idempotency done", zap.String("bill_no", billNo), zap.Error(err))
	}

	s.logger.Info("pending payment created",
		zap.String("bill_no", billNo),
		zap.String("amount", formatted),
		zap.String("currency", pending.Amount.Currency),
		zap.String("hotel_code", payload.HotelCode))
	return &Outcome{BillNo: billNo, Status: 201, Body: body}, nil
}

// priceRooms replaces client supplied room prices with trusted ones: the snapshot inside each
// rate token, or the supplier's current price for raw keys.
func (s *Service) priceRooms(ctx context.Context, p booking.Payload) (booking.Payload, error) {
	rates := make([]string, len(p.Rooms))
	for i, r := range p.Rooms {
		rates[i] = r.RateKey
	}
	sel, err := ratetoken.ResolveSelection(s.codec, p.HotelCode, p.SessionID, rates)
	if err != nil {
		return p, err
	}

	rooms := make([]booking.Room, len(p.Rooms))
	copy(rooms, p.Rooms)
	p.Rooms = rooms
	if sel.SessionID != "" {
		p.SessionID = sel.SessionID
	}

	if sel.Tokens {
		for i, tp := range sel.Payloads {
			p.Rooms[i].RateKey = tp.RateKey
			p.Rooms[i].Net = tp.PriceNet
			p.Rooms[i].Gross = tp.PriceGross
			if tp.RoomIdentifier != nil {
				p.Rooms[i].RoomIdentifier = *tp.RoomIdentifier
			}
		}
		return p, nil
	}

	if s.rates == nil {
		return p, ErrRateUnavailable
	}
	checked, err := s.rates.CheckRates(ctx, supplier.CheckRatesRequest{
		HotelCode: p.HotelCode,
		SessionID: p.SessionID,
		RateKeys:  sel.RateKeys,
	})
	if err != nil {
		return p, fmt.Errorf("check rates: %w", err)
	}
	byKey := make(map[string]supplier.CheckedRate, len(checked.Rates))
	for _, r := range checked.Rates {
		byKey[r.RateKey] = r
	}
	for i := range p.Rooms {
		r, ok := byKey[p.Rooms[i].RateKey]
		if !ok || !r.Available {
			return p, ErrRateUnavailable
		}
		p.Rooms[i].Net = r.Net
		p.Rooms[i].Gross = r.Gross
		if r.Currency != "" {
			p.Rooms[i].Currency = r.Currency
		}
	}
	return p, nil
}

func (s *Service) applyCoupon(ctx context.Context, code string, total float64, currency string) (float64, error) {
	if s.coupons == nil {
		return 0, coupons.ErrNotFound
	}
	c, err := s.coupons.Validate(ctx, code)
	if err != nil {
		return 0, err
	}
	return c.Apply(total, currency)
}

func gatewayLanguage(locale string) string {
	switch locale {
	case "en":
		return "EN"
	case "ru":
		return "RU"
	default:
		return "AM"
	}
}

func describe(p booking.Payload) string {
	name := p.HotelName
	if name == "" {
		name = p.HotelCode
	}
	return fmt.Sprintf("%s %s/%s", name, p.CheckIn, p.CheckOut)
}

// TransactionalCreator writes both items in one DynamoDB transaction.
type TransactionalCreator struct {
	Store            *payments.DynamoStore
	IdempotencyTable string
	TTL              time.Duration
}

// Create writes rec and p in one transaction.
func (c TransactionalCreator) Create(ctx context.Context, rec idempotency.Record, p payments.PendingPayment) error {
	return c.Store.CreateWithIdempotencyTransaction(ctx, c.IdempotencyTable, rec, p, c.TTL)
}

// SequentialCreator claims the key first, then writes the payment. Used when the payment
// store is not DynamoDB; a failed payment write marks the key FAILED.
type SequentialCreator struct {
	Idem  *idempotency.Store
	Store payments.Repository
}

// Create claims the key and then stores p.
func (c SequentialCreator) Create(ctx context.Context, rec idempotency.Record, p payments.PendingPayment) error {
	created, err := c.Idem.CreateIfNotExists(ctx, rec.IdempotencyKey, rec.BillNo, rec.RequestHash)
	if err != nil {
		return err
	}
	if !created {
		return payments.ErrAlreadyExists
	}
	if err := c.Store.Create(ctx, p); err != nil {
		if merr := c.Idem.MarkFailed(ctx, rec.IdempotencyKey, err.Error()); merr != nil {
			return fmt.Errorf("%w (mark failed: %v)", err, merr)
		}
		return err
	}
	return nil
}
