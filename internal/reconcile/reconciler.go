package reconcile

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/payments"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/pricing"
)

// Response bodies. The gateway expects terse plain text.
const (
	BodyOK                 = "OK"
	BodyMissingFields      = "Missing required fields"
	BodyInvalidAmount      = "Invalid amount"
	BodyMissingTransaction = "Missing transaction fields"
	BodyInvalidRequest     = "Invalid request"
	BodyTemporaryError     = "Temporary error"
)

// Outcomes reported to metrics and logs.
const (
	OutcomeRejectedInput   = "rejected_input"
	OutcomeRejectedAuth    = "rejected_auth"
	OutcomeUnknownBill     = "unknown_bill"
	OutcomePrechecked      = "prechecked"
	OutcomeReplay          = "replay"
	OutcomeClaimLost       = "claim_lost"
	OutcomeBookingComplete = "booking_complete"
	OutcomeBookingFailed   = "booking_failed"
	OutcomeStoreError      = "store_error"
)

const sideEffectTimeout = 10 * time.Second

// Notification is one gateway callback.
type Notification struct {
	BillNo       string
	RecAccount   string
	Amount       string
	Precheck     bool
	PayerAccount string
	TransID      string
	TransDate    string
	Checksum     string
}

// Result is what the HTTP layer writes back.
type Result struct {
	Status  int
	Body    string
	Outcome string
}

// BookingExecutor places the supplier booking for a paid payload.
type BookingExecutor interface {
	Book(ctx context.Context, payload booking.Payload) (*booking.Result, error)
}

// Confirmation is handed to the notifier after a successful booking.
type Confirmation struct {
	BillNo    string          `json:"bill_no"`
	Recipient string          `json:"recipient"`
	Name      string          `json:"name,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Locale    string          `json:"locale,omitempty"`
	Payload   booking.Payload `json:"payload"`
	Result    booking.Result  `json:"result"`
}

// Notifier sends the booking confirmation.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, c Confirmation) error
}

// HistoryRecorder stores the booking under the owning user.
type HistoryRecorder interface {
	RecordBooking(ctx context.Context, userID, billNo string, payload booking.Payload, result booking.Result) error
}

// Metrics counts outcomes.
type Metrics interface {
	Count(ctx context.Context, metric, outcome string)
}

// Config carries the gateway secret and amount tolerance.
type Config struct {
	SecretKey     string
	AmountEpsilon float64
	// CurrencyEpsilon overrides AmountEpsilon per currency minor unit.
	CurrencyEpsilon map[string]float64
}

// Reconciler drives a pending payment from awaiting payment to a terminal booking state.
type Reconciler struct {
	store    payments.Repository
	executor BookingExecutor
	notifier Notifier
	history  HistoryRecorder
	metrics  Metrics
	cfg      Config
	logger   *zap.Logger
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithNotifier announces completed bookings through n.
func WithNotifier(n Notifier) Option { return func(r *Reconciler) { r.notifier = n } }

// WithHistory records completed bookings in the user's history.
func WithHistory(h HistoryRecorder) Option { return func(r *Reconciler) { r.history = h } }

// WithMetrics counts callback outcomes.
func WithMetrics(m Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// New returns a Reconciler. Notifier, history and metrics are optional.
func New(store payments.Repository, executor BookingExecutor, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		executor: executor,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reconciler) finish(ctx context.Context, n Notification, status int, body, outcome string) Result {
	if r.metrics != nil {
		r.metrics.Count(ctx, "PaymentNotification", outcome)
	}
	r.logger.Info("payment notification handled",
		zap.String("bill_no", n.BillNo),
		zap.Bool("precheck", n.Precheck),
		zap.String("outcome", outcome),
		zap.Int("status", status))
	return Result{Status: status, Body: body, Outcome: outcome}
}

// rejectAuth answers like any other bad request but logs which check failed.
func (r *Reconciler) rejectAuth(ctx context.Context, n Notification, reason string) Result {
	r.logger.Warn("payment notification failed authenticity check",
		zap.String("bill_no", n.BillNo),
		zap.String("reason", reason))
	return r.finish(ctx, n, http.StatusBadRequest, BodyInvalidRequest, OutcomeRejectedAuth)
}

func (r *Reconciler) epsilon(currency string) float64 {
	if e, ok := r.cfg.CurrencyEpsilon[strings.ToUpper(currency)]; ok {
		return e
	}
	return r.cfg.AmountEpsilon
}

func (r *Reconciler) amountMatches(p *payments.PendingPayment, raw string, parsed float64) bool {
	if p.Amount.Formatted != "" && strings.TrimSpace(raw) == p.Amount.Formatted {
		return true
	}
	return math.Abs(parsed-p.Amount.Value) <= r.epsilon(p.Amount.Currency)
}

// Handle validates n, and on an authentic confirmation executes the booking at most once per bill.
func (r *Reconciler) Handle(ctx context.Context, n Notification) Result {
	if n.BillNo == "" || n.RecAccount == "" || strings.TrimSpace(n.Amount) == "" {
		return r.finish(ctx, n, http.StatusBadRequest, BodyMissingFields, OutcomeRejectedInput)
	}
	amount, err := pricing.ParseAmount(n.Amount)
	if err != nil {
		return r.finish(ctx, n, http.StatusBadRequest, BodyInvalidAmount, OutcomeRejectedInput)
	}

	rec, err := r.store.Get(ctx, n.BillNo)
	if err != nil {
		r.logger.Error("load pending payment", zap.String("bill_no", n.BillNo), zap.Error(err))
		return r.finish(ctx, n, http.StatusInternalServerError, BodyTemporaryError, OutcomeStoreError)
	}
	if rec == nil {
		r.logger.Warn("payment notification for unknown bill", zap.String("bill_no", n.BillNo))
		return r.finish(ctx, n, http.StatusBadRequest, BodyInvalidRequest, OutcomeUnknownBill)
	}
	if n.RecAccount != rec.RecAccount {
		return r.rejectAuth(ctx, n, "rec_account_mismatch")
	}
	if !r.amountMatches(rec, n.Amount, amount) {
		return r.rejectAuth(ctx, n, "amount_mismatch")
	}

	if n.Precheck {
		if err := r.store.MarkPrechecked(ctx, n.BillNo); err != nil && !errors.Is(err, payments.ErrStatusMismatch) {
			r.logger.Warn("mark prechecked", zap.String("bill_no", n.BillNo), zap.Error(err))
		}
		return r.finish(ctx, n, http.StatusOK, BodyOK, OutcomePrechecked)
	}

	if n.PayerAccount == "" || n.TransID == "" || n.TransDate == "" || n.Checksum == "" {
		return r.finish(ctx, n, http.StatusBadRequest, BodyMissingTransaction, OutcomeRejectedInput)
	}
	expected := Checksum(n.RecAccount, n.Amount, r.cfg.SecretKey, n.BillNo, n.PayerAccount, n.TransID, n.TransDate)
	if !checksumEqual(expected, n.Checksum) {
		return r.rejectAuth(ctx, n, "checksum_mismatch")
	}

	if payments.IsTerminal(rec.Status) {
		return r.finish(ctx, n, http.StatusOK, BodyOK, OutcomeReplay)
	}

	claimed, err := r.store.Claim(ctx, n.BillNo, payments.GatewayTransaction{
		TransID:      n.TransID,
		PayerAccount: n.PayerAccount,
		TransDate:    n.TransDate,
		Checksum:     n.Checksum,
	})
	if errors.Is(err, payments.ErrStatusMismatch) {
		return r.finish(ctx, n, http.StatusOK, BodyOK, OutcomeClaimLost)
	}
	if err != nil {
		r.logger.Error("claim pending payment", zap.String("bill_no", n.BillNo), zap.Error(err))
		return r.finish(ctx, n, http.StatusInternalServerError, BodyTemporaryError, OutcomeStoreError)
	}

	// From here on the record is booking_in_progress and owned by this call.
	// A gateway disconnect must not abandon the supplier call half way.
	work := context.WithoutCancel(ctx)

	result, err := r.executor.Book(work, claimed.Payload)
	if err == nil && result == nil {
		err = errors.New("supplier returned an empty booking result")
	}
	if err != nil {
		r.logger.Error("supplier booking failed", zap.String("bill_no", n.BillNo), zap.Error(err))
		if ferr := r.store.Fail(work, n.BillNo, err.Error()); ferr != nil {
			r.logger.Error("persist booking_failed", zap.String("bill_no", n.BillNo), zap.Error(ferr))
		}
		return r.finish(ctx, n, http.StatusOK, BodyOK, OutcomeBookingFailed)
	}

	if err := r.store.Complete(work, n.BillNo, *result); err != nil {
		r.logger.Error("persist booking_complete",
			zap.String("bill_no", n.BillNo),
			zap.String("reference", result.Reference),
			zap.Error(err))
		return r.finish(ctx, n, http.StatusOK, BodyOK, OutcomeBookingComplete)
	}

	r.afterBooking(work, claimed, *result)
	return r.finish(ctx, n, http.StatusOK, BodyOK, OutcomeBookingComplete)
}

// afterBooking runs the best-effort side effects. Failures are logged and never change the outcome.
func (r *Reconciler) afterBooking(ctx context.Context, p *payments.PendingPayment, result booking.Result) {
	ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	if r.history != nil && p.UserID != "" {
		if err := r.history.RecordBooking(ctx, p.UserID, p.BillNo, p.Payload, result); err != nil {
			r.logger.Warn("record user booking", zap.String("bill_no", p.BillNo), zap.String("user_id", p.UserID), zap.Error(err))
		}
	}

	recipient := p.UserEmail
	if recipient == "" {
		recipient = p.Payload.Holder.Email
	}
	if r.notifier != nil && recipient != "" {
		err := r.notifier.NotifyBookingConfirmed(ctx, Confirmation{
			BillNo:    p.BillNo,
			Recipient: recipient,
			Name:      p.UserName,
			UserID:    p.UserID,
			Locale:    p.Locale,
			Payload:   p.Payload,
			Result:    result,
		})
		if err != nil {
			r.logger.Warn("send booking confirmation", zap.String("bill_no", p.BillNo), zap.Error(err))
		}
	}
}
