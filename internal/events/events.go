package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/aws"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/reconcile"
)

// TypeBookingConfirmed is published once per bill after booking_complete is persisted.
const TypeBookingConfirmed = "booking.confirmed"

// Event is the envelope sent over SQS.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Booking    reconcile.Confirmation `json:"booking"`
}

// Decode parses an SQS message body into an Event.
func Decode(body string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("invalid event body: %w", err)
	}
	if ev.Type == "" || ev.Booking.BillNo == "" {
		return nil, fmt.Errorf("invalid event: missing type or bill_no")
	}
	return &ev, nil
}

// Notifier hands confirmations to the worker through SQS.
type Notifier struct {
	publisher *aws.Publisher
	nowFunc   func() time.Time
	newID     func() string
}

// NewNotifier returns a Notifier publishing with p.
func NewNotifier(p *aws.Publisher) *Notifier {
	return &Notifier{
		publisher: p,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// NotifyBookingConfirmed publishes a booking.confirmed event for c.
func (n *Notifier) NotifyBookingConfirmed(ctx context.Context, c reconcile.Confirmation) error {
	ev := Event{
		ID:         n.newID(),
		Type:       TypeBookingConfirmed,
		OccurredAt: n.nowFunc().UTC(),
		Booking:    c,
	}
	attrs := map[string]string{
		"bill_no":  c.BillNo,
		"event_id": ev.ID,
	}
	if err := n.publisher.PublishJSON(ctx, ev.Type, ev, attrs); err != nil {
		return fmt.Errorf("publish %s for %s: %w", ev.Type, c.BillNo, err)
	}
	return nil
}

// Mailer delivers a booking confirmation to the guest.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, c reconcile.Confirmation) error
}

// LogMailer writes the confirmation to the log instead of sending mail.
type LogMailer struct {
	Logger *zap.Logger
}

// SendBookingConfirmation logs the confirmation.
func (m LogMailer) SendBookingConfirmation(ctx context.Context, c reconcile.Confirmation) error {
	m.Logger.Info("booking confirmation",
		zap.String("bill_no", c.BillNo),
		zap.String("recipient", c.Recipient),
		zap.String("locale", c.Locale),
		zap.String("hotel_code", c.Payload.HotelCode),
		zap.String("reference", c.Result.Reference))
	return nil
}

var _ reconcile.Notifier = (*Notifier)(nil)
