package payments

import (
	"context"
	"errors"
	"time"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
)

// Pending payment statuses
const (
	StatusCreated           = "created"
	StatusPrechecked        = "prechecked"
	StatusBookingInProgress = "booking_in_progress"
	StatusBookingComplete   = "booking_complete"
	StatusBookingFailed     = "booking_failed"
)

// claimBlocked lists the statuses from which a confirmation can no longer claim a record.
var claimBlocked = []string{StatusBookingComplete, StatusBookingFailed, StatusBookingInProgress}

var (
	// ErrStatusMismatch is returned when a conditional status transition matched nothing.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrAlreadyExists is returned when a bill number is already recorded.
	ErrAlreadyExists = errors.New("pending payment already exists")
)

// IsTerminal reports whether status is absorbing.
func IsTerminal(status string) bool {
	return status == StatusBookingComplete || status == StatusBookingFailed
}

// Amount is the settlement amount fixed at creation.
type Amount struct {
	Value     float64 `json:"value" dynamodbav:"value" bson:"value"`
	Formatted string  `json:"formatted" dynamodbav:"formatted" bson:"formatted"`
	Currency  string  `json:"currency" dynamodbav:"currency" bson:"currency"`
}

// GatewayTransaction is the payer side of a confirmed payment, written at claim time.
type GatewayTransaction struct {
	TransID      string `json:"trans_id" dynamodbav:"trans_id" bson:"trans_id"`
	PayerAccount string `json:"payer_account" dynamodbav:"payer_account" bson:"payer_account"`
	TransDate    string `json:"trans_date" dynamodbav:"trans_date" bson:"trans_date"`
	Checksum     string `json:"checksum" dynamodbav:"checksum" bson:"checksum"`
}

// PendingPayment is one payment attempt, keyed by the gateway bill number.
type PendingPayment struct {
	BillNo        string              `json:"bill_no" dynamodbav:"bill_no" bson:"_id"` // PK
	Status        string              `json:"status" dynamodbav:"status" bson:"status"`
	RecAccount    string              `json:"rec_account" dynamodbav:"rec_account" bson:"rec_account"`
	Amount        Amount              `json:"amount" dynamodbav:"amount" bson:"amount"`
	Payload       booking.Payload     `json:"payload" dynamodbav:"payload" bson:"payload"`
	UserID        string              `json:"user_id,omitempty" dynamodbav:"user_id,omitempty" bson:"user_id,omitempty"`
	UserEmail     string              `json:"user_email,omitempty" dynamodbav:"user_email,omitempty" bson:"user_email,omitempty"`
	UserName      string              `json:"user_name,omitempty" dynamodbav:"user_name,omitempty" bson:"user_name,omitempty"`
	Locale        string              `json:"locale,omitempty" dynamodbav:"locale,omitempty" bson:"locale,omitempty"`
	Gateway       *GatewayTransaction `json:"gateway,omitempty" dynamodbav:"gateway,omitempty" bson:"gateway,omitempty"`
	BookingResult *booking.Result     `json:"booking_result,omitempty" dynamodbav:"booking_result,omitempty" bson:"booking_result,omitempty"`
	BookingError  string              `json:"booking_error,omitempty" dynamodbav:"booking_error,omitempty" bson:"booking_error,omitempty"`
	CreatedAt     time.Time           `json:"created_at" dynamodbav:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" dynamodbav:"updated_at" bson:"updated_at"`
}

// Repository is the persistence contract the reconciler and checkout rely on.
// Every transition is a single conditional write; records are never deleted.
type Repository interface {
	Create(ctx context.Context, p PendingPayment) error
	// Get returns (nil, nil) when billNo is unknown.
	Get(ctx context.Context, billNo string) (*PendingPayment, error)
	// MarkPrechecked moves created -> prechecked.
	MarkPrechecked(ctx context.Context, billNo string) error
	// Claim moves any non-terminal, non-claimed record to booking_in_progress and returns it.
	Claim(ctx context.Context, billNo string, tx GatewayTransaction) (*PendingPayment, error)
	Complete(ctx context.Context, billNo string, result booking.Result) error
	Fail(ctx context.Context, billNo string, message string) error
}
