package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
)

// MongoStore keeps pending payments in a MongoDB collection, one document per bill number (_id).
type MongoStore struct {
	coll    *mongo.Collection
	nowFunc func() time.Time
}

// NewMongoStore returns a store backed by the pending_payments collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll:    db.Collection("pending_payments"),
		nowFunc: time.Now,
	}
}

// EnsureIndexes creates the status index used by operators to find stuck claims.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create status index: %w", err)
	}
	return nil
}

// Create inserts p with status created. A duplicate bill number returns ErrAlreadyExists.
func (s *MongoStore) Create(ctx context.Context, p PendingPayment) error {
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusCreated
	}
	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert pending payment: %w", err)
	}
	return nil
}

// Get fetches a pending payment by bill_no. Returns (nil, nil) when absent.
func (s *MongoStore) Get(ctx context.Context, billNo string) (*PendingPayment, error) {
	var p PendingPayment
	err := s.coll.FindOne(ctx, bson.M{"_id": billNo}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending payment: %w", err)
	}
	return &p, nil
}

// statusFilter matches billNo only while it is in expected.
func statusFilter(billNo, expected string) bson.M {
	return bson.M{"_id": billNo, "status": expected}
}

// claimFilter matches billNo only while no delivery owns it and it is not terminal.
func claimFilter(billNo string) bson.M {
	return bson.M{"_id": billNo, "status": bson.M{"$nin": claimBlocked}}
}

func (s *MongoStore) transition(ctx context.Context, billNo, expected, newStatus string, extra bson.M) error {
	set := bson.M{"status": newStatus, "updated_at": s.nowFunc().UTC()}
	for k, v := range extra {
		set[k] = v
	}
	res, err := s.coll.UpdateOne(ctx, statusFilter(billNo, expected), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update pending payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrStatusMismatch
	}
	return nil
}

// MarkPrechecked moves created -> prechecked.
func (s *MongoStore) MarkPrechecked(ctx context.Context, billNo string) error {
	return s.transition(ctx, billNo, StatusCreated, StatusPrechecked, nil)
}

// Claim is a single FindOneAndUpdate; the document-level atomicity of MongoDB is the lock.
func (s *MongoStore) Claim(ctx context.Context, billNo string, tx GatewayTransaction) (*PendingPayment, error) {
	update := bson.M{"$set": bson.M{
		"status":     StatusBookingInProgress,
		"gateway":    tx,
		"updated_at": s.nowFunc().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p PendingPayment
	err := s.coll.FindOneAndUpdate(ctx, claimFilter(billNo), update, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrStatusMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending payment: %w", err)
	}
	return &p, nil
}

// Complete moves booking_in_progress -> booking_complete and stores the supplier result.
func (s *MongoStore) Complete(ctx context.Context, billNo string, result booking.Result) error {
	return s.transition(ctx, billNo, StatusBookingInProgress, StatusBookingComplete, bson.M{"booking_result": result})
}

// Fail moves booking_in_progress -> booking_failed with message.
func (s *MongoStore) Fail(ctx context.Context, billNo string, message string) error {
	return s.transition(ctx, billNo, StatusBookingInProgress, StatusBookingFailed, bson.M{"booking_error": message})
}

var (
	_ Repository = (*DynamoStore)(nil)
	_ Repository = (*MongoStore)(nil)
)
