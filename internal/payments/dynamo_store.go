package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/aws"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
)

// Condition expressions issued against the payments table.
const (
	condNotExists      = "attribute_not_exists(bill_no)"
	condStatusEquals   = "attribute_exists(bill_no) AND #s = :expected"
	condClaimable      = "attribute_exists(bill_no) AND NOT (#s IN (:complete, :failed, :progress))"
	condIdempNotExists = "attribute_not_exists(idempotency_key) OR expires_at <= :now"
)

// DynamoStore keeps pending payments in a DynamoDB table keyed by bill_no.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new pending payments store.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) key(billNo string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"bill_no": &types.AttributeValueMemberS{Value: billNo},
	}
}

func (s *DynamoStore) stamp(p *PendingPayment) {
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusCreated
	}
}

// Create writes a new pending payment. Returns ErrAlreadyExists if the bill number is taken.
func (s *DynamoStore) Create(ctx context.Context, p PendingPayment) error {
	s.stamp(&p)
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - pending payment in the payments table (with ConditionExpression attribute_not_exists(bill_no))
//
// idempotencyItem must be a serializable struct with attribute idempotency_key present.
func (s *DynamoStore) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, p PendingPayment, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	// ensure idempotency TTL if needed: caller can include expires_at field; if not present, add it
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	s.stamp(&p)
	paymentMap, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString(condIdempNotExists),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.nowFunc().Unix(), 10)},
					},
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                paymentMap,
					ConditionExpression: awsString(condNotExists),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely idempotency key exists): %w", ErrAlreadyExists)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches a pending payment by bill_no. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, billNo string) (*PendingPayment, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(billNo),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p PendingPayment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending payment: %w", err)
	}
	return &p, nil
}

// transition sets status from expected -> newStatus plus any extra attributes.
// Returns ErrStatusMismatch if the condition failed.
func (s *DynamoStore) transition(ctx context.Context, billNo, expected, newStatus string, extra map[string]types.AttributeValue) error {
	updateExpr := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: newStatus},
		":ua":       &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		":expected": &types.AttributeValueMemberS{Value: expected},
	}
	for attr, v := range extra {
		updateExpr += fmt.Sprintf(", %s = :%s", attr, attr)
		values[":"+attr] = v
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(billNo),
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString(condStatusEquals),
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// MarkPrechecked moves created -> prechecked.
func (s *DynamoStore) MarkPrechecked(ctx context.Context, billNo string) error {
	return s.transition(ctx, billNo, StatusCreated, StatusPrechecked, nil)
}

// Claim sets booking_in_progress unless the record is already claimed or terminal,
// and returns the record as written. ErrStatusMismatch means another delivery owns it.
func (s *DynamoStore) Claim(ctx context.Context, billNo string, tx GatewayTransaction) (*PendingPayment, error) {
	gw, err := attributevalue.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway transaction: %w", err)
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(billNo),
		UpdateExpression:         awsString("SET #s = :new, gateway = :gw, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: StatusBookingInProgress},
			":gw":       gw,
			":ua":       &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
			":complete": &types.AttributeValueMemberS{Value: claimBlocked[0]},
			":failed":   &types.AttributeValueMemberS{Value: claimBlocked[1]},
			":progress": &types.AttributeValueMemberS{Value: claimBlocked[2]},
		},
		ConditionExpression: awsString(condClaimable),
		ReturnValues:        types.ReturnValueAllNew,
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("claim: %w", err)
	}
	var p PendingPayment
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal claimed payment: %w", err)
	}
	return &p, nil
}

// Complete records the supplier result on a claimed payment.
func (s *DynamoStore) Complete(ctx context.Context, billNo string, result booking.Result) error {
	res, err := attributevalue.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal booking result: %w", err)
	}
	return s.transition(ctx, billNo, StatusBookingInProgress, StatusBookingComplete,
		map[string]types.AttributeValue{"booking_result": res})
}

// Fail records the supplier error on a claimed payment.
func (s *DynamoStore) Fail(ctx context.Context, billNo string, message string) error {
	return s.transition(ctx, billNo, StatusBookingInProgress, StatusBookingFailed,
		map[string]types.AttributeValue{"booking_error": &types.AttributeValueMemberS{Value: message}})
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
