package history

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/aws"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
)

// Entry is one booking in a user's history. PK user_id, SK bill_no.
type Entry struct {
	UserID    string          `json:"user_id" dynamodbav:"user_id"`
	BillNo    string          `json:"bill_no" dynamodbav:"bill_no"`
	HotelCode string          `json:"hotel_code" dynamodbav:"hotel_code"`
	HotelName string          `json:"hotel_name,omitempty" dynamodbav:"hotel_name,omitempty"`
	CheckIn   string          `json:"check_in" dynamodbav:"check_in"`
	CheckOut  string          `json:"check_out" dynamodbav:"check_out"`
	Reference string          `json:"reference" dynamodbav:"reference"`
	Payload   booking.Payload `json:"payload" dynamodbav:"payload"`
	Result    booking.Result  `json:"result" dynamodbav:"result"`
	CreatedAt time.Time       `json:"created_at" dynamodbav:"created_at"`
}

// Store writes user booking history to DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a booking history store backed by tableName.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// RecordBooking upserts the entry for (userID, billNo); writing it twice is harmless.
func (s *Store) RecordBooking(ctx context.Context, userID, billNo string, payload booking.Payload, result booking.Result) error {
	e := Entry{
		UserID:    userID,
		BillNo:    billNo,
		HotelCode: payload.HotelCode,
		HotelName: payload.HotelName,
		CheckIn:   payload.CheckIn,
		CheckOut:  payload.CheckOut,
		Reference: result.Reference,
		Payload:   payload,
		Result:    result,
		CreatedAt: s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put history entry: %w", err)
	}
	return nil
}

// Get returns one history entry, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, userID, billNo string) (*Entry, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"bill_no": &types.AttributeValueMemberS{Value: billNo},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var e Entry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, fmt.Errorf("unmarshal history entry: %w", err)
	}
	return &e, nil
}
