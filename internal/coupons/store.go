package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/aws"
)

// Discount kinds
const (
	KindPercent = "percent"
	KindFixed   = "fixed"
)

var (
	ErrNotFound = errors.New("coupon not found")
	ErrExpired  = errors.New("coupon expired or inactive")

	// ErrNotApplicable is returned when a fixed discount is in another currency than the booking.
	ErrNotApplicable = errors.New("coupon not applicable to this booking")
)

// Coupon is stored in the coupons table, keyed by upper-case code.
type Coupon struct {
	Code       string    `json:"code" dynamodbav:"code"` // PK
	Kind       string    `json:"kind" dynamodbav:"kind"`
	Value      float64   `json:"value" dynamodbav:"value"`
	Currency   string    `json:"currency,omitempty" dynamodbav:"currency,omitempty"`
	Active     bool      `json:"active" dynamodbav:"active"`
	ValidFrom  time.Time `json:"valid_from" dynamodbav:"valid_from"`
	ValidUntil time.Time `json:"valid_until" dynamodbav:"valid_until"`
}

// Usable reports whether c can be redeemed at t. A zero bound is open.
func (c *Coupon) Usable(t time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.ValidFrom.IsZero() && t.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidUntil.IsZero() && !t.Before(c.ValidUntil) {
		return false
	}
	return true
}

// Apply returns total after the discount, never below zero.
func (c *Coupon) Apply(total float64, currency string) (float64, error) {
	var out float64
	switch c.Kind {
	case KindPercent:
		out = total * (1 - c.Value/100)
	case KindFixed:
		if c.Currency != "" && !strings.EqualFold(c.Currency, currency) {
			return 0, ErrNotApplicable
		}
		out = total - c.Value
	default:
		return 0, fmt.Errorf("coupon %s: unknown kind %q", c.Code, c.Kind)
	}
	if out < 0 {
		out = 0
	}
	return out, nil
}

// Normalize trims and upper-cases a client supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Store reads coupons from DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a coupon store backed by tableName.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Put writes c, replacing any coupon with the same code.
func (s *Store) Put(ctx context.Context, c Coupon) error {
	c.Code = Normalize(c.Code)
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal coupon: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put coupon: %w", err)
	}
	return nil
}

// Get returns the coupon for code, or (nil, nil) when it does not exist.
func (s *Store) Get(ctx context.Context, code string) (*Coupon, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"code": &types.AttributeValueMemberS{Value: Normalize(code)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// Validate returns the coupon when it exists and is usable now.
func (s *Store) Validate(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.Usable(s.nowFunc()) {
		return nil, ErrExpired
	}
	return c, nil
}
