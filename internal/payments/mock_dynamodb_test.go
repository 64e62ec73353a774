package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is an in-memory table set that understands the condition expressions DynamoStore issues.
// It stores items per table in a nested map: table -> pkValue -> item map.
type mockDynamo struct {
	mu          sync.Mutex
	tables      map[string]map[string]map[string]types.AttributeValue
	updateCalls int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func pkOf(item map[string]types.AttributeValue) (string, string, error) {
	for _, name := range []string{"idempotency_key", "bill_no"} {
		if v, ok := item[name]; ok {
			return name, v.(*types.AttributeValueMemberS).Value, nil
		}
	}
	return "", "", errors.New("no primary key attribute")
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func statusOf(item map[string]types.AttributeValue) string {
	if s, ok := item["status"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func strVal(values map[string]types.AttributeValue, key string) string {
	return values[key].(*types.AttributeValueMemberS).Value
}

// expiredBy reports whether item's expires_at is at or before now.
func expiredBy(item map[string]types.AttributeValue, now types.AttributeValue) bool {
	exp, ok := item["expires_at"].(*types.AttributeValueMemberN)
	n, ok2 := now.(*types.AttributeValueMemberN)
	if !ok || !ok2 {
		return false
	}
	e, _ := strconv.ParseInt(exp.Value, 10, 64)
	t, _ := strconv.ParseInt(n.Value, 10, 64)
	return e <= t
}

// checkCondition evaluates the handful of expressions the store uses.
func checkCondition(cond *string, exists bool, item map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	switch *cond {
	case condNotExists:
		return !exists
	case condIdempNotExists:
		return !exists || expiredBy(item, values[":now"])
	case condStatusEquals:
		return exists && statusOf(item) == strVal(values, ":expected")
	case condClaimable:
		if !exists {
			return false
		}
		st := statusOf(item)
		return st != strVal(values, ":complete") && st != strVal(values, ":failed") && st != strVal(values, ":progress")
	default:
		panic("mockDynamo: unsupported condition " + *cond)
	}
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	existing, exists := m.tables[table][pk]
	if !checkCondition(params.ConditionExpression, exists, existing, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.tables[table][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

// UpdateItem applies "SET a = :a, #s = :new, ..." expressions.
func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	table := *params.TableName
	m.ensureTable(table)
	_, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.tables[table][pk]
	if !checkCondition(params.ConditionExpression, exists, item, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if !exists {
		item = copyItem(params.Key)
	}
	updated := copyItem(item)

	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assign := range strings.Split(expr, ",") {
		parts := strings.SplitN(strings.TrimSpace(assign), " = ", 2)
		if len(parts) != 2 {
			return nil, errors.New("mockDynamo: unsupported update expression")
		}
		name := parts[0]
		if mapped, ok := params.ExpressionAttributeNames[name]; ok {
			name = mapped
		}
		updated[name] = params.ExpressionAttributeValues[parts[1]]
	}
	m.tables[table][pk] = updated

	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(updated)
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// First pass: verify condition expressions
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := *p.TableName
			m.ensureTable(table)
			_, pk, err := pkOf(p.Item)
			if err != nil {
				return nil, err
			}
			existing, exists := m.tables[table][pk]
			if !checkCondition(p.ConditionExpression, exists, existing, p.ExpressionAttributeValues) {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	// Second pass: apply all puts
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			_, pk, _ := pkOf(p.Item)
			m.tables[*p.TableName][pk] = copyItem(p.Item)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
