package tools

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBStrategy executes ToolTypeDB specs whose Driver is "dynamodb".
//
// args:
//   "operation" one of "get_item", "put_item", "query", "scan"
//   "key"              map[string]interface{}  (get_item)
//   "item"              map[string]interface{}  (put_item)
//   "key_condition"     string                  (query, a DynamoDB key condition expression)
//   "expression_values" map[string]interface{}  (query)
type DynamoDBStrategy struct {
	Client *dynamodb.Client
}

func (s *DynamoDBStrategy) Execute(ctx context.Context, spec *ToolSpec, args map[string]interface{}) (interface{}, error) {
	op, _ := args["operation"].(string)
	table := spec.TableName
	if table == "" {
		return nil, NewToolError(CodeValidationError, "db spec is missing required table_name").WithToolID(spec.ID)
	}
	switch op {
	case "get_item":
		return s.getItem(ctx, spec, table, args)
	case "put_item":
		return s.putItem(ctx, spec, table, args)
	case "query":
		return s.query(ctx, spec, table, args)
	case "scan":
		return s.scan(ctx, spec, table)
	default:
		return nil, NewToolError(CodeValidationError, fmt.Sprintf("unsupported dynamodb operation %q", op)).WithToolID(spec.ID)
	}
}

// envelope wraps a driver result in the standard
// {operation, status: "success", ...fields} shape every DB strategy
// returns, so callers can branch on "operation"/"status" the same way
// regardless of driver.
func envelope(operation string, fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"operation": operation, "status": "success"}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (s *DynamoDBStrategy) getItem(ctx context.Context, spec *ToolSpec, table string, args map[string]interface{}) (interface{}, error) {
	key, _ := args["key"].(map[string]interface{})
	avKey, err := attributevalue.MarshalMap(normalizeNumerics(key))
	if err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &table, Key: avKey})
	if err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	var item map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	return envelope("get_item", map[string]interface{}{"item": item}), nil
}

func (s *DynamoDBStrategy) putItem(ctx context.Context, spec *ToolSpec, table string, args map[string]interface{}) (interface{}, error) {
	item, _ := args["item"].(map[string]interface{})
	avItem, err := attributevalue.MarshalMap(normalizeNumerics(item))
	if err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	if _, err := s.Client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: avItem}); err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	return envelope("put_item", nil), nil
}

func (s *DynamoDBStrategy) query(ctx context.Context, spec *ToolSpec, table string, args map[string]interface{}) (interface{}, error) {
	keyCondition, _ := args["key_condition"].(string)
	if keyCondition == "" {
		return nil, NewToolError(CodeValidationError, "query requires a key_condition expression").WithToolID(spec.ID)
	}
	values, _ := args["expression_values"].(map[string]interface{})
	avValues, err := attributevalue.MarshalMap(normalizeNumerics(values))
	if err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	out, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &table,
		KeyConditionExpression:    &keyCondition,
		ExpressionAttributeValues: avValues,
	})
	if err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	items, err := unmarshalItems(spec, out.Items)
	if err != nil {
		return nil, err
	}
	return envelope("query", map[string]interface{}{"items": items, "count": len(items)}), nil
}

func (s *DynamoDBStrategy) scan(ctx context.Context, spec *ToolSpec, table string) (interface{}, error) {
	out, err := s.Client.Scan(ctx, &dynamodb.ScanInput{TableName: &table})
	if err != nil {
		return nil, wrapDynamoError(spec, err)
	}
	items, err := unmarshalItems(spec, out.Items)
	if err != nil {
		return nil, err
	}
	return envelope("scan", map[string]interface{}{"items": items, "count": len(items)}), nil
}

func unmarshalItems(spec *ToolSpec, rawItems []map[string]types.AttributeValue) ([]map[string]interface{}, error) {
	items := make([]map[string]interface{}, 0, len(rawItems))
	for _, raw := range rawItems {
		var item map[string]interface{}
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, wrapDynamoError(spec, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func wrapDynamoError(spec *ToolSpec, err error) error {
	return NewToolError(CodeToolError, err.Error()).WithToolID(spec.ID).WithCause(err)
}

// normalizeNumerics recursively rewrites float64 values into
// attributevalue-friendly form, guarding against the precision loss that
// float64 -> DynamoDB Number -> float64 round trips otherwise introduce.
// Integral floats are emitted as int64; the rest are left as float64 and
// rely on attributevalue's exact decimal string formatting.
func normalizeNumerics(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeNumerics(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeNumerics(item)
		}
		return out
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return val
	}
}
