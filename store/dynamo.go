package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps items in a DynamoDB table keyed by a string "id"
// attribute. Ids are random UUIDs and lastUpdate is stored as an RFC 3339
// string. Item fields are constrained to the configured schema.
type DynamoStore struct {
	client DynamoAPI
	table  string
	settings
}

// ConnectDynamo loads the default AWS configuration for region and returns a
// store over table. A non-empty endpoint overrides the service endpoint, for
// DynamoDB Local.
func ConnectDynamo(ctx context.Context, table, region, endpoint string, opts ...Option) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("store: aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewDynamoStore(client, table, opts...), nil
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(client DynamoAPI, table string, opts ...Option) *DynamoStore {
	s := &DynamoStore{client: client, table: table, settings: newSettings(opts)}
	s.requireSchema()
	return s
}

func parseUUID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", &InvalidIDError{ID: id, Kind: "UUID"}
	}
	return u.String(), nil
}

func dynamoKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

// toAttributes marshals item fields. Times are stored as RFC 3339 strings.
func toAttributes(doc map[string]any) (map[string]types.AttributeValue, error) {
	plain := make(map[string]any, len(doc))
	for k, v := range doc {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		plain[k] = v
	}
	return attributevalue.MarshalMap(plain)
}

func fromAttributes(av map[string]types.AttributeValue) (Item, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(av, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return normalize(doc), nil
}

// updateExpression builds "SET #f0 = :v0, ..." over the fields of set, in
// sorted field order.
func updateExpression(set map[string]types.AttributeValue) (string, map[string]string, map[string]types.AttributeValue) {
	fields := make([]string, 0, len(set))
	for k := range set {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	expr := "SET "
	names := make(map[string]string, len(fields))
	values := make(map[string]types.AttributeValue, len(fields))
	for i, f := range fields {
		n, v := "#f"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
		if i > 0 {
			expr += ", "
		}
		expr += n + " = " + v
		names[n] = f
		values[v] = set[f]
	}
	return expr, names, values
}

func (s *DynamoStore) failed(op string, err error) error {
	s.logger.Error("dynamodb "+op+" failed", "table", s.table, "error", err)
	return fmt.Errorf("store: dynamodb %s: %w", op, err)
}

func (s *DynamoStore) Create(ctx context.Context, data map[string]any) (Item, error) {
	doc, err := s.cast(data, true)
	if err != nil {
		return nil, err
	}
	doc["id"] = uuid.NewString()
	doc["lastUpdate"] = s.clock.Now()
	av, err := toAttributes(doc)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, s.failed("put", err)
	}
	return fromAttributes(av)
}

// List scans the whole table. A scan has no order, so items are returned
// oldest lastUpdate first.
func (s *DynamoStore) List(ctx context.Context) ([]Item, error) {
	items := []Item{}
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, s.failed("scan", err)
		}
		for _, av := range out.Items {
			it, err := fromAttributes(av)
			if err != nil {
				s.logger.Warn("skipping unreadable item", "table", s.table, "error", err)
				continue
			}
			items = append(items, it)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastUpdate().Before(items[j].LastUpdate())
	})
	return items, nil
}

func (s *DynamoStore) FindByID(ctx context.Context, id string) (Item, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.failed("get", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return fromAttributes(out.Item)
}

func (s *DynamoStore) Update(ctx context.Context, id string, data map[string]any) (Item, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	set, err := s.cast(data, false)
	if err != nil {
		return nil, err
	}
	existing, err := s.FindByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	set["lastUpdate"] = s.clock.After(existing.LastUpdate())
	av, err := toAttributes(set)
	if err != nil {
		return nil, err
	}
	expr, names, values := updateExpression(av)
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       dynamoKey(key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, s.failed("update", err)
	}
	return fromAttributes(out.Attributes)
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	key, err := parseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoKey(key),
	})
	if err != nil {
		return s.failed("delete", err)
	}
	return nil
}

func (s *DynamoStore) Close() error {
	return nil
}
