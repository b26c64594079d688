package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	dynamodb.ScanAPIClient
}

// maxTransactItems is DynamoDB's TransactWriteItems limit.
const maxTransactItems = 100

// record is the physical item layout shared by every logical table.
type record struct {
	Key     string `dynamodbav:"pk"`
	Value   string `dynamodbav:"doc"`
	Version int64  `dynamodbav:"version"`
	Seq     int64  `dynamodbav:"seq"` // creation time in ns, for stable scans
}

// Store implements store.Store on one DynamoDB table per logical table.
type Store struct {
	client API
	prefix string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint targets DynamoDB Local with static dummy credentials.
func NewClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Dynamo.Region)}
	if cfg.Dynamo.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Dynamo.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Dynamo.Endpoint)
		}
	}), nil
}

// New wraps client. Physical table names are prefix + logical name.
func New(client API, prefix string) *Store {
	return &Store{client: client, prefix: prefix, now: time.Now}
}

func (s *Store) tableName(t store.Table) *string {
	return aws.String(s.prefix + string(t))
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: key}}
}

// EnsureTables creates any missing table (on-demand billing, pk hash key).
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, t := range store.Tables {
		_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:            s.tableName(t),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS}},
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash}},
		})
		var inUse *types.ResourceInUseException
		if err != nil && !errors.As(err, &inUse) {
			return fmt.Errorf("failed to create table '%s': %w", *s.tableName(t), err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table store.Table, key string) (store.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.tableName(table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return store.Item{}, fmt.Errorf("failed to get item from table '%s': %w", table, err)
	}
	if out.Item == nil {
		return store.Item{}, store.ErrNotFound
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return store.Item{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return store.Item{Table: table, Key: rec.Key, Value: []byte(rec.Value), Version: rec.Version}, nil
}

func (s *Store) Put(ctx context.Context, w store.Write) (int64, error) {
	var err error
	if w.ExpectedVersion == 0 {
		var in *dynamodb.PutItemInput
		if in, err = s.putInput(w); err != nil {
			return 0, err
		}
		_, err = s.client.PutItem(ctx, in)
	} else {
		_, err = s.client.UpdateItem(ctx, s.updateInput(w))
	}
	if err != nil {
		return 0, s.mapWriteErr(w, err)
	}
	return w.ExpectedVersion + 1, nil
}

// Transact maps the writes onto one TransactWriteItems call.
func (s *Store) Transact(ctx context.Context, writes ...store.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > maxTransactItems {
		return fmt.Errorf("dynamostore: %d writes exceed the transaction limit of %d", len(writes), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		if w.ExpectedVersion == 0 {
			in, err := s.putInput(w)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName:                in.TableName,
				Item:                     in.Item,
				ConditionExpression:      in.ConditionExpression,
				ExpressionAttributeNames: in.ExpressionAttributeNames,
			}})
			continue
		}
		up := s.updateInput(w)
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:                 up.TableName,
			Key:                       up.Key,
			UpdateExpression:          up.UpdateExpression,
			ConditionExpression:       up.ConditionExpression,
			ExpressionAttributeNames:  up.ExpressionAttributeNames,
			ExpressionAttributeValues: up.ExpressionAttributeValues,
		}})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				if i < len(writes) {
					return fmt.Errorf("%w: %s/%s", store.ErrConflict, writes[i].Table, writes[i].Key)
				}
			}
		}
	}
	if retryableConflict(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return fmt.Errorf("failed to execute transaction: %w", err)
}

// Scan walks every page and returns matches ordered by creation.
func (s *Store) Scan(ctx context.Context, table store.Table, keep func(store.Item) bool) ([]store.Item, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      s.tableName(table),
		ConsistentRead: aws.Bool(true),
	})

	var recs []record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var missing *types.ResourceNotFoundException
			if errors.As(err, &missing) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to scan table '%s': %w", table, err)
		}
		var batch []record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan page: %w", err)
		}
		recs = append(recs, batch...)
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	var out []store.Item
	for _, r := range recs {
		it := store.Item{Table: table, Key: r.Key, Value: []byte(r.Value), Version: r.Version}
		if keep == nil || keep(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) putInput(w store.Write) (*dynamodb.PutItemInput, error) {
	item, err := attributevalue.MarshalMap(record{
		Key:     w.Key,
		Value:   string(w.Value),
		Version: 1,
		Seq:     s.now().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return &dynamodb.PutItemInput{
		TableName:                s.tableName(w.Table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk"},
	}, nil
}

func (s *Store) updateInput(w store.Write) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:           s.tableName(w.Table),
		Key:                 keyOf(w.Key),
		UpdateExpression:    aws.String("SET #doc = :doc, #ver = :next"),
		ConditionExpression: aws.String("#ver = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#doc": "doc",
			"#ver": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":doc":      &types.AttributeValueMemberS{Value: string(w.Value)},
			":next":     &types.AttributeValueMemberN{Value: strconv.FormatInt(w.ExpectedVersion+1, 10)},
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(w.ExpectedVersion, 10)},
		},
	}
}

func (s *Store) mapWriteErr(w store.Write, err error) error {
	var failed *types.ConditionalCheckFailedException
	if errors.As(err, &failed) || retryableConflict(err) {
		return fmt.Errorf("%w: %s/%s", store.ErrConflict, w.Table, w.Key)
	}
	return fmt.Errorf("failed to write item to table '%s': %w", w.Table, err)
}

// retryableConflict matches the error codes DynamoDB (and DynamoDB Local,
// which does not always return typed errors) uses for write races.
func retryableConflict(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ConditionalCheckFailedException", "TransactionConflictException":
		return true
	}
	return false
}
