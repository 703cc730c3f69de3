package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	pkgconfig "github.com/cloud-wave-best-zizon/eshop-service/pkg/config"
	"github.com/sethvargo/go-retry"
)

// DynamoAPI is the subset of the DynamoDB client the repositories use.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	attrPK     = "PK"
	attrSK     = "SK"
	attrGSI1PK = "GSI1PK"
	attrGSI1SK = "GSI1SK"
	attrGSI2PK = "GSI2PK"
	attrGSI2SK = "GSI2SK"

	indexGSI1 = "GSI1"
	indexGSI2 = "GSI2"

	skMetadata = "METADATA"
	skUnique   = "UNIQUE"

	// sortTimeLayout is fixed width so sort keys order chronologically.
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

func NewDynamoDBClient(ctx context.Context, cfg *pkgconfig.Config) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

// EnsureTable creates the single service table with both secondary indexes
// if it does not exist yet, and waits until it is active.
func EnsureTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	gsi := func(name, pk, sk string) types.GlobalSecondaryIndex {
		return types.GlobalSecondaryIndex{
			IndexName: aws.String(name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(sk), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}
	}
	strAttr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
	}

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			strAttr(attrPK), strAttr(attrSK),
			strAttr(attrGSI1PK), strAttr(attrGSI1SK),
			strAttr(attrGSI2PK), strAttr(attrGSI2SK),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexGSI1, attrGSI1PK, attrGSI1SK),
			gsi(indexGSI2, attrGSI2PK, attrGSI2SK),
		},
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 2*time.Minute)
}

// Store holds the shared table handle and retry policy for the repositories.
type Store struct {
	client     DynamoAPI
	tableName  string
	maxRetries uint64
	baseDelay  time.Duration
	now        func() time.Time
}

func NewStore(client DynamoAPI, tableName string, maxRetries uint64) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		maxRetries: maxRetries,
		baseDelay:  50 * time.Millisecond,
		now:        time.Now,
	}
}

// do runs fn with bounded exponential backoff on transient failures. Errors
// that remain transient after the last attempt, or that stem from the request
// deadline, are reported as domain.ErrUnavailable.
func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if isTransient(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

var transientCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingException":                    true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
}

func isTransient(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, r := range canceled.CancellationReasons {
			if aws.ToString(r.Code) == "TransactionConflict" || aws.ToString(r.Code) == "ThrottlingError" {
				return true
			}
		}
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()]
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// cancellationReasons returns the per-item reasons of a cancelled
// transaction, or nil if err is not a cancellation.
func cancellationReasons(err error) []types.CancellationReason {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return canceled.CancellationReasons
	}
	return nil
}

// failedAt reports whether the transaction was cancelled because the
// condition on action i failed.
func failedAt(err error, i int) bool {
	reasons := cancellationReasons(err)
	return i < len(reasons) && aws.ToString(reasons[i].Code) == "ConditionalCheckFailed"
}

func sortTime(t time.Time) string {
	return t.UTC().Format(sortTimeLayout)
}

func strVal(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: strVal(pk),
		attrSK: strVal(sk),
	}
}

func (s *Store) getItem(ctx context.Context, op, pk, sk string) (map[string]types.AttributeValue, error) {
	var item map[string]types.AttributeValue
	err := s.do(ctx, op, func(ctx context.Context) error {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.tableName),
			Key:            itemKey(pk, sk),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return err
		}
		item = out.Item
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(item) == 0 {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// queryPages runs in through every page, handing each page's items to fn.
// fn returns false to stop early.
func (s *Store) queryPages(ctx context.Context, op string, in *dynamodb.QueryInput, fn func([]map[string]types.AttributeValue) (bool, error)) error {
	in.TableName = aws.String(s.tableName)
	for {
		var out *dynamodb.QueryOutput
		err := s.do(ctx, op, func(ctx context.Context) error {
			var err error
			out, err = s.client.Query(ctx, in)
			return err
		})
		if err != nil {
			return err
		}
		more, err := fn(out.Items)
		if err != nil {
			return err
		}
		if !more || len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// queryCount returns the number of items matching in.
func (s *Store) queryCount(ctx context.Context, op string, in *dynamodb.QueryInput) (int, error) {
	in.TableName = aws.String(s.tableName)
	in.Select = types.SelectCount
	total := 0
	for {
		var out *dynamodb.QueryOutput
		err := s.do(ctx, op, func(ctx context.Context) error {
			var err error
			out, err = s.client.Query(ctx, in)
			return err
		})
		if err != nil {
			return 0, err
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) transact(ctx context.Context, op string, items []types.TransactWriteItem) error {
	return s.do(ctx, op, func(ctx context.Context) error {
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		return err
	})
}
