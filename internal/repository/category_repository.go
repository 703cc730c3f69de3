package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/google/uuid"
)

const entityCategory = "CATEGORY"

func categoryPK(id string) string { return fmt.Sprintf("CATEGORY#%s", id) }

func categorySortKey(c *domain.Category) string {
	return strings.ToLower(c.Name) + "#" + c.ID
}

type CategoryRepository struct {
	store *Store
}

func NewCategoryRepository(store *Store) *CategoryRepository {
	return &CategoryRepository{store: store}
}

func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	c.ID = uuid.New().String()

	av, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("failed to marshal category: %w", err)
	}
	av[attrPK] = strVal(categoryPK(c.ID))
	av[attrSK] = strVal(skMetadata)
	av[attrGSI1PK] = strVal(entityCategory)
	av[attrGSI1SK] = strVal(categorySortKey(c))

	return r.store.do(ctx, "put category", func(ctx context.Context) error {
		_, err := r.store.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(r.store.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		return err
	})
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (*domain.Category, error) {
	item, err := r.store.getItem(ctx, "get category", categoryPK(id), skMetadata)
	if err != nil {
		return nil, err
	}
	var c domain.Category
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category: %w", err)
	}
	return &c, nil
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrGSI1PK).Equal(expression.Value(entityCategory))).
		Build()
	if err != nil {
		return nil, err
	}

	categories := []domain.Category{}
	err = r.store.queryPages(ctx, "list categories", &dynamodb.QueryInput{
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []domain.Category
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
		categories = append(categories, page...)
		return true, nil
	})
	return categories, err
}

// Update applies the non-nil fields of patch and returns the stored result.
func (r *CategoryRepository) Update(ctx context.Context, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	var update expression.UpdateBuilder
	changed := false
	set := func(name string, v *string) {
		if v != nil {
			update = update.Set(expression.Name(name), expression.Value(*v))
			changed = true
		}
	}
	set("name", patch.Name)
	set("icon", patch.Icon)
	set("color", patch.Color)
	if !changed {
		return r.Get(ctx, id)
	}
	if patch.Name != nil {
		update = update.Set(expression.Name(attrGSI1SK),
			expression.Value(categorySortKey(&domain.Category{ID: id, Name: *patch.Name})))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return nil, err
	}

	var out *dynamodb.UpdateItemOutput
	err = r.store.do(ctx, "update category", func(ctx context.Context) error {
		var err error
		out, err = r.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.store.tableName),
			Key:                       itemKey(categoryPK(id), skMetadata),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ReturnValues:              types.ReturnValueAllNew,
		})
		return err
	})
	if isConditionFailed(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var c domain.Category
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category: %w", err)
	}
	return &c, nil
}

// Delete removes the category unless products still reference it.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(attrPK)).
			And(expression.AttributeNotExists(expression.Name("productCount")).
				Or(expression.Name("productCount").LessThanEqual(expression.Value(0))))).
		Build()
	if err != nil {
		return err
	}

	err = r.store.do(ctx, "delete category", func(ctx context.Context) error {
		_, err := r.store.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                           aws.String(r.store.tableName),
			Key:                                 itemKey(categoryPK(id), skMetadata),
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		})
		return err
	})

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return err
	}
	if len(ccf.Item) == 0 {
		return domain.ErrNotFound.WithMessage("category %s was not found", id)
	}
	var c domain.Category
	if err := attributevalue.UnmarshalMap(ccf.Item, &c); err != nil {
		return fmt.Errorf("failed to unmarshal category: %w", err)
	}
	return domain.ErrCategoryInUse.WithMessage("category %s is referenced by %d products", id, c.ProductCount)
}

// countWrite adjusts the category's product count by delta inside a product
// transaction. The category must exist.
func countWrite(tableName, categoryID string, delta int) (types.TransactWriteItem, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("productCount"), expression.Value(delta))).
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(tableName),
		Key:                       itemKey(categoryPK(categoryID), skMetadata),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, nil
}
