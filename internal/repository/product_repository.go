package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/google/uuid"
)

const entityProduct = "PRODUCT"

func productPK(id string) string { return fmt.Sprintf("PRODUCT#%s", id) }

type ProductRepository struct {
	store *Store
}

func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

// Create writes the product and counts it against its category in one
// transaction. It fails with domain.ErrInvalidCategory if the category is gone.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	p.DateCreated = r.store.now().UTC()
	if p.Images == nil {
		p.Images = []string{}
	}

	av, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	av[attrPK] = strVal(productPK(p.ID))
	av[attrSK] = strVal(skMetadata)
	av[attrGSI1PK] = strVal(entityProduct)
	av[attrGSI1SK] = strVal(sortTime(p.DateCreated) + "#" + p.ID)
	av[attrGSI2PK] = strVal(categoryPK(p.Category))
	av[attrGSI2SK] = strVal(productPK(p.ID))

	count, err := countWrite(r.store.tableName, p.Category, 1)
	if err != nil {
		return err
	}
	err = r.store.transact(ctx, "put product", []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.store.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}},
		count,
	})
	if failedAt(err, 1) {
		return domain.ErrInvalidCategory.WithMessage("category %s does not exist", p.Category)
	}
	return err
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	item, err := r.store.getItem(ctx, "get product", productPK(id), skMetadata)
	if err != nil {
		return nil, err
	}
	var p domain.Product
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &p, nil
}

// List returns products oldest first. A non-empty categories filter matches
// products in any of the given categories.
func (r *ProductRepository) List(ctx context.Context, categories []string) ([]domain.Product, error) {
	if len(categories) == 0 {
		return r.queryProducts(ctx, "list products", expression.Key(attrGSI1PK).Equal(expression.Value(entityProduct)), indexGSI1, nil, 0)
	}

	seen := make(map[string]bool, len(categories))
	products := []domain.Product{}
	for _, c := range categories {
		if seen[c] {
			continue
		}
		seen[c] = true
		page, err := r.queryProducts(ctx, "list products by category",
			expression.Key(attrGSI2PK).Equal(expression.Value(categoryPK(c))), indexGSI2, nil, 0)
		if err != nil {
			return nil, err
		}
		products = append(products, page...)
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].DateCreated.Before(products[j].DateCreated)
	})
	return products, nil
}

// ListFeatured returns at most limit featured products.
func (r *ProductRepository) ListFeatured(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		return []domain.Product{}, nil
	}
	filter := expression.Name("isFeatured").Equal(expression.Value(true))
	return r.queryProducts(ctx, "list featured products",
		expression.Key(attrGSI1PK).Equal(expression.Value(entityProduct)), indexGSI1, &filter, limit)
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrGSI1PK).Equal(expression.Value(entityProduct))).
		Build()
	if err != nil {
		return 0, err
	}
	return r.store.queryCount(ctx, "count products", &dynamodb.QueryInput{
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

func (r *ProductRepository) queryProducts(ctx context.Context, op string, key expression.KeyConditionBuilder, index string, filter *expression.ConditionBuilder, limit int) ([]domain.Product, error) {
	b := expression.NewBuilder().WithKeyCondition(key)
	if filter != nil {
		b = b.WithFilter(*filter)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, err
	}

	products := []domain.Product{}
	err = r.store.queryPages(ctx, op, &dynamodb.QueryInput{
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []domain.Product
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal products: %w", err)
		}
		for _, p := range page {
			products = append(products, p)
			if limit > 0 && len(products) == limit {
				return false, nil
			}
		}
		return true, nil
	})
	return products, err
}

// Update applies the non-nil fields of patch. A changed category also moves
// the product in the by-category index.
func (r *ProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.Empty() {
		return r.Get(ctx, id)
	}

	var update expression.UpdateBuilder
	setIf := func(name string, ok bool, v any) {
		if ok {
			update = update.Set(expression.Name(name), expression.Value(v))
		}
	}
	setIf("name", patch.Name != nil, deref(patch.Name))
	setIf("description", patch.Description != nil, deref(patch.Description))
	setIf("richDescription", patch.RichDescription != nil, deref(patch.RichDescription))
	setIf("image", patch.Image != nil, deref(patch.Image))
	setIf("brand", patch.Brand != nil, deref(patch.Brand))
	setIf("price", patch.Price != nil, deref(patch.Price))
	setIf("countInStock", patch.CountInStock != nil, deref(patch.CountInStock))
	setIf("rating", patch.Rating != nil, deref(patch.Rating))
	setIf("numReviews", patch.NumReviews != nil, deref(patch.NumReviews))
	setIf("isFeatured", patch.IsFeatured != nil, deref(patch.IsFeatured))
	if patch.Category != nil {
		update = update.Set(expression.Name("category"), expression.Value(*patch.Category))
		update = update.Set(expression.Name(attrGSI2PK), expression.Value(categoryPK(*patch.Category)))
		return r.moveCategory(ctx, id, *patch.Category, update)
	}

	return r.update(ctx, "update product", id, update)
}

// moveCategory applies update and moves the product's count from its current
// category to next in one transaction.
func (r *ProductRepository) moveCategory(ctx context.Context, id, next string, update expression.UpdateBuilder) (*domain.Product, error) {
	current, err := r.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound.WithMessage("product %s was not found", id)
	}
	if err != nil {
		return nil, err
	}
	if current.Category == next {
		return r.update(ctx, "update product", id, update)
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(attrPK)).
			And(expression.Name("category").Equal(expression.Value(current.Category)))).
		Build()
	if err != nil {
		return nil, err
	}
	inc, err := countWrite(r.store.tableName, next, 1)
	if err != nil {
		return nil, err
	}
	writes := []types.TransactWriteItem{{Update: &types.Update{
		TableName:                 aws.String(r.store.tableName),
		Key:                       itemKey(productPK(id), skMetadata),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, inc}
	dec, err := r.decrementIfPresent(ctx, current.Category)
	if err != nil {
		return nil, err
	}
	writes = append(writes, dec...)

	err = r.store.transact(ctx, "move product category", writes)
	switch {
	case failedAt(err, 0):
		return nil, domain.ErrConflict.WithMessage("product %s changed concurrently", id)
	case failedAt(err, 1):
		return nil, domain.ErrInvalidCategory.WithMessage("category %s does not exist", next)
	case err != nil:
		return nil, err
	}
	return r.Get(ctx, id)
}

// decrementIfPresent returns the count decrement for categoryID, or nothing
// when the category no longer exists.
func (r *ProductRepository) decrementIfPresent(ctx context.Context, categoryID string) ([]types.TransactWriteItem, error) {
	_, err := r.store.getItem(ctx, "get category", categoryPK(categoryID), skMetadata)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dec, err := countWrite(r.store.tableName, categoryID, -1)
	if err != nil {
		return nil, err
	}
	return []types.TransactWriteItem{dec}, nil
}

// SetImages replaces the product gallery.
func (r *ProductRepository) SetImages(ctx context.Context, id string, images []string) (*domain.Product, error) {
	if images == nil {
		images = []string{}
	}
	update := expression.Set(expression.Name("images"), expression.Value(images))
	return r.update(ctx, "set product images", id, update)
}

func (r *ProductRepository) update(ctx context.Context, op, id string, update expression.UpdateBuilder) (*domain.Product, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(attrPK))).
		Build()
	if err != nil {
		return nil, err
	}

	var out *dynamodb.UpdateItemOutput
	err = r.store.do(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = r.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.store.tableName),
			Key:                       itemKey(productPK(id), skMetadata),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ReturnValues:              types.ReturnValueAllNew,
		})
		return err
	})
	if isConditionFailed(err) {
		return nil, domain.ErrNotFound.WithMessage("product %s was not found", id)
	}
	if err != nil {
		return nil, err
	}

	var p domain.Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &p, nil
}

// Delete removes the product and releases its hold on its category.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	current, err := r.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound.WithMessage("product %s was not found", id)
	}
	if err != nil {
		return err
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(attrPK)).
			And(expression.Name("category").Equal(expression.Value(current.Category)))).
		Build()
	if err != nil {
		return err
	}
	writes := []types.TransactWriteItem{{Delete: &types.Delete{
		TableName:                 aws.String(r.store.tableName),
		Key:                       itemKey(productPK(id), skMetadata),
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	}}}
	dec, err := r.decrementIfPresent(ctx, current.Category)
	if err != nil {
		return err
	}
	writes = append(writes, dec...)

	err = r.store.transact(ctx, "delete product", writes)
	if failedAt(err, 0) {
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound.WithMessage("product %s was not found", id)
		}
		return domain.ErrConflict.WithMessage("product %s changed concurrently", id)
	}
	return err
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
