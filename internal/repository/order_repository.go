package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	entityOrder  = "ORDER"
	skItemPrefix = "ITEM#"
)

func orderPK(id string) string { return fmt.Sprintf("ORDER#%s", id) }

func orderItemSK(item *domain.OrderItem) string {
	return fmt.Sprintf("%s%03d#%s", skItemPrefix, item.Position, item.ID)
}

// StockReservation is a stock decrement applied in the order transaction.
// Price is the unit price the order was priced at; the write fails if the
// product's price differs by the time the transaction runs.
type StockReservation struct {
	ProductID string
	Quantity  int
	Price     float64
}

type OrderRepository struct {
	store *Store
}

func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// CreateOrder writes the order, all of its items and the stock reservations
// as one transaction. Nothing is written if any product is missing, has too
// little stock, or was repriced.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order, items []domain.OrderItem, reservations []StockReservation) error {
	order.ID = uuid.New().String()
	order.DateOrdered = r.store.now().UTC()
	order.OrderItems = make([]string, 0, len(items))

	writes := make([]types.TransactWriteItem, 0, len(items)+len(reservations)+1)
	for i := range items {
		item := &items[i]
		item.ID = uuid.New().String()
		item.OrderID = order.ID
		item.Position = i
		order.OrderItems = append(order.OrderItems, item.ID)

		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal order item: %w", err)
		}
		av[attrPK] = strVal(orderPK(order.ID))
		av[attrSK] = strVal(orderItemSK(item))
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(r.store.tableName),
			Item:      av,
		}})
	}

	av, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	av[attrPK] = strVal(orderPK(order.ID))
	av[attrSK] = strVal(skMetadata)
	av[attrGSI1PK] = strVal(entityOrder)
	av[attrGSI1SK] = strVal(sortTime(order.DateOrdered) + "#" + order.ID)
	av[attrGSI2PK] = strVal(userPK(order.User))
	av[attrGSI2SK] = strVal("ORDER#" + sortTime(order.DateOrdered))
	writes = append(writes, types.TransactWriteItem{Put: &types.Put{
		TableName:           aws.String(r.store.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}})

	firstReservation := len(writes)
	for _, res := range reservations {
		expr, err := expression.NewBuilder().
			WithUpdate(expression.Set(expression.Name("countInStock"),
				expression.Name("countInStock").Minus(expression.Value(res.Quantity)))).
			WithCondition(expression.AttributeExists(expression.Name(attrPK)).
				And(expression.Name("countInStock").GreaterThanEqual(expression.Value(res.Quantity))).
				And(expression.Name("price").Equal(expression.Value(res.Price)))).
			Build()
		if err != nil {
			return err
		}
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                           aws.String(r.store.tableName),
			Key:                                 itemKey(productPK(res.ProductID), skMetadata),
			UpdateExpression:                    expr.Update(),
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}})
	}

	err = r.store.transact(ctx, "create order", writes)
	if err == nil {
		return nil
	}
	for i, reason := range cancellationReasons(err) {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" || i < firstReservation {
			continue
		}
		res := reservations[i-firstReservation]
		return reservationFailure(res, reason.Item)
	}
	return err
}

// reservationFailure explains why a stock condition failed from the product
// image DynamoDB returned with the cancellation.
func reservationFailure(res StockReservation, old map[string]types.AttributeValue) error {
	if len(old) == 0 {
		return domain.ErrInvalidProduct.WithMessage("product %s does not exist", res.ProductID)
	}
	var p domain.Product
	if err := attributevalue.UnmarshalMap(old, &p); err != nil {
		return fmt.Errorf("failed to unmarshal product: %w", err)
	}
	if p.Price != res.Price {
		return domain.ErrPriceChanged.WithMessage("price of product %s changed", res.ProductID)
	}
	return domain.ErrInsufficientStock.WithMessage("product %s has %d in stock, %d requested", res.ProductID, p.CountInStock, res.Quantity)
}

// GetOrder returns the order and its items in their original order.
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*domain.Order, []domain.OrderItem, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrPK).Equal(expression.Value(orderPK(id)))).
		Build()
	if err != nil {
		return nil, nil, err
	}

	var (
		order *domain.Order
		items []domain.OrderItem
	)
	err = r.store.queryPages(ctx, "get order", &dynamodb.QueryInput{
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}, func(page []map[string]types.AttributeValue) (bool, error) {
		for _, av := range page {
			sk, _ := av[attrSK].(*types.AttributeValueMemberS)
			if sk != nil && sk.Value == skMetadata {
				var o domain.Order
				if err := attributevalue.UnmarshalMap(av, &o); err != nil {
					return false, fmt.Errorf("failed to unmarshal order: %w", err)
				}
				order = &o
				continue
			}
			var item domain.OrderItem
			if err := attributevalue.UnmarshalMap(av, &item); err != nil {
				return false, fmt.Errorf("failed to unmarshal order item: %w", err)
			}
			items = append(items, item)
		}
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, domain.ErrNotFound.WithMessage("order %s was not found", id)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return order, items, nil
}

// ListOrders returns all orders, newest first.
func (r *OrderRepository) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return r.queryOrders(ctx, "list orders", indexGSI1,
		expression.Key(attrGSI1PK).Equal(expression.Value(entityOrder)))
}

// ListOrdersByUser returns the user's orders, newest first.
func (r *OrderRepository) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.queryOrders(ctx, "list user orders", indexGSI2,
		expression.Key(attrGSI2PK).Equal(expression.Value(userPK(userID))).
			And(expression.Key(attrGSI2SK).BeginsWith("ORDER#")))
}

func (r *OrderRepository) queryOrders(ctx context.Context, op, index string, key expression.KeyConditionBuilder) ([]domain.Order, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(key).Build()
	if err != nil {
		return nil, err
	}

	orders := []domain.Order{}
	err = r.store.queryPages(ctx, op, &dynamodb.QueryInput{
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []domain.Order
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal orders: %w", err)
		}
		orders = append(orders, page...)
		return true, nil
	})
	return orders, err
}

// StockRelease returns units reserved by an order to a product's stock.
type StockRelease struct {
	ProductID string
	Quantity  int
}

func (r *OrderRepository) releaseWrites(releases []StockRelease) ([]types.TransactWriteItem, error) {
	writes := make([]types.TransactWriteItem, 0, len(releases))
	for _, rel := range releases {
		expr, err := expression.NewBuilder().
			WithUpdate(expression.Set(expression.Name("countInStock"),
				expression.Name("countInStock").Plus(expression.Value(rel.Quantity)))).
			WithCondition(expression.AttributeExists(expression.Name(attrPK))).
			Build()
		if err != nil {
			return nil, err
		}
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(r.store.tableName),
			Key:                       itemKey(productPK(rel.ProductID), skMetadata),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}})
	}
	return writes, nil
}

// releaseFailure maps a cancelled transaction whose first action guards the
// order and whose remaining actions release stock.
func (r *OrderRepository) releaseFailure(ctx context.Context, id string, releases []StockRelease, err error) error {
	reasons := cancellationReasons(err)
	for i, reason := range reasons {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
			continue
		}
		if i == 0 {
			return r.orderConflict(ctx, id)
		}
		if i-1 < len(releases) {
			return domain.ErrConflict.WithMessage("product %s was removed while order %s was changed", releases[i-1].ProductID, id)
		}
	}
	return err
}

// orderConflict tells a vanished order apart from one whose status moved.
func (r *OrderRepository) orderConflict(ctx context.Context, id string) error {
	if _, err := r.store.getItem(ctx, "get order", orderPK(id), skMetadata); errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound.WithMessage("order %s was not found", id)
	}
	return domain.ErrConflict.WithMessage("order %s status changed concurrently", id)
}

// UpdateStatus moves the order from status from to status to and applies
// releases in the same transaction. It fails with domain.ErrConflict if the
// stored status is no longer from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, releases []StockRelease) (*domain.Order, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("status"), expression.Value(to))).
		WithCondition(expression.AttributeExists(expression.Name(attrPK)).
			And(expression.Name("status").Equal(expression.Value(from)))).
		Build()
	if err != nil {
		return nil, err
	}

	if len(releases) > 0 {
		return r.updateStatusReleasing(ctx, id, expr, releases)
	}

	var out *dynamodb.UpdateItemOutput
	err = r.store.do(ctx, "update order status", func(ctx context.Context) error {
		var err error
		out, err = r.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.store.tableName),
			Key:                       itemKey(orderPK(id), skMetadata),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ReturnValues:              types.ReturnValueAllNew,
		})
		return err
	})
	if isConditionFailed(err) {
		return nil, r.orderConflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	var o domain.Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) updateStatusReleasing(ctx context.Context, id string, expr expression.Expression, releases []StockRelease) (*domain.Order, error) {
	restock, err := r.releaseWrites(releases)
	if err != nil {
		return nil, err
	}
	writes := append([]types.TransactWriteItem{{Update: &types.Update{
		TableName:                 aws.String(r.store.tableName),
		Key:                       itemKey(orderPK(id), skMetadata),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}}, restock...)

	if err := r.store.transact(ctx, "update order status", writes); err != nil {
		return nil, r.releaseFailure(ctx, id, releases, err)
	}

	item, err := r.store.getItem(ctx, "get order", orderPK(id), skMetadata)
	if err != nil {
		return nil, err
	}
	var o domain.Order
	if err := attributevalue.UnmarshalMap(item, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, nil
}

// DeleteOrder removes the order together with every item it owns and applies
// releases in the same transaction. The delete only goes through while the
// order is still in the status it was read with.
func (r *OrderRepository) DeleteOrder(ctx context.Context, order *domain.Order, items []domain.OrderItem, releases []StockRelease) error {
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(attrPK)).
			And(expression.Name("status").Equal(expression.Value(order.Status)))).
		Build()
	if err != nil {
		return err
	}

	writes := []types.TransactWriteItem{{Delete: &types.Delete{
		TableName:                 aws.String(r.store.tableName),
		Key:                       itemKey(orderPK(order.ID), skMetadata),
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	}}}
	for i := range items {
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(r.store.tableName),
			Key:       itemKey(orderPK(order.ID), orderItemSK(&items[i])),
		}})
	}
	restock, err := r.releaseWrites(releases)
	if err != nil {
		return err
	}
	firstRelease := len(writes)
	writes = append(writes, restock...)

	err = r.store.transact(ctx, "delete order", writes)
	if err == nil {
		return nil
	}
	for i, reason := range cancellationReasons(err) {
		if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
			continue
		}
		if i == 0 {
			return r.orderConflict(ctx, order.ID)
		}
		if i >= firstRelease {
			return domain.ErrConflict.WithMessage("product %s was removed while order %s was deleted", releases[i-firstRelease].ProductID, order.ID)
		}
	}
	return err
}

func (r *OrderRepository) CountOrders(ctx context.Context) (int, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrGSI1PK).Equal(expression.Value(entityOrder))).
		Build()
	if err != nil {
		return 0, err
	}
	return r.store.queryCount(ctx, "count orders", &dynamodb.QueryInput{
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

// TotalSales sums totalPrice over all orders.
func (r *OrderRepository) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrGSI1PK).Equal(expression.Value(entityOrder))).
		WithProjection(expression.NamesList(expression.Name("totalPrice"))).
		Build()
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	err = r.store.queryPages(ctx, "total sales", &dynamodb.QueryInput{
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, func(items []map[string]types.AttributeValue) (bool, error) {
		for _, av := range items {
			n, ok := av["totalPrice"].(*types.AttributeValueMemberN)
			if !ok {
				continue
			}
			v, err := decimal.NewFromString(strings.TrimSpace(n.Value))
			if err != nil {
				return false, fmt.Errorf("invalid totalPrice %q: %w", n.Value, err)
			}
			total = total.Add(v)
		}
		return true, nil
	})
	return total, err
}
