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

const entityUser = "USER"

func userPK(id string) string { return fmt.Sprintf("USER#%s", id) }

func emailPK(email string) string { return "EMAIL#" + normalizeEmail(email) }

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// emailMarker reserves an email address for one user. It is written and
// removed in the same transaction as the user item.
type emailMarker struct {
	UserID string `dynamodbav:"userId"`
}

type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) userItem(u *domain.User) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	av[attrPK] = strVal(userPK(u.ID))
	av[attrSK] = strVal(skMetadata)
	av[attrGSI1PK] = strVal(entityUser)
	av[attrGSI1SK] = strVal(u.Email)
	return av, nil
}

func (r *UserRepository) markerPut(u *domain.User) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(emailMarker{UserID: u.ID})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal email marker: %w", err)
	}
	av[attrPK] = strVal(emailPK(u.Email))
	av[attrSK] = strVal(skUnique)
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           aws.String(r.store.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}}, nil
}

// Create stores a new user. The email is reserved atomically with the user;
// an email already in use yields domain.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.ID = uuid.New().String()
	u.Email = normalizeEmail(u.Email)

	item, err := r.userItem(u)
	if err != nil {
		return err
	}
	marker, err := r.markerPut(u)
	if err != nil {
		return err
	}

	err = r.store.transact(ctx, "create user", []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.store.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}},
		marker,
	})
	if reasons := cancellationReasons(err); len(reasons) == 2 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	item, err := r.store.getItem(ctx, "get user", userPK(id), skMetadata)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	item, err := r.store.getItem(ctx, "get email marker", emailPK(email), skUnique)
	if err != nil {
		return nil, err
	}
	var m emailMarker
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal email marker: %w", err)
	}
	return r.Get(ctx, m.UserID)
}

// List returns all users ordered by email.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrGSI1PK).Equal(expression.Value(entityUser))).
		Build()
	if err != nil {
		return nil, err
	}

	users := []domain.User{}
	err = r.store.queryPages(ctx, "list users", &dynamodb.QueryInput{
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, func(items []map[string]types.AttributeValue) (bool, error) {
		var page []domain.User
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return false, fmt.Errorf("failed to unmarshal users: %w", err)
		}
		users = append(users, page...)
		return true, nil
	})
	return users, err
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrGSI1PK).Equal(expression.Value(entityUser))).
		Build()
	if err != nil {
		return 0, err
	}
	return r.store.queryCount(ctx, "count users", &dynamodb.QueryInput{
		IndexName:                 aws.String(indexGSI1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

// Update replaces the stored user with u. previousEmail is the address the
// caller read; when it differs from u.Email the reservation moves with the
// write, and the write fails if the stored email changed in between.
func (r *UserRepository) Update(ctx context.Context, previousEmail string, u *domain.User) error {
	u.Email = normalizeEmail(u.Email)
	previousEmail = normalizeEmail(previousEmail)

	item, err := r.userItem(u)
	if err != nil {
		return err
	}
	cond, err := expression.NewBuilder().WithCondition(
		expression.AttributeExists(expression.Name(attrPK)).
			And(expression.Name("email").Equal(expression.Value(previousEmail))),
	).Build()
	if err != nil {
		return err
	}
	put := types.TransactWriteItem{Put: &types.Put{
		TableName:                 aws.String(r.store.tableName),
		Item:                      item,
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	}}

	writes := []types.TransactWriteItem{put}
	if previousEmail != u.Email {
		marker, err := r.markerPut(u)
		if err != nil {
			return err
		}
		writes = append(writes, marker, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(r.store.tableName),
			Key:       itemKey(emailPK(previousEmail), skUnique),
		}})
	}

	err = r.store.transact(ctx, "update user", writes)
	reasons := cancellationReasons(err)
	switch {
	case len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed":
		if _, getErr := r.Get(ctx, u.ID); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound.WithMessage("user %s was not found", u.ID)
		}
		return domain.ErrConflict.WithMessage("user %s was modified concurrently", u.ID)
	case len(reasons) > 1 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed":
		return domain.ErrEmailTaken
	}
	return err
}

// Delete removes the user and releases its email.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	u, err := r.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound.WithMessage("user %s was not found", id)
	}
	if err != nil {
		return err
	}

	err = r.store.transact(ctx, "delete user", []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           aws.String(r.store.tableName),
			Key:                 itemKey(userPK(id), skMetadata),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}},
		{Delete: &types.Delete{
			TableName: aws.String(r.store.tableName),
			Key:       itemKey(emailPK(u.Email), skUnique),
		}},
	})
	if reasons := cancellationReasons(err); len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
		return domain.ErrNotFound.WithMessage("user %s was not found", id)
	}
	return err
}
