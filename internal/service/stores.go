package service

import (
	"context"
	"mime/multipart"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/events"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/repository"
	"github.com/shopspring/decimal"
)

// The services depend on these narrow views of the repositories so they can
// be exercised against in-memory fakes.

type CategoryStore interface {
	Create(ctx context.Context, c *domain.Category) error
	Get(ctx context.Context, id string) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	Update(ctx context.Context, id string, patch domain.CategoryPatch) (*domain.Category, error)
	Delete(ctx context.Context, id string) error
}

type ProductStore interface {
	Create(ctx context.Context, p *domain.Product) error
	Get(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, categories []string) ([]domain.Product, error)
	ListFeatured(ctx context.Context, limit int) ([]domain.Product, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	SetImages(ctx context.Context, id string, images []string) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, previousEmail string, u *domain.User) error
	Delete(ctx context.Context, id string) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order, items []domain.OrderItem, reservations []repository.StockReservation) error
	GetOrder(ctx context.Context, id string) (*domain.Order, []domain.OrderItem, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, releases []repository.StockRelease) (*domain.Order, error)
	DeleteOrder(ctx context.Context, order *domain.Order, items []domain.OrderItem, releases []repository.StockRelease) error
	CountOrders(ctx context.Context) (int, error)
	TotalSales(ctx context.Context) (decimal.Decimal, error)
}

type ImageStore interface {
	Save(fh *multipart.FileHeader) (string, error)
	SaveAll(files []*multipart.FileHeader) ([]string, error)
	Remove(names ...string)
}

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event events.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event events.OrderStatusChangedEvent) error
	PublishOrderDeleted(ctx context.Context, event events.OrderDeletedEvent) error
}

var (
	_ CategoryStore  = (*repository.CategoryRepository)(nil)
	_ ProductStore   = (*repository.ProductRepository)(nil)
	_ UserStore      = (*repository.UserRepository)(nil)
	_ OrderStore     = (*repository.OrderRepository)(nil)
	_ EventPublisher = (*events.KafkaProducer)(nil)
	_ EventPublisher = events.NopProducer{}
)
