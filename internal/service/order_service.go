package service

import (
	"context"
	"errors"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/events"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService struct {
	orders   OrderStore
	products ProductStore
	users    UserStore
	producer EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrderService(orders OrderStore, products ProductStore, users UserStore, producer EventPublisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		products: products,
		users:    users,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateOrder prices every line from the current product price and writes
// the order, its items and the stock decrements in one transaction. If any
// product does not resolve nothing is written.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest, requestID string) (*domain.Order, error) {
	if len(req.OrderItems) == 0 {
		return nil, domain.ErrInvalidRequest.WithMessage("an order needs at least one item")
	}
	if len(req.OrderItems) > domain.MaxOrderLines {
		return nil, domain.ErrInvalidRequest.WithMessage("an order holds at most %d items", domain.MaxOrderLines)
	}
	if err := s.resolveUser(ctx, req.User); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(req.OrderItems))
	reservations := make([]repository.StockReservation, 0, len(req.OrderItems))
	reserved := make(map[string]int, len(req.OrderItems))
	total := decimal.Zero

	for _, line := range req.OrderItems {
		if line.Quantity <= 0 {
			return nil, domain.ErrInvalidRequest.WithMessage("quantity of product %s must be positive", line.Product)
		}
		p, err := s.resolveProduct(ctx, line.Product)
		if err != nil {
			return nil, err
		}

		total = total.Add(decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, domain.OrderItem{
			Product:   p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		})

		// One stock update per product; repeated lines add up.
		if i, ok := reserved[p.ID]; ok {
			reservations[i].Quantity += line.Quantity
			continue
		}
		reserved[p.ID] = len(reservations)
		reservations = append(reservations, repository.StockReservation{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Price:     p.Price,
		})
	}

	order := &domain.Order{
		ShippingAddress1: req.ShippingAddress1,
		ShippingAddress2: req.ShippingAddress2,
		City:             req.City,
		Zip:              req.Zip,
		Country:          req.Country,
		Phone:            req.Phone,
		Status:           domain.OrderStatusPending,
		TotalPrice:       total.InexactFloat64(),
		User:             req.User,
	}

	if err := s.orders.CreateOrder(ctx, order, items, reservations); err != nil {
		s.logger.Error("Failed to save order",
			zap.String("user_id", req.User),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}

	event := events.OrderCreatedEvent{
		EventID:    uuid.New().String(),
		OrderID:    order.ID,
		UserID:     order.User,
		TotalPrice: order.TotalPrice,
		Items:      items,
		Status:     string(order.Status),
		Timestamp:  s.now(),
		RequestID:  requestID,
	}
	if err := s.producer.PublishOrderCreated(ctx, event); err != nil {
		// The order is committed; a lost event is only logged.
		s.logger.Error("Failed to publish event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.logger.Info("Order created successfully",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.User),
		zap.Float64("total_price", order.TotalPrice))

	return order, nil
}

func (s *OrderService) resolveProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrInvalidProduct.WithMessage("product %q is not a valid id", id)
	}
	p, err := s.products.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidProduct.WithMessage("product %s does not exist", id)
	}
	return p, err
}

func (s *OrderService) resolveUser(ctx context.Context, id string) error {
	if !domain.ValidID(id) {
		return domain.ErrInvalidRequest.WithMessage("order user is missing or malformed")
	}
	_, err := s.users.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidRequest.WithMessage("user %s does not exist", id)
	}
	return err
}

// releasesFor sums the units the order took per product. Nothing is released
// for an order that no longer holds stock, or for products that were deleted.
func (s *OrderService) releasesFor(ctx context.Context, order *domain.Order, items []domain.OrderItem) ([]repository.StockRelease, error) {
	if !order.Status.HoldsStock() {
		return nil, nil
	}
	var releases []repository.StockRelease
	index := make(map[string]int, len(items))
	for _, item := range items {
		if i, ok := index[item.Product]; ok {
			releases[i].Quantity += item.Quantity
			continue
		}
		index[item.Product] = len(releases)
		releases = append(releases, repository.StockRelease{ProductID: item.Product, Quantity: item.Quantity})
	}

	kept := releases[:0]
	for _, rel := range releases {
		_, err := s.products.Get(ctx, rel.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		kept = append(kept, rel)
	}
	return kept, nil
}

// GetOrder returns the order with each item's product and the user's name
// populated. Deleted products and users are left nil.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.OrderDetails, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the order was not found")
	}
	order, items, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &domain.OrderDetails{
		Order:      *order,
		OrderItems: make([]domain.OrderItemDetails, 0, len(items)),
	}
	products := make(map[string]*domain.Product)
	for _, item := range items {
		p, ok := products[item.Product]
		if !ok {
			p, err = s.products.Get(ctx, item.Product)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			products[item.Product] = p
		}
		details.OrderItems = append(details.OrderItems, domain.OrderItemDetails{OrderItem: item, Product: p})
	}

	details.User, err = newUserLookup(s.users).summary(ctx, order.User)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// ListOrders returns every order newest first with user names populated.
func (s *OrderService) ListOrders(ctx context.Context) ([]domain.OrderSummary, error) {
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	lookup := newUserLookup(s.users)
	out := make([]domain.OrderSummary, 0, len(orders))
	for _, o := range orders {
		u, err := lookup.summary(ctx, o.User)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.OrderSummary{Order: o, User: u})
	}
	return out, nil
}

// ListOrdersForUser returns the user's orders newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if !domain.ValidID(userID) {
		return []domain.Order{}, nil
	}
	return s.orders.ListOrdersByUser(ctx, userID)
}

// UpdateStatus moves the order to status if the transition table allows it.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, requestID string) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatusTransition.WithMessage("unknown order status %q", status)
	}
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the order was not found")
	}
	current, items, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, domain.ErrInvalidStatusTransition.WithMessage("order cannot move from %s to %s", current.Status, status)
	}

	var releases []repository.StockRelease
	if !status.HoldsStock() {
		releases, err = s.releasesFor(ctx, current, items)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, current.Status, status, releases)
	if err != nil {
		return nil, err
	}

	event := events.OrderStatusChangedEvent{
		EventID:   uuid.New().String(),
		OrderID:   id,
		From:      string(current.Status),
		To:        string(status),
		Timestamp: s.now(),
		RequestID: requestID,
	}
	if err := s.producer.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", zap.String("order_id", id), zap.Error(err))
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(status)),
		zap.Int("restocked_products", len(releases)))
	return updated, nil
}

// DeleteOrder removes the order together with its items. Stock the order
// still holds goes back to its products.
func (s *OrderService) DeleteOrder(ctx context.Context, id, requestID string) error {
	if !domain.ValidID(id) {
		return domain.ErrNotFound.WithMessage("the order was not found")
	}
	order, items, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	releases, err := s.releasesFor(ctx, order, items)
	if err != nil {
		return err
	}
	if err := s.orders.DeleteOrder(ctx, order, items, releases); err != nil {
		return err
	}

	event := events.OrderDeletedEvent{
		EventID:   uuid.New().String(),
		OrderID:   id,
		Timestamp: s.now(),
		RequestID: requestID,
	}
	if err := s.producer.PublishOrderDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", zap.String("order_id", id), zap.Error(err))
	}

	s.logger.Info("Order deleted", zap.String("order_id", id), zap.Int("restocked_products", len(releases)))
	return nil
}

func (s *OrderService) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	return s.orders.TotalSales(ctx)
}

func (s *OrderService) CountOrders(ctx context.Context) (int, error) {
	return s.orders.CountOrders(ctx)
}

// userLookup resolves user summaries once per id within one call.
type userLookup struct {
	users UserStore
	seen  map[string]*domain.UserSummary
}

func newUserLookup(users UserStore) *userLookup {
	return &userLookup{users: users, seen: make(map[string]*domain.UserSummary)}
}

func (l *userLookup) summary(ctx context.Context, id string) (*domain.UserSummary, error) {
	if s, ok := l.seen[id]; ok {
		return s, nil
	}
	var summary *domain.UserSummary
	u, err := l.users.Get(ctx, id)
	switch {
	case err == nil:
		summary = &domain.UserSummary{ID: u.ID, Name: u.Name}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	l.seen[id] = summary
	return summary, nil
}
