package service

import (
	"context"
	"errors"
	"mime/multipart"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/events"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeCategories refuses to delete a category that products in the linked
// fakeProducts still reference.
type fakeCategories struct {
	byID     map[string]domain.Category
	products *fakeProducts
}

func newFakeCategories() *fakeCategories {
	return &fakeCategories{byID: make(map[string]domain.Category)}
}

func (f *fakeCategories) Create(_ context.Context, c *domain.Category) error {
	c.ID = uuid.New().String()
	f.byID[c.ID] = *c
	return nil
}

func (f *fakeCategories) Get(_ context.Context, id string) (*domain.Category, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCategories) List(context.Context) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(f.byID))
	for _, c := range f.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCategories) Update(_ context.Context, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	setIf(&c.Name, patch.Name)
	setIf(&c.Icon, patch.Icon)
	setIf(&c.Color, patch.Color)
	f.byID[id] = c
	return &c, nil
}

func (f *fakeCategories) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return domain.ErrNotFound
	}
	if f.products != nil && f.products.countByCategory(id) > 0 {
		return domain.ErrCategoryInUse
	}
	delete(f.byID, id)
	return nil
}

type fakeProducts struct {
	mu        sync.Mutex
	byID      map[string]domain.Product
	createErr error
	imagesErr error
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{byID: make(map[string]domain.Product)}
}

func (f *fakeProducts) Create(_ context.Context, p *domain.Product) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New().String()
	p.DateCreated = time.Now().UTC()
	if p.Images == nil {
		p.Images = []string{}
	}
	f.byID[p.ID] = *p
	return nil
}

func (f *fakeProducts) Get(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProducts) List(_ context.Context, categories []string) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Product
	for _, p := range f.byID {
		if len(categories) == 0 || contains(categories, p.Category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (f *fakeProducts) ListFeatured(_ context.Context, limit int) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Product{}
	for _, p := range f.byID {
		if len(out) == limit {
			break
		}
		if p.IsFeatured {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func (f *fakeProducts) countByCategory(categoryID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.byID {
		if p.Category == categoryID {
			n++
		}
	}
	return n
}

func (f *fakeProducts) Update(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	setIf(&p.Name, patch.Name)
	setIf(&p.Description, patch.Description)
	setIf(&p.RichDescription, patch.RichDescription)
	setIf(&p.Image, patch.Image)
	setIf(&p.Brand, patch.Brand)
	setIf(&p.Price, patch.Price)
	setIf(&p.Category, patch.Category)
	setIf(&p.CountInStock, patch.CountInStock)
	setIf(&p.Rating, patch.Rating)
	setIf(&p.NumReviews, patch.NumReviews)
	setIf(&p.IsFeatured, patch.IsFeatured)
	f.byID[id] = p
	return &p, nil
}

func (f *fakeProducts) SetImages(_ context.Context, id string, images []string) (*domain.Product, error) {
	if f.imagesErr != nil {
		return nil, f.imagesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Images = images
	f.byID[id] = p
	return &p, nil
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

// put stores p as-is and returns its id.
func (f *fakeProducts) put(p domain.Product) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	f.byID[p.ID] = p
	return p.ID
}

type fakeUsers struct {
	byID          map[string]domain.User
	lastPrevEmail string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]domain.User)}
}

func (f *fakeUsers) Create(_ context.Context, u *domain.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return domain.ErrEmailTaken
		}
	}
	u.ID = uuid.New().String()
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUsers) List(context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) Count(context.Context) (int, error) { return len(f.byID), nil }

func (f *fakeUsers) Update(_ context.Context, previousEmail string, u *domain.User) error {
	f.lastPrevEmail = previousEmail
	if _, ok := f.byID[u.ID]; !ok {
		return domain.ErrNotFound
	}
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

// fakeOrders applies the same stock conditions the DynamoDB transaction does,
// against the shared fakeProducts.
type fakeOrders struct {
	products *fakeProducts
	orders   map[string]domain.Order
	items    map[string][]domain.OrderItem
	seq      int
}

func newFakeOrders(products *fakeProducts) *fakeOrders {
	return &fakeOrders{
		products: products,
		orders:   make(map[string]domain.Order),
		items:    make(map[string][]domain.OrderItem),
	}
}

func (f *fakeOrders) CreateOrder(_ context.Context, order *domain.Order, items []domain.OrderItem, reservations []repository.StockReservation) error {
	f.products.mu.Lock()
	defer f.products.mu.Unlock()

	for _, res := range reservations {
		p, ok := f.products.byID[res.ProductID]
		switch {
		case !ok:
			return domain.ErrInvalidProduct
		case p.Price != res.Price:
			return domain.ErrPriceChanged
		case p.CountInStock < res.Quantity:
			return domain.ErrInsufficientStock
		}
	}
	for _, res := range reservations {
		p := f.products.byID[res.ProductID]
		p.CountInStock -= res.Quantity
		f.products.byID[res.ProductID] = p
	}

	f.seq++
	order.ID = uuid.New().String()
	order.DateOrdered = time.Date(2024, 5, 1, 12, 0, f.seq, 0, time.UTC)
	order.OrderItems = make([]string, 0, len(items))
	for i := range items {
		items[i].ID = uuid.New().String()
		items[i].OrderID = order.ID
		items[i].Position = i
		order.OrderItems = append(order.OrderItems, items[i].ID)
	}
	f.orders[order.ID] = *order
	f.items[order.ID] = append([]domain.OrderItem(nil), items...)
	return nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (*domain.Order, []domain.OrderItem, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return &o, f.items[id], nil
}

func (f *fakeOrders) sorted(keep func(domain.Order) bool) []domain.Order {
	out := []domain.Order{}
	for _, o := range f.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateOrdered.After(out[j].DateOrdered) })
	return out
}

func (f *fakeOrders) ListOrders(context.Context) ([]domain.Order, error) {
	return f.sorted(func(domain.Order) bool { return true }), nil
}

func (f *fakeOrders) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	return f.sorted(func(o domain.Order) bool { return o.User == userID }), nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus, releases []repository.StockRelease) (*domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status != from {
		return nil, domain.ErrConflict
	}
	if err := f.release(releases); err != nil {
		return nil, err
	}
	o.Status = to
	f.orders[id] = o
	return &o, nil
}

func (f *fakeOrders) DeleteOrder(_ context.Context, order *domain.Order, _ []domain.OrderItem, releases []repository.StockRelease) error {
	o, ok := f.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != order.Status {
		return domain.ErrConflict
	}
	if err := f.release(releases); err != nil {
		return err
	}
	delete(f.orders, order.ID)
	delete(f.items, order.ID)
	return nil
}

// release adds the units back, failing without changes if a product is gone.
func (f *fakeOrders) release(releases []repository.StockRelease) error {
	f.products.mu.Lock()
	defer f.products.mu.Unlock()
	for _, rel := range releases {
		if _, ok := f.products.byID[rel.ProductID]; !ok {
			return domain.ErrConflict
		}
	}
	for _, rel := range releases {
		p := f.products.byID[rel.ProductID]
		p.CountInStock += rel.Quantity
		f.products.byID[rel.ProductID] = p
	}
	return nil
}

func (f *fakeOrders) CountOrders(context.Context) (int, error) { return len(f.orders), nil }

func (f *fakeOrders) TotalSales(context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, o := range f.orders {
		total = total.Add(decimal.NewFromFloat(o.TotalPrice))
	}
	return total, nil
}

func (f *fakeOrders) itemCount() int {
	n := 0
	for _, items := range f.items {
		n += len(items)
	}
	return n
}

type fakeImages struct {
	saved   []string
	removed []string
	saveErr error
}

func (f *fakeImages) Save(fh *multipart.FileHeader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	name := fh.Filename + "-1700000000000.png"
	f.saved = append(f.saved, name)
	return name, nil
}

func (f *fakeImages) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	names := make([]string, 0, len(files))
	for _, fh := range files {
		name, err := f.Save(fh)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeImages) Remove(names ...string) {
	f.removed = append(f.removed, names...)
}

type fakePublisher struct {
	created []events.OrderCreatedEvent
	changed []events.OrderStatusChangedEvent
	deleted []events.OrderDeletedEvent
	err     error
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, e events.OrderCreatedEvent) error {
	f.created = append(f.created, e)
	return f.err
}

func (f *fakePublisher) PublishOrderStatusChanged(_ context.Context, e events.OrderStatusChangedEvent) error {
	f.changed = append(f.changed, e)
	return f.err
}

func (f *fakePublisher) PublishOrderDeleted(_ context.Context, e events.OrderDeletedEvent) error {
	f.deleted = append(f.deleted, e)
	return f.err
}

var errStore = errors.New("store down")
