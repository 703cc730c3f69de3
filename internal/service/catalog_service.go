package service

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/upload"
	"go.uber.org/zap"
)

var _ ImageStore = (*upload.Storage)(nil)

type CatalogService struct {
	categories CategoryStore
	products   ProductStore
	images     ImageStore
	logger     *zap.Logger
}

func NewCatalogService(categories CategoryStore, products ProductStore, images ImageStore, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		categories: categories,
		products:   products,
		images:     images,
		logger:     logger,
	}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the category with the given ID was not found")
	}
	return s.categories.Get(ctx, id)
}

func (s *CatalogService) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (*domain.Category, error) {
	c := &domain.Category{Name: req.Name, Icon: req.Icon, Color: req.Color}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("Category created", zap.String("category_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id string, patch domain.CategoryPatch) (*domain.Category, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the category cannot be updated")
	}
	return s.categories.Update(ctx, id, patch)
}

// DeleteCategory refuses to remove a category that products still reference.
func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	if !domain.ValidID(id) {
		return domain.ErrNotFound.WithMessage("the category was not found")
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Category deleted", zap.String("category_id", id))
	return nil
}

// resolveCategory maps a missing or malformed category reference to
// domain.ErrInvalidCategory.
func (s *CatalogService) resolveCategory(ctx context.Context, id string) (*domain.Category, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrInvalidCategory
	}
	c, err := s.categories.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCategory
	}
	return c, err
}

// CreateProduct stores the image and then the product. The image URL is
// built from baseURL.
func (s *CatalogService) CreateProduct(ctx context.Context, req domain.CreateProductRequest, image *multipart.FileHeader, baseURL string) (*domain.Product, error) {
	if _, err := s.resolveCategory(ctx, req.Category); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, domain.ErrMissingImage
	}

	name, err := s.images.Save(image)
	if err != nil {
		return nil, err
	}

	p := &domain.Product{
		Name:            req.Name,
		Description:     req.Description,
		RichDescription: req.RichDescription,
		Image:           upload.URL(baseURL, name),
		Brand:           req.Brand,
		Price:           req.Price,
		Category:        req.Category,
		CountInStock:    req.CountInStock,
		Rating:          req.Rating,
		NumReviews:      req.NumReviews,
		IsFeatured:      req.IsFeatured,
	}
	if err := s.products.Create(ctx, p); err != nil {
		s.images.Remove(name)
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", p.ID),
		zap.String("category_id", p.Category),
		zap.String("image", name))
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrInvalidProductID
	}
	if patch.Category != nil {
		if _, err := s.resolveCategory(ctx, *patch.Category); err != nil {
			return nil, err
		}
	}
	return s.products.Update(ctx, id, patch)
}

// GetProduct returns the product with its category populated.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.ProductDetails, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the product was not found")
	}
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &domain.ProductDetails{Product: *p}
	c, err := s.categories.Get(ctx, p.Category)
	switch {
	case err == nil:
		details.Category = c
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return details, nil
}

// ListProducts returns products in any of the given categories, or all
// products when categories is empty.
func (s *CatalogService) ListProducts(ctx context.Context, categories []string) ([]domain.Product, error) {
	return s.products.List(ctx, categories)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if !domain.ValidID(id) {
		return domain.ErrNotFound.WithMessage("the product was not found")
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}

func (s *CatalogService) CountProducts(ctx context.Context) (int, error) {
	return s.products.Count(ctx)
}

// ListFeatured returns at most limit featured products. A limit of zero
// yields no products.
func (s *CatalogService) ListFeatured(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit < 0 {
		return nil, domain.ErrInvalidRequest.WithMessage("count must not be negative")
	}
	if limit == 0 {
		return []domain.Product{}, nil
	}
	return s.products.ListFeatured(ctx, limit)
}

// ReplaceGalleryImages stores files and replaces the product gallery with
// their URLs. Stored files are removed again if the product update fails.
func (s *CatalogService) ReplaceGalleryImages(ctx context.Context, id string, files []*multipart.FileHeader, baseURL string) (*domain.Product, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrInvalidProductID
	}
	if len(files) > domain.MaxGalleryImages {
		return nil, domain.ErrTooManyImages.WithMessage("at most %d images are accepted", domain.MaxGalleryImages)
	}
	if _, err := s.products.Get(ctx, id); err != nil {
		return nil, err
	}

	names, err := s.images.SaveAll(files)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(names))
	for _, name := range names {
		urls = append(urls, upload.URL(baseURL, name))
	}

	p, err := s.products.SetImages(ctx, id, urls)
	if err != nil {
		s.images.Remove(names...)
		return nil, err
	}

	s.logger.Info("Product gallery replaced", zap.String("product_id", id), zap.Int("images", len(urls)))
	return p, nil
}
