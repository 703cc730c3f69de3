package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CatalogService interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, patch domain.CategoryPatch) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, req domain.CreateProductRequest, image *multipart.FileHeader, baseURL string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.ProductDetails, error)
	ListProducts(ctx context.Context, categories []string) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CountProducts(ctx context.Context) (int, error)
	ListFeatured(ctx context.Context, limit int) ([]domain.Product, error)
	ReplaceGalleryImages(ctx context.Context, id string, files []*multipart.FileHeader, baseURL string) (*domain.Product, error)
}

var _ CatalogService = (*service.CatalogService)(nil)

type CatalogHandler struct {
	catalog       CatalogService
	publicBaseURL string
	logger        *zap.Logger
}

func NewCatalogHandler(catalog CatalogService, publicBaseURL string, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:       catalog,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// baseURL is the configured public URL, or the one the client used.
func (h *CatalogHandler) baseURL(c *gin.Context) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CatalogHandler) GetCategory(c *gin.Context) {
	category, err := h.catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req domain.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	var patch domain.CategoryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	category, err := h.catalog.UpdateCategory(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	deleted(c, "category")
}

// ListProducts accepts an optional comma-separated categories filter.
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	var categories []string
	for _, id := range strings.Split(c.Query("categories"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			categories = append(categories, id)
		}
	}
	products, err := h.catalog.ListProducts(c.Request.Context(), categories)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// CreateProduct reads a multipart form with the product fields and an
// "image" file part.
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req domain.CreateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	image, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		image = nil
	} else if err != nil {
		respondError(c, h.logger, domain.ErrInvalidRequest.WithMessage("malformed multipart form: %v", err))
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req, image, h.baseURL(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	var patch domain.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	deleted(c, "product")
}

func (h *CatalogHandler) CountProducts(c *gin.Context) {
	n, err := h.catalog.CountProducts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productCount": n})
}

func (h *CatalogHandler) ListFeatured(c *gin.Context) {
	limit, err := strconv.Atoi(c.Param("count"))
	if err != nil {
		respondError(c, h.logger, domain.ErrInvalidRequest.WithMessage("count must be an integer"))
		return
	}
	products, err := h.catalog.ListFeatured(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// ReplaceGalleryImages reads up to ten "images" file parts.
func (h *CatalogHandler) ReplaceGalleryImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, h.logger, domain.ErrInvalidRequest.WithMessage("malformed multipart form: %v", err))
		return
	}
	product, err := h.catalog.ReplaceGalleryImages(c.Request.Context(), c.Param("id"), form.File["images"], h.baseURL(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
