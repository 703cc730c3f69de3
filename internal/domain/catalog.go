package domain

import (
	"time"

	"github.com/google/uuid"
)

// ValidID reports whether id is a well-formed store identifier.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Category is a product grouping. ProductCount tracks the products that
// reference it and is maintained by the store alongside product writes.
type Category struct {
	ID           string `json:"id" dynamodbav:"id"`
	Name         string `json:"name" dynamodbav:"name"`
	Icon         string `json:"icon,omitempty" dynamodbav:"icon,omitempty"`
	Color        string `json:"color,omitempty" dynamodbav:"color,omitempty"`
	ProductCount int    `json:"-" dynamodbav:"productCount"`
}

type CreateCategoryRequest struct {
	Name  string `json:"name" binding:"required"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

type CategoryPatch struct {
	Name  *string `json:"name" binding:"omitempty,min=1"`
	Icon  *string `json:"icon"`
	Color *string `json:"color"`
}

type Product struct {
	ID              string    `json:"id" dynamodbav:"id"`
	Name            string    `json:"name" dynamodbav:"name"`
	Description     string    `json:"description" dynamodbav:"description"`
	RichDescription string    `json:"richDescription" dynamodbav:"richDescription"`
	Image           string    `json:"image" dynamodbav:"image"`
	Images          []string  `json:"images" dynamodbav:"images"`
	Brand           string    `json:"brand" dynamodbav:"brand"`
	Price           float64   `json:"price" dynamodbav:"price"`
	Category        string    `json:"category" dynamodbav:"category"`
	CountInStock    int       `json:"countInStock" dynamodbav:"countInStock"`
	Rating          float64   `json:"rating" dynamodbav:"rating"`
	NumReviews      int       `json:"numReviews" dynamodbav:"numReviews"`
	IsFeatured      bool      `json:"isFeatured" dynamodbav:"isFeatured"`
	DateCreated     time.Time `json:"dateCreated" dynamodbav:"dateCreated"`
}

// ProductDetails is a product with its category resolved. Category is nil
// when the referenced category no longer exists.
type ProductDetails struct {
	Product
	Category *Category `json:"category"`
}

// CreateProductRequest is bound from a multipart form; the image travels
// alongside it as a file part.
type CreateProductRequest struct {
	Name            string  `form:"name" binding:"required"`
	Description     string  `form:"description" binding:"required"`
	RichDescription string  `form:"richDescription"`
	Brand           string  `form:"brand"`
	Price           float64 `form:"price" binding:"gte=0"`
	Category        string  `form:"category" binding:"required"`
	CountInStock    int     `form:"countInStock" binding:"gte=0,lte=255"`
	Rating          float64 `form:"rating" binding:"gte=0"`
	NumReviews      int     `form:"numReviews" binding:"gte=0"`
	IsFeatured      bool    `form:"isFeatured"`
}

type ProductPatch struct {
	Name            *string  `json:"name" binding:"omitempty,min=1"`
	Description     *string  `json:"description"`
	RichDescription *string  `json:"richDescription"`
	Image           *string  `json:"image"`
	Brand           *string  `json:"brand"`
	Price           *float64 `json:"price" binding:"omitempty,gte=0"`
	Category        *string  `json:"category"`
	CountInStock    *int     `json:"countInStock" binding:"omitempty,gte=0,lte=255"`
	Rating          *float64 `json:"rating" binding:"omitempty,gte=0"`
	NumReviews      *int     `json:"numReviews" binding:"omitempty,gte=0"`
	IsFeatured      *bool    `json:"isFeatured"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.RichDescription == nil &&
		p.Image == nil && p.Brand == nil && p.Price == nil && p.Category == nil &&
		p.CountInStock == nil && p.Rating == nil && p.NumReviews == nil && p.IsFeatured == nil
}

// MaxGalleryImages is the largest gallery accepted in one upload.
const MaxGalleryImages = 10
