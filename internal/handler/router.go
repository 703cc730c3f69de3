package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/upload"
	"github.com/cloud-wave-best-zizon/eshop-service/pkg/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Options struct {
	Prefix         string
	UploadDir      string
	RequestTimeout time.Duration
	EnforceAdmin   bool
	Mid            *middleware.Mid
	Kafka          HealthChecker
	Logger         *zap.Logger
}

// API builds the HTTP router: public upload files, /health, and the
// categories, products, users and orders resources under opts.Prefix.
func API(opts Options, catalog *CatalogHandler, users *UserHandler, orders *OrderHandler) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(opts.Logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(opts.Mid.Authentication())
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Static(upload.PublicPath, opts.UploadDir)
	r.GET("/health", health(opts.Kafka))

	admin := opts.Mid.RequireAdmin(opts.EnforceAdmin)
	v1 := r.Group(opts.Prefix)

	categories := v1.Group("/categories")
	{
		categories.GET("", catalog.ListCategories)
		categories.GET("/:id", catalog.GetCategory)
		categories.POST("", admin, catalog.CreateCategory)
		categories.PUT("/:id", admin, catalog.UpdateCategory)
		categories.DELETE("/:id", admin, catalog.DeleteCategory)
	}

	products := v1.Group("/products")
	{
		products.GET("", catalog.ListProducts)
		products.GET("/:id", catalog.GetProduct)
		products.GET("/get/count", catalog.CountProducts)
		products.GET("/get/featured/:count", catalog.ListFeatured)
		products.POST("", admin, catalog.CreateProduct)
		products.PUT("/:id", admin, catalog.UpdateProduct)
		products.PUT("/gallery-images/:id", admin, catalog.ReplaceGalleryImages)
		products.DELETE("/:id", admin, catalog.DeleteProduct)
	}

	usersGroup := v1.Group("/users")
	{
		usersGroup.POST("/login", users.Login)
		usersGroup.POST("/register", users.Register)
		usersGroup.GET("", admin, users.ListUsers)
		usersGroup.GET("/:id", admin, users.GetUser)
		usersGroup.GET("/get/count", admin, users.CountUsers)
		usersGroup.POST("", admin, users.CreateUser)
		usersGroup.PUT("/:id", admin, users.UpdateUser)
		usersGroup.DELETE("/:id", admin, users.DeleteUser)
	}

	ordersGroup := v1.Group("/orders")
	{
		ordersGroup.POST("", orders.CreateOrder)
		ordersGroup.GET("/:id", orders.GetOrder)
		ordersGroup.GET("/get/userorders/:userid", orders.ListUserOrders)
		ordersGroup.GET("", admin, orders.ListOrders)
		ordersGroup.GET("/get/totalsales", admin, orders.TotalSales)
		ordersGroup.GET("/get/count", admin, orders.CountOrders)
		ordersGroup.PUT("/:id", admin, orders.UpdateStatus)
		ordersGroup.DELETE("/:id", admin, orders.DeleteOrder)
	}

	return r
}

func health(kafka HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{
			"status":  "healthy",
			"service": "eshop-service",
		}
		if err := kafka.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["kafka"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["kafka"] = "healthy"
		c.JSON(http.StatusOK, status)
	}
}
