package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/auth"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// The stubs embed the service interfaces and override only what a test
// exercises; anything else panics on the nil embedded value.

type stubCatalog struct {
	CatalogService
	createProduct func(req domain.CreateProductRequest, image *multipart.FileHeader, baseURL string) (*domain.Product, error)
	listProducts  func(categories []string) ([]domain.Product, error)
	listFeatured  func(limit int) ([]domain.Product, error)
	deleteProduct func(id string) error
}

func (s *stubCatalog) CreateProduct(_ context.Context, req domain.CreateProductRequest, image *multipart.FileHeader, baseURL string) (*domain.Product, error) {
	return s.createProduct(req, image, baseURL)
}

func (s *stubCatalog) ListProducts(_ context.Context, categories []string) ([]domain.Product, error) {
	return s.listProducts(categories)
}

func (s *stubCatalog) ListFeatured(_ context.Context, limit int) ([]domain.Product, error) {
	return s.listFeatured(limit)
}

func (s *stubCatalog) DeleteProduct(_ context.Context, id string) error {
	return s.deleteProduct(id)
}

type stubUsers struct {
	UserService
	login    func(req domain.LoginRequest) (*domain.LoginResponse, error)
	register func(req domain.CreateUserRequest) (*domain.User, error)
	getUser  func(id string) (*domain.User, error)
}

func (s *stubUsers) Login(_ context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	return s.login(req)
}

func (s *stubUsers) Register(_ context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	return s.register(req)
}

func (s *stubUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	return s.getUser(id)
}

type stubOrders struct {
	OrderService
	createOrder  func(req domain.CreateOrderRequest) (*domain.Order, error)
	updateStatus func(id string, status domain.OrderStatus) (*domain.Order, error)
	totalSales   func() (decimal.Decimal, error)
}

func (s *stubOrders) CreateOrder(_ context.Context, req domain.CreateOrderRequest, _ string) (*domain.Order, error) {
	return s.createOrder(req)
}

func (s *stubOrders) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, _ string) (*domain.Order, error) {
	return s.updateStatus(id, status)
}

func (s *stubOrders) TotalSales(context.Context) (decimal.Decimal, error) {
	return s.totalSales()
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type testAPI struct {
	router  *gin.Engine
	tokens  *auth.TokenManager
	catalog *stubCatalog
	users   *stubUsers
	orders  *stubOrders
}

func newTestAPI(t *testing.T, enforceAdmin bool, kafkaErr error) *testAPI {
	t.Helper()
	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	mid, err := middleware.NewMid(tokens, "/api/v1", zap.NewNop())
	require.NoError(t, err)

	api := &testAPI{tokens: tokens, catalog: &stubCatalog{}, users: &stubUsers{}, orders: &stubOrders{}}
	api.router = API(Options{
		Prefix:         "/api/v1",
		UploadDir:      t.TempDir(),
		RequestTimeout: time.Second,
		EnforceAdmin:   enforceAdmin,
		Mid:            mid,
		Kafka:          stubHealth{err: kafkaErr},
		Logger:         zap.NewNop(),
	},
		NewCatalogHandler(api.catalog, "", zap.NewNop()),
		NewUserHandler(api.users, zap.NewNop()),
		NewOrderHandler(api.orders, enforceAdmin, zap.NewNop()),
	)
	return api
}

func (a *testAPI) token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	tok, err := a.tokens.Issue(userID, admin)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrInvalidCategory, http.StatusBadRequest, "invalid_category"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrEmailTaken, http.StatusConflict, "email_taken"},
		{domain.ErrUnavailable.Wrap(errors.New("throttled")), http.StatusServiceUnavailable, "unavailable"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDKey, "rid")

			respondError(c, zap.NewNop(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Equal(t, "rid", body["request_id"])
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, zap.NewNop(), errors.New("dynamodb: secret table layout"))
	assert.NotContains(t, w.Body.String(), "secret table layout")
}

func TestListProductsCategoriesFilter(t *testing.T) {
	api := newTestAPI(t, false, nil)
	var got []string
	api.catalog.listProducts = func(categories []string) ([]domain.Product, error) {
		got = categories
		return nil, nil
	}

	w := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/products?categories=a,%20b,,c", nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListFeaturedCount(t *testing.T) {
	api := newTestAPI(t, false, nil)
	var limit int
	api.catalog.listFeatured = func(l int) ([]domain.Product, error) {
		limit = l
		return []domain.Product{}, nil
	}

	w := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/products/get/featured/3", nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, limit)

	w = api.do(httptest.NewRequest(http.MethodGet, "/api/v1/products/get/featured/many", nil), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProductMultipart(t *testing.T) {
	api := newTestAPI(t, false, nil)
	var gotReq domain.CreateProductRequest
	var gotImage *multipart.FileHeader
	var gotBase string
	api.catalog.createProduct = func(req domain.CreateProductRequest, image *multipart.FileHeader, baseURL string) (*domain.Product, error) {
		gotReq, gotImage, gotBase = req, image, baseURL
		return &domain.Product{ID: "p1", Name: req.Name}, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"name":         "Phone",
		"description":  "A phone",
		"price":        "500",
		"category":     "c1",
		"countInStock": "10",
		"isFeatured":   "true",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("image", "phone.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Host = "shop.example.com"
	w := api.do(req, api.token(t, "u1", true))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Phone", gotReq.Name)
	assert.Equal(t, 500.0, gotReq.Price)
	assert.Equal(t, 10, gotReq.CountInStock)
	assert.True(t, gotReq.IsFeatured)
	require.NotNil(t, gotImage)
	assert.Equal(t, "phone.png", gotImage.Filename)
	assert.Equal(t, "http://shop.example.com", gotBase)
}

func TestCreateProductWithoutImage(t *testing.T) {
	api := newTestAPI(t, false, nil)
	api.catalog.createProduct = func(_ domain.CreateProductRequest, image *multipart.FileHeader, _ string) (*domain.Product, error) {
		if image == nil {
			return nil, domain.ErrMissingImage
		}
		return &domain.Product{}, nil
	}

	req := jsonRequest(http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Phone", "description": "A phone", "category": "c1",
	})
	w := api.do(req, api.token(t, "u1", true))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_image", decode(t, w)["error"])
}

func TestCreateProductBindingError(t *testing.T) {
	api := newTestAPI(t, false, nil)

	req := jsonRequest(http.MethodPost, "/api/v1/products", map[string]any{"name": "Phone"})
	w := api.do(req, api.token(t, "u1", true))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Contains(t, body["message"], "Description")
}

func TestDeleteProduct(t *testing.T) {
	api := newTestAPI(t, false, nil)
	api.catalog.deleteProduct = func(id string) error {
		if id == "p1" {
			return nil
		}
		return domain.ErrNotFound
	}
	tok := api.token(t, "u1", true)

	w := api.do(httptest.NewRequest(http.MethodDelete, "/api/v1/products/p1", nil), tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"The product is deleted!"}`, w.Body.String())

	w = api.do(httptest.NewRequest(http.MethodDelete, "/api/v1/products/p2", nil), tok)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginAndRegister(t *testing.T) {
	api := newTestAPI(t, false, nil)
	api.users.login = func(req domain.LoginRequest) (*domain.LoginResponse, error) {
		if req.Password != "secret123" {
			return nil, domain.ErrInvalidCredentials
		}
		return &domain.LoginResponse{User: req.Email, Token: "tok"}, nil
	}
	api.users.register = func(req domain.CreateUserRequest) (*domain.User, error) {
		return &domain.User{ID: "u1", Name: req.Name, Email: req.Email, PasswordHash: "$2a$hash"}, nil
	}

	w := api.do(jsonRequest(http.MethodPost, "/api/v1/users/login", domain.LoginRequest{Email: "a@b.c", Password: "secret123"}), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"a@b.c","token":"tok"}`, w.Body.String())

	w = api.do(jsonRequest(http.MethodPost, "/api/v1/users/login", domain.LoginRequest{Email: "a@b.c", Password: "wrong"}), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_credentials", decode(t, w)["error"])

	w = api.do(jsonRequest(http.MethodPost, "/api/v1/users/register", map[string]any{
		"name": "Alice", "email": "a@b.c", "password": "secret123", "phone": "+1",
	}), "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "passwordHash")
	assert.NotContains(t, w.Body.String(), "$2a$hash")

	w = api.do(jsonRequest(http.MethodPost, "/api/v1/users/register", map[string]any{
		"name": "Alice", "email": "not-an-email", "password": "secret123", "phone": "+1",
	}), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsersRequireToken(t *testing.T) {
	api := newTestAPI(t, false, nil)
	api.users.getUser = func(id string) (*domain.User, error) {
		return &domain.User{ID: id, Name: "Alice", PasswordHash: "$2a$hash"}, nil
	}

	w := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil), api.token(t, "u2", false))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "$2a$hash")
}

func TestAdminEnforcement(t *testing.T) {
	api := newTestAPI(t, true, nil)
	api.users.getUser = func(id string) (*domain.User, error) { return &domain.User{ID: id}, nil }

	w := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil), api.token(t, "u2", false))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil), api.token(t, "u2", true))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOrderDefaultsUserToCaller(t *testing.T) {
	for _, enforce := range []bool{false, true} {
		t.Run(fmt.Sprintf("enforce=%v", enforce), func(t *testing.T) {
			api := newTestAPI(t, enforce, nil)
			var got domain.CreateOrderRequest
			api.orders.createOrder = func(req domain.CreateOrderRequest) (*domain.Order, error) {
				got = req
				return &domain.Order{ID: "o1", User: req.User, Status: domain.OrderStatusPending, TotalPrice: 1000}, nil
			}
			body := map[string]any{
				"orderItems":       []map[string]any{{"product": "p1", "quantity": 2}},
				"shippingAddress1": "1 Main St",
				"city":             "Seoul",
				"zip":              "04524",
				"country":          "KR",
				"phone":            "+82",
			}

			w := api.do(jsonRequest(http.MethodPost, "/api/v1/orders", body), api.token(t, "caller", false))
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			assert.Equal(t, "caller", got.User)
			assert.Equal(t, 1000.0, decode(t, w)["totalPrice"])

			body["user"] = "someone-else"
			w = api.do(jsonRequest(http.MethodPost, "/api/v1/orders", body), api.token(t, "caller", false))
			require.Equal(t, http.StatusCreated, w.Code)
			if enforce {
				assert.Equal(t, "caller", got.User)
			} else {
				assert.Equal(t, "someone-else", got.User)
			}
		})
	}
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	api := newTestAPI(t, false, nil)

	w := api.do(jsonRequest(http.MethodPost, "/api/v1/orders", map[string]any{
		"orderItems":       []any{},
		"shippingAddress1": "1 Main St", "city": "Seoul", "zip": "1", "country": "KR", "phone": "+82",
	}), api.token(t, "u1", false))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	api := newTestAPI(t, false, nil)
	api.orders.updateStatus = func(id string, status domain.OrderStatus) (*domain.Order, error) {
		if status == domain.OrderStatusDelivered {
			return nil, domain.ErrInvalidStatusTransition
		}
		return &domain.Order{ID: id, Status: status}, nil
	}
	tok := api.token(t, "u1", true)

	w := api.do(jsonRequest(http.MethodPut, "/api/v1/orders/o1", map[string]string{"status": "Shipped"}), tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Shipped", decode(t, w)["status"])

	w = api.do(jsonRequest(http.MethodPut, "/api/v1/orders/o1", map[string]string{"status": "Delivered"}), tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status_transition", decode(t, w)["error"])
}

func TestTotalSales(t *testing.T) {
	api := newTestAPI(t, false, nil)
	api.orders.totalSales = func() (decimal.Decimal, error) { return decimal.RequireFromString("1000.3"), nil }

	w := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders/get/totalsales", nil), api.token(t, "u1", true))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalsales":1000.3}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	w := newTestAPI(t, false, nil).do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = newTestAPI(t, false, errors.New("no broker")).do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["kafka"])
}
