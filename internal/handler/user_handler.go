package handler

import (
	"context"
	"net/http"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserService interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)
}

var _ UserService = (*service.UserService)(nil)

type UserHandler struct {
	users  UserService
	logger *zap.Logger
}

func NewUserHandler(users UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) CountUsers(c *gin.Context) {
	n, err := h.users.CountUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userCount": n})
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	h.create(c, h.users.CreateUser)
}

func (h *UserHandler) Register(c *gin.Context) {
	h.create(c, h.users.Register)
}

func (h *UserHandler) create(c *gin.Context, create func(context.Context, domain.CreateUserRequest) (*domain.User, error)) {
	var req domain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	user, err := create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	var patch domain.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	user, err := h.users.UpdateUser(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.users.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	deleted(c, "user")
}

func (h *UserHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	resp, err := h.users.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
