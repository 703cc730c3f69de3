package service

import (
	"context"
	"errors"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/auth"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"go.uber.org/zap"
)

type UserService struct {
	users  UserStore
	hasher *auth.Hasher
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewUserService(users UserStore, hasher *auth.Hasher, tokens *auth.TokenManager, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the user with the given ID was not found")
	}
	return s.users.Get(ctx, id)
}

func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}

// CreateUser is the administrative create; it honours the admin flag.
func (s *UserService) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	return s.create(ctx, req)
}

// Register is the public sign-up. It never grants admin.
func (s *UserService) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	req.IsAdmin = false
	return s.create(ctx, req)
}

func (s *UserService) create(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Phone:        req.Phone,
		IsAdmin:      req.IsAdmin,
		Street:       req.Street,
		Apartment:    req.Apartment,
		Zip:          req.Zip,
		City:         req.City,
		Country:      req.Country,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("User created", zap.String("user_id", u.ID), zap.Bool("is_admin", u.IsAdmin))
	return u, nil
}

// UpdateUser applies patch. The stored password hash is kept unless a new
// password is supplied.
func (s *UserService) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	if !domain.ValidID(id) {
		return nil, domain.ErrNotFound.WithMessage("the user cannot be updated")
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousEmail := u.Email

	setIf(&u.Name, patch.Name)
	setIf(&u.Email, patch.Email)
	setIf(&u.Phone, patch.Phone)
	setIf(&u.IsAdmin, patch.IsAdmin)
	setIf(&u.Street, patch.Street)
	setIf(&u.Apartment, patch.Apartment)
	setIf(&u.Zip, patch.Zip)
	setIf(&u.City, patch.City)
	setIf(&u.Country, patch.Country)
	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.users.Update(ctx, previousEmail, u); err != nil {
		return nil, err
	}
	return u, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if !domain.ValidID(id) {
		return domain.ErrNotFound.WithMessage("the user was not found")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.String("user_id", id))
	return nil
}

// Login fails with domain.ErrInvalidCredentials whether the email is unknown
// or the password is wrong, and does a hash comparison in both cases.
func (s *UserService) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		s.hasher.VerifyDummy(req.Password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(req.Password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.ID, u.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResponse{User: u.Email, Token: token}, nil
}
