package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"instapulse/internal/model"
	"instapulse/internal/repository"
	"instapulse/internal/util"
	"instapulse/pkg/apperr"
	"instapulse/pkg/config"
	"instapulse/pkg/logger"
	"instapulse/pkg/rbac"
)

type AccountStore interface {
	Create(ctx context.Context, a *model.Account) error
	EnsureAdmin(ctx context.Context, a *model.Account) (bool, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByID(ctx context.Context, id int) (*model.Account, error)
	List(ctx context.Context) ([]*model.Account, error)
	Delete(ctx context.Context, id int) error
}

type Service struct {
	accounts  AccountStore
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewService(accounts AccountStore, cfg config.JWTConfig, logger *zap.Logger) *Service {
	return &Service{
		accounts:  accounts,
		jwtSecret: cfg.Secret,
		tokenTTL:  cfg.TTL(),
		logger:    logger,
	}
}

// LoginResult is a signed token and the account it was issued for.
type LoginResult struct {
	Token string
	User  *model.Account
}

// LoginInput is the body of a login request.
type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"required,oneof=admin intern"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

// BootstrapAdmin seeds the configured admin when its email is not registered.
func (s *Service) BootstrapAdmin(ctx context.Context, cfg config.AdminConfig) error {
	hash, err := util.HashPassword(cfg.Password)
	if err != nil {
		return err
	}
	created, err := s.accounts.EnsureAdmin(ctx, &model.Account{
		Email:        cfg.Email,
		PasswordHash: hash,
		FirstName:    cfg.FirstName,
		LastName:     cfg.LastName,
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("Default admin user created", zap.String("email", cfg.Email))
	}
	return nil
}

// Login checks credentials and returns a JWT. Unknown email and wrong
// password are reported the same way.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := binding.Validator.ValidateStruct(LoginInput{Email: email, Password: password}); err != nil {
		return nil, apperr.Validation(LoginMessage(err))
	}

	u, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return nil, apperr.Store("failed to load user", err)
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	token, err := util.GenerateJWT(u.ID, u.Email, u.Role, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("User logged in", zap.Int("user_id", u.ID))
	return &LoginResult{Token: token, User: u}, nil
}

// Authenticate verifies a bearer token and returns the subject it names.
func (s *Service) Authenticate(token string) (rbac.Subject, error) {
	if token == "" {
		return rbac.Subject{}, apperr.Unauthorized("Access token required")
	}
	claims, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return rbac.Subject{}, &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "Invalid or expired token", Err: err}
	}
	return rbac.Subject{ID: claims.UserID, Role: claims.Role}, nil
}

// Register creates an account. Only admins may register accounts.
func (s *Service) Register(ctx context.Context, actor rbac.Subject, in RegisterInput) (*model.Account, error) {
	if err := rbac.CheckPermission(actor, rbac.PermissionManageAccounts); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindForbidden, Msg: "Admin access required", Err: err}
	}

	in.Email = strings.TrimSpace(in.Email)
	if err := binding.Validator.ValidateStruct(in); err != nil {
		return nil, apperr.Validation(RegisterMessage(err))
	}
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation("Invalid role")
	}

	_, err = s.accounts.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperr.Conflict("User already exists")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Store("failed to check user", err)
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.Account{
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := s.accounts.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("User already exists")
		}
		return nil, apperr.Store("Failed to create user", err)
	}

	logger.WithTrace(ctx, s.logger).Info("User registered",
		zap.Int("user_id", u.ID),
		zap.String("role", role.String()),
		zap.Int("by_user", actor.ID),
	)
	return u, nil
}

func (s *Service) Profile(ctx context.Context, id int) (*model.Account, error) {
	u, err := s.accounts.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to load user", err)
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, actor rbac.Subject) ([]*model.Account, error) {
	if err := rbac.CheckPermission(actor, rbac.PermissionManageAccounts); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindForbidden, Msg: "Admin access required", Err: err}
	}
	users, err := s.accounts.List(ctx)
	if err != nil {
		return nil, apperr.Store("failed to list users", err)
	}
	return users, nil
}

// DeleteUser removes an account and, through the store, its posts.
func (s *Service) DeleteUser(ctx context.Context, actor rbac.Subject, id int) error {
	if err := rbac.CheckPermission(actor, rbac.PermissionManageAccounts); err != nil {
		return &apperr.Error{Kind: apperr.KindForbidden, Msg: "Admin access required", Err: err}
	}
	if id == actor.ID {
		return apperr.Validation("Cannot delete your own account")
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Store("failed to delete user", err)
	}

	logger.WithTrace(ctx, s.logger).Info("User deleted", zap.Int("user_id", id), zap.Int("by_user", actor.ID))
	return nil
}
