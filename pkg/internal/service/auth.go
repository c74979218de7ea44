package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	"github.com/yeisme/cloudvault/pkg/password"
	"github.com/yeisme/cloudvault/pkg/rule"
	"github.com/yeisme/cloudvault/pkg/token"
)

// SignupInput 注册参数.
type SignupInput struct {
	Email    string `json:"email"    rule:"required,email,max=255"`
	Name     string `json:"name"     rule:"max=255"`
	Password string `json:"password" rule:"required,min=8,max=128"`
}

// LoginInput 登录参数.
type LoginInput struct {
	Email    string `json:"email"    rule:"required,email"`
	Password string `json:"password" rule:"required"`
}

// Session 登录结果.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// AuthService 账户注册、登录与令牌解析.
type AuthService struct {
	store  *store.Store
	tokens *token.Issuer
	limit  int64
}

// Signup 创建账户并签发令牌，邮箱重复返回 ErrConflict.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := rule.ValidateStruct(&in); err != nil {
		return nil, &ValidationError{Errors: rule.Errors(err).Messages()}
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, fault("hash password", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(in.Email, "@")
	}

	u := &model.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         name,
		PasswordHash: hash,
		StorageLimit: s.limit,
		IsActive:     true,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("email %s already registered: %w", in.Email, ErrConflict)
		}

		return nil, fault("create user", err)
	}

	logger(ctx, "auth").Info().Str("user_id", u.ID).Msg("user signed up")

	return s.session(u)
}

// Login 校验邮箱与密码，失败统一返回 ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := rule.ValidateStruct(&in); err != nil {
		return nil, &ValidationError{Errors: rule.Errors(err).Messages()}
	}

	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
		}

		return nil, fault("load user", err)
	}

	ok, err := password.Verify(in.Password, u.PasswordHash)
	if err != nil || !ok {
		return nil, fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	}

	if !u.IsActive {
		return nil, fmt.Errorf("user %s is inactive: %w", u.ID, ErrForbidden)
	}

	return s.session(u)
}

// Profile 返回账户信息.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		return nil, fault("load user", err)
	}

	return u, nil
}

// Authenticate 解析令牌并返回用户 ID.
func (s *AuthService) Authenticate(raw string) (string, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	return claims.Subject, nil
}

func (s *AuthService) session(u *model.User) (*Session, error) {
	tok, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, fault("issue token", err)
	}

	return &Session{Token: tok, ExpiresAt: exp, User: u}, nil
}
