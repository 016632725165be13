package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/security"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type AuthService struct {
	users     repository.UserRepository
	hasher    *security.PasswordHasher
	tokens    *security.JWTManager
	userCache *UserListCache
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	hasher *security.PasswordHasher,
	tokens *security.JWTManager,
	userCache *UserListCache,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{users: users, hasher: hasher, tokens: tokens, userCache: userCache, logger: logger}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordAuthRequest(ctx, "register", outcome, time.Since(start)) }()

	email := domain.NormalizeEmail(in.Email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		outcome = "conflict"
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		outcome = "error"
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         domain.RoleUser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration for the same address.
		if errors.Is(err, repository.ErrEmailTaken) {
			outcome = "conflict"
			return nil, ErrDuplicateEmail
		}
		outcome = "error"
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.userCache.Invalidate(ctx)

	res, err := s.issue(user)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return res, nil
}

// Login checks that the account is active before checking the password, so a
// deactivated account is reported as such even with a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	start := time.Now()
	outcome := "success"
	defer func() { observability.RecordAuthRequest(ctx, "login", outcome, time.Since(start)) }()

	user, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		outcome = "invalid_credentials"
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if !user.IsActive {
		outcome = "deactivated"
		return nil, ErrAccountDeactivated
	}
	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		outcome = "error"
		s.logger.ErrorContext(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		outcome = "invalid_credentials"
		return nil, ErrInvalidCredentials
	}

	res, err := s.issue(user)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(security.Identity{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
