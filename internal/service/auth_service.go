package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tcgbazaar/escrow-backend/internal/logger"
	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	ErrUserInactive       = errors.New("учётная запись деактивирована")
	ErrWeakPassword       = errors.New("пароль должен быть не менее 8 символов")
	ErrInvalidRole        = errors.New("неизвестная роль")
)

// UserRepository описывает зависимости сервиса авторизации.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
}

// AuthService отвечает за регистрацию и вход пользователей.
type AuthService struct {
	repo   UserRepository
	tokens *TokenManager
}

// NewAuthService создаёт сервис авторизации.
func NewAuthService(repo UserRepository, tokens *TokenManager) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// Register создаёт пользователя и выдаёт пару токенов.
// Роль admin через регистрацию не выдаётся.
func (s *AuthService) Register(ctx context.Context, email, displayName, password, role string) (*models.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateLength("имя", displayName, validation.MinDisplayNameLength, validation.MaxDisplayNameLength); err != nil {
		return nil, nil, err
	}
	if len(password) < 8 {
		return nil, nil, ErrWeakPassword
	}
	if role == "" {
		role = models.RoleUser
	}
	if _, ok := models.ValidRoles[role]; !ok || role == models.RoleAdmin {
		return nil, nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, _, _, err := s.tokens.GeneratePair(user)
	if err != nil {
		return nil, nil, err
	}

	if logger.Log != nil {
		logger.Log.WithField("user_id", user.ID).Info("user registered")
	}
	return user, pair, nil
}

// Login проверяет учётные данные и выдаёт пару токенов.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, _, _, err := s.tokens.GeneratePair(user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).Warn("update last login failed")
		}
	}
	return user, pair, nil
}

// Refresh обменивает refresh токен на новую пару.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	pair, _, _, err := s.tokens.GeneratePair(user)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Me возвращает профиль текущего пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.repo.GetByID(ctx, userID)
}
