package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
)

type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockAuthRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := m.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	user, pair, err := service.Register(ctx, "Collector@Example.com", "Коллекционер", "password123", "")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "collector@example.com", user.Email, "email должен приводиться к нижнему регистру")
	assert.Equal(t, models.RoleUser, user.Role, "роль по умолчанию должна быть user")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	loginUser, loginPair, err := service.Login(ctx, "collector@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loginUser.ID, "login должен возвращать того же пользователя")
	assert.NotEmpty(t, loginPair.AccessToken)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour))
	ctx := context.Background()

	_, _, err := service.Register(ctx, "user@example.com", "Имя", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	// Роль admin через регистрацию не выдаётся.
	_, _, err = service.Register(ctx, "user@example.com", "Имя", "password123", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, _, err = service.Register(ctx, "hub@example.com", "Хаб проверки", "password123", models.RoleHub)
	assert.NoError(t, err, "регистрация хаба должна проходить")
}

func TestAuthService_LoginMasksFailures(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour))
	ctx := context.Background()

	// Несуществующий пользователь и неверный пароль неразличимы.
	_, _, err := service.Login(ctx, "ghost@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = service.Register(ctx, "user@example.com", "Имя", "password123", "")
	require.NoError(t, err)

	_, _, err = service.Login(ctx, "user@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LoginInactive(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour))

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "banned@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     false,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	_, _, err = service.Login(context.Background(), "banned@example.com", "password123")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthService_Refresh(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)
	ctx := context.Background()

	_, pair, err := service.Register(ctx, "user@example.com", "Имя", "password123", "")
	require.NoError(t, err)

	newPair, err := service.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)

	_, err = service.Refresh(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Access токен не подходит для refresh: подписи разными секретами.
	_, err = service.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
