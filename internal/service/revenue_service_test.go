package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

type mockRevenueRepo struct {
	mock.Mock
}

func (m *mockRevenueRepo) Create(ctx context.Context, s *models.RevenueSplit) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockRevenueRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.RevenueSplit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RevenueSplit), args.Error(1)
}

func (m *mockRevenueRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.RevenueSplit, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.RevenueSplit), args.Error(1)
}

func (m *mockRevenueRepo) UpdateShareStatus(ctx context.Context, id uuid.UUID, share, fromStatus, toStatus string) (*models.RevenueSplit, error) {
	args := m.Called(ctx, id, share, fromStatus, toStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RevenueSplit), args.Error(1)
}

func (m *mockRevenueRepo) MarkEligible(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestCalculateSplit_Exact(t *testing.T) {
	shares, err := CalculateSplit(decimal.NewFromInt(200))
	assert.NoError(t, err)
	assert.True(t, shares.Owner.Equal(decimal.NewFromInt(140)), "owner: %s", shares.Owner)
	assert.True(t, shares.Merchant.Equal(decimal.NewFromInt(40)), "merchant: %s", shares.Merchant)
	assert.True(t, shares.Platform.Equal(decimal.NewFromInt(20)), "platform: %s", shares.Platform)
}

func TestCalculateSplit_RemainderToPlatform(t *testing.T) {
	// Суммы, которые не делятся на 70/20/10 без остатка: остаток
	// округления всегда забирает платформа, сумма долей равна gross.
	for _, raw := range []string{"0.01", "0.05", "99.99", "33.33", "107.77", "2499.95"} {
		gross := decimal.RequireFromString(raw)
		shares, err := CalculateSplit(gross)
		assert.NoError(t, err)

		sum := shares.Owner.Add(shares.Merchant).Add(shares.Platform)
		assert.True(t, sum.Equal(gross), "gross=%s: сумма долей %s", gross, sum)
		assert.True(t, shares.Owner.GreaterThanOrEqual(decimal.Zero))
		assert.True(t, shares.Merchant.GreaterThanOrEqual(decimal.Zero))
	}
}

func TestCalculateSplit_InvalidGross(t *testing.T) {
	_, err := CalculateSplit(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidGross)

	_, err = CalculateSplit(decimal.NewFromInt(-50))
	assert.ErrorIs(t, err, ErrInvalidGross)
}

func TestRevenueService_CreateSplit(t *testing.T) {
	repo := new(mockRevenueRepo)
	svc := NewRevenueService(repo, 7*24*time.Hour)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*models.RevenueSplit")).Return(nil)

	split, err := svc.CreateSplit(ctx, uuid.New(), uuid.New(), uuid.New(), decimal.RequireFromString("149.99"))
	assert.NoError(t, err)
	assert.Equal(t, models.SplitStatusPending, split.OwnerStatus)
	assert.Equal(t, models.SplitStatusPending, split.MerchantStatus)
	assert.Equal(t, models.SplitStatusPending, split.PlatformStatus)

	sum := split.OwnerAmount.Add(split.MerchantAmount).Add(split.PlatformAmount)
	assert.True(t, sum.Equal(split.GrossAmount), "сумма долей %s != gross %s", sum, split.GrossAmount)
	assert.True(t, split.EligibleAt.After(time.Now().Add(6*24*time.Hour)))
	repo.AssertExpectations(t)
}

func TestRevenueService_AdvanceShare(t *testing.T) {
	repo := new(mockRevenueRepo)
	svc := NewRevenueService(repo, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	split := &models.RevenueSplit{
		ID:             id,
		OwnerID:        uuid.New(),
		OwnerStatus:    models.SplitStatusEligible,
		MerchantStatus: models.SplitStatusPending,
		PlatformStatus: models.SplitStatusPending,
	}
	advanced := &models.RevenueSplit{ID: id, OwnerID: split.OwnerID, OwnerStatus: models.SplitStatusInPayout}

	repo.On("GetByID", ctx, id).Return(split, nil)
	repo.On("UpdateShareStatus", ctx, id, models.SplitShareOwner, models.SplitStatusEligible, models.SplitStatusInPayout).Return(advanced, nil)

	got, err := svc.AdvanceShare(ctx, id, models.SplitShareOwner, models.SplitStatusInPayout)
	assert.NoError(t, err)
	assert.Equal(t, models.SplitStatusInPayout, got.OwnerStatus)
	repo.AssertExpectations(t)
}

func TestRevenueService_AdvanceShare_IllegalTransition(t *testing.T) {
	repo := new(mockRevenueRepo)
	svc := NewRevenueService(repo, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	split := &models.RevenueSplit{ID: id, OwnerStatus: models.SplitStatusPaid}
	repo.On("GetByID", ctx, id).Return(split, nil)

	// paid — терминальный статус, дальше двигаться некуда.
	_, err := svc.AdvanceShare(ctx, id, models.SplitShareOwner, models.SplitStatusReversed)
	assert.ErrorIs(t, err, ErrShareNotAdvancable)

	// pending нельзя перескочить сразу в paid.
	split.OwnerStatus = models.SplitStatusPending
	_, err = svc.AdvanceShare(ctx, id, models.SplitShareOwner, models.SplitStatusPaid)
	assert.ErrorIs(t, err, ErrShareNotAdvancable)
}

func TestRevenueService_AdvanceShare_UnknownShare(t *testing.T) {
	repo := new(mockRevenueRepo)
	svc := NewRevenueService(repo, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	repo.On("GetByID", ctx, id).Return(&models.RevenueSplit{ID: id}, nil)

	_, err := svc.AdvanceShare(ctx, id, "investor", models.SplitStatusEligible)
	assert.ErrorIs(t, err, ErrUnknownShare)
}
