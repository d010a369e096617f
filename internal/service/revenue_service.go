package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

var (
	ErrInvalidGross       = errors.New("валовая сумма должна быть положительной")
	ErrUnknownShare       = errors.New("неизвестный получатель доли")
	ErrShareNotAdvancable = errors.New("доля не может перейти в этот статус")
)

// Доли консигнационной продажи: владелец 70%, мерчант 20%, платформа 10%.
var (
	ownerRate    = decimal.NewFromFloat(0.70)
	merchantRate = decimal.NewFromFloat(0.20)
)

// SplitShares содержит результат раскладки валовой суммы.
type SplitShares struct {
	Owner    decimal.Decimal
	Merchant decimal.Decimal
	Platform decimal.Decimal
}

// CalculateSplit раскладывает валовую сумму 70/20/10 с округлением до
// валютной точности. Остаток округления достаётся платформе, поэтому
// сумма долей всегда в точности равна gross.
func CalculateSplit(gross decimal.Decimal) (SplitShares, error) {
	if !gross.IsPositive() {
		return SplitShares{}, ErrInvalidGross
	}

	gross = gross.Round(2)
	owner := gross.Mul(ownerRate).Round(2)
	merchant := gross.Mul(merchantRate).Round(2)
	platform := gross.Sub(owner).Sub(merchant)

	return SplitShares{Owner: owner, Merchant: merchant, Platform: platform}, nil
}

// RevenueRepository описывает зависимости сервиса от слоя хранилища.
type RevenueRepository interface {
	Create(ctx context.Context, s *models.RevenueSplit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RevenueSplit, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.RevenueSplit, error)
	UpdateShareStatus(ctx context.Context, id uuid.UUID, share, fromStatus, toStatus string) (*models.RevenueSplit, error)
	MarkEligible(ctx context.Context) (int64, error)
}

// RevenueService ведёт консигнационные раскладки выручки.
type RevenueService struct {
	notifier
	repo          RevenueRepository
	eligibleAfter time.Duration
}

// NewRevenueService создаёт сервис раскладок.
func NewRevenueService(repo RevenueRepository, eligibleAfter time.Duration) *RevenueService {
	return &RevenueService{repo: repo, eligibleAfter: eligibleAfter}
}

// CreateSplit создаёт раскладку в точке продажи.
func (s *RevenueService) CreateSplit(ctx context.Context, transactionID, ownerID, merchantID uuid.UUID, gross decimal.Decimal) (*models.RevenueSplit, error) {
	shares, err := CalculateSplit(gross)
	if err != nil {
		return nil, err
	}

	split := &models.RevenueSplit{
		TransactionID:  transactionID,
		OwnerID:        ownerID,
		MerchantID:     merchantID,
		GrossAmount:    gross.Round(2),
		OwnerAmount:    shares.Owner,
		MerchantAmount: shares.Merchant,
		PlatformAmount: shares.Platform,
		OwnerStatus:    models.SplitStatusPending,
		MerchantStatus: models.SplitStatusPending,
		PlatformStatus: models.SplitStatusPending,
		EligibleAt:     time.Now().Add(s.eligibleAfter),
	}
	if err := s.repo.Create(ctx, split); err != nil {
		return nil, err
	}
	return split, nil
}

// GetSplit возвращает раскладку по идентификатору.
func (s *RevenueService) GetSplit(ctx context.Context, id uuid.UUID) (*models.RevenueSplit, error) {
	return s.repo.GetByID(ctx, id)
}

// ListUserSplits возвращает раскладки пользователя.
func (s *RevenueService) ListUserSplits(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.RevenueSplit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// AdvanceShare продвигает статус одной доли по таблице переходов.
// Доли двигаются к выплате независимо: одна может быть paid,
// пока остальные ещё pending.
func (s *RevenueService) AdvanceShare(ctx context.Context, id uuid.UUID, share, toStatus string) (*models.RevenueSplit, error) {
	split, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var current string
	switch share {
	case models.SplitShareOwner:
		current = split.OwnerStatus
	case models.SplitShareMerchant:
		current = split.MerchantStatus
	case models.SplitSharePlatform:
		current = split.PlatformStatus
	default:
		return nil, ErrUnknownShare
	}

	if !models.SplitCanTransition(current, toStatus) {
		return nil, ErrShareNotAdvancable
	}

	split, err = s.repo.UpdateShareStatus(ctx, id, share, current, toStatus)
	if err != nil {
		return nil, err
	}

	s.notify(split.OwnerID, models.EventSplitShareUpdated, split)
	return split, nil
}

// SweepEligible переводит созревшие pending-доли в eligible.
func (s *RevenueService) SweepEligible(ctx context.Context) (int64, error) {
	return s.repo.MarkEligible(ctx)
}
