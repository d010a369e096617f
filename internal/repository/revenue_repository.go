package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

// splitShareColumns отображает получателя доли на колонку статуса.
// Белый список защищает от подстановки произвольного имени колонки.
var splitShareColumns = map[string]string{
	models.SplitShareOwner:    "owner_status",
	models.SplitShareMerchant: "merchant_status",
	models.SplitSharePlatform: "platform_status",
}

type RevenueRepository struct {
	db *sqlx.DB
}

func NewRevenueRepository(db *sqlx.DB) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// Create создаёт раскладку выручки консигнационной продажи.
func (r *RevenueRepository) Create(ctx context.Context, s *models.RevenueSplit) error {
	query := `
		INSERT INTO revenue_splits (transaction_id, owner_id, merchant_id, gross_amount,
			owner_amount, merchant_amount, platform_amount,
			owner_status, merchant_status, platform_status, eligible_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.TransactionID, s.OwnerID, s.MerchantID, s.GrossAmount,
		s.OwnerAmount, s.MerchantAmount, s.PlatformAmount,
		s.OwnerStatus, s.MerchantStatus, s.PlatformStatus, s.EligibleAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("revenue repository: create %w", err)
	}
	return nil
}

// GetByID возвращает раскладку по идентификатору.
func (r *RevenueRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RevenueSplit, error) {
	var s models.RevenueSplit
	err := r.db.GetContext(ctx, &s, `SELECT * FROM revenue_splits WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSplitNotFound
	}
	return &s, err
}

// ListByUser возвращает раскладки, где пользователь владелец или мерчант.
func (r *RevenueRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.RevenueSplit, error) {
	var splits []models.RevenueSplit
	err := r.db.SelectContext(ctx, &splits, `
		SELECT * FROM revenue_splits WHERE owner_id = $1 OR merchant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return splits, err
}

// UpdateShareStatus выполняет guarded-переход статуса одной доли.
// Каждая доля двигается независимо от остальных.
func (r *RevenueRepository) UpdateShareStatus(ctx context.Context, id uuid.UUID, share, fromStatus, toStatus string) (*models.RevenueSplit, error) {
	column, ok := splitShareColumns[share]
	if !ok {
		return nil, fmt.Errorf("revenue repository: unknown share %q", share)
	}

	var s models.RevenueSplit
	query := fmt.Sprintf(`
		UPDATE revenue_splits SET %s = $3, updated_at = NOW()
		WHERE id = $1 AND %s = $2
		RETURNING *
	`, column, column)
	err := r.db.GetContext(ctx, &s, query, id, fromStatus, toStatus)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("revenue repository: update share status %w", err)
	}
	return &s, nil
}

// MarkEligible переводит pending-доли в eligible по наступлении даты.
func (r *RevenueRepository) MarkEligible(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE revenue_splits
		SET owner_status    = CASE WHEN owner_status = 'pending'    THEN 'eligible' ELSE owner_status END,
		    merchant_status = CASE WHEN merchant_status = 'pending' THEN 'eligible' ELSE merchant_status END,
		    platform_status = CASE WHEN platform_status = 'pending' THEN 'eligible' ELSE platform_status END,
		    updated_at = NOW()
		WHERE eligible_at <= NOW()
		  AND (owner_status = 'pending' OR merchant_status = 'pending' OR platform_status = 'pending')
	`)
	if err != nil {
		return 0, fmt.Errorf("revenue repository: mark eligible %w", err)
	}
	return res.RowsAffected()
}
