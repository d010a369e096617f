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

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create создаёт согласованную сделку.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (buyer_id, seller_id, hub_id, status, title, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		t.BuyerID, t.SellerID, t.HubID, t.Status, t.Title, t.ScheduledAt,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transaction repository: create %w", err)
	}
	return nil
}

// GetByID возвращает сделку по идентификатору.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.GetContext(ctx, &t, `SELECT * FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return &t, err
}

// ListByUser возвращает сделки, где пользователь выступает любой из сторон.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1 OR hub_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return transactions, err
}

// UpdateStatus выполняет guarded-переход статуса сделки.
// Обновление условное: если сделка уже не в ожидаемом статусе,
// возвращается ErrStateConflict без каких-либо изменений.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*models.Transaction, error) {
	var t models.Transaction
	query := `
		UPDATE transactions
		SET status = $3,
		    completed_at = CASE WHEN $3 = 'completed' THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING *
	`
	err := r.db.GetContext(ctx, &t, query, id, fromStatus, toStatus)
	if errors.Is(err, sql.ErrNoRows) {
		// Либо сделки нет, либо статус уже другой — различаем для вызывающего.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("transaction repository: update status %w", err)
	}
	return &t, nil
}

// Complete выполняет guarded-переход in_progress -> completed и одной
// транзакцией с ним создаёт заявку на штатную выплату продавцу.
func (r *TransactionRepository) Complete(ctx context.Context, id uuid.UUID, rel *models.PendingRelease) (*models.Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: complete begin %w", err)
	}
	defer tx.Rollback()

	var t models.Transaction
	err = tx.GetContext(ctx, &t, `
		UPDATE transactions
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
		RETURNING *
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("transaction repository: complete %w", err)
	}

	if err := insertRelease(ctx, tx, rel); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction repository: complete commit %w", err)
	}
	return &t, nil
}
