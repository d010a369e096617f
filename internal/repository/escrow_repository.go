package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// Create создаёт escrow-платёж для сделки.
// Частичный уникальный индекс в БД гарантирует не более одного
// активного (pending/held) платежа на сделку.
func (r *EscrowRepository) Create(ctx context.Context, p *models.EscrowPayment) error {
	query := `
		INSERT INTO escrow_payments (transaction_id, amount, method, status, risk_score, flagged_review)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.TransactionID, p.Amount, p.Method, p.Status, p.RiskScore, p.FlaggedReview,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateActive
		}
		return fmt.Errorf("escrow repository: create %w", err)
	}
	return nil
}

// GetByID возвращает платёж по идентификатору.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := r.db.GetContext(ctx, &p, `SELECT * FROM escrow_payments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return &p, err
}

// GetActiveByTransactionID возвращает активный платёж сделки.
func (r *EscrowRepository) GetActiveByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM escrow_payments
		WHERE transaction_id = $1 AND status IN ('pending', 'held')
	`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return &p, err
}

// Hold переводит платёж pending -> held и пишет строку журнала.
func (r *EscrowRepository) Hold(ctx context.Context, paymentID, actorID uuid.UUID) (*models.EscrowPayment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p models.EscrowPayment
	err = tx.GetContext(ctx, &p, `
		UPDATE escrow_payments SET status = 'held', held_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, paymentID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("escrow repository: hold %w", err)
	}

	if err := insertEscrowEntry(ctx, tx, p.ID, actorID, models.EscrowEntryHold, p.Amount, "Приём средств в escrow"); err != nil {
		return nil, err
	}

	return &p, tx.Commit()
}

// Cancel переводит платёж pending -> cancelled (оплата не состоялась).
func (r *EscrowRepository) Cancel(ctx context.Context, paymentID uuid.UUID) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := r.db.GetContext(ctx, &p, `
		UPDATE escrow_payments SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, paymentID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("escrow repository: cancel %w", err)
	}
	return &p, nil
}

// ListEntries возвращает append-only журнал движений по платежу.
func (r *EscrowRepository) ListEntries(ctx context.Context, paymentID uuid.UUID) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM escrow_entries WHERE payment_id = $1 ORDER BY created_at ASC
	`, paymentID)
	return entries, err
}

// releasePaymentTx исполняет выплату held -> released внутри переданной транзакции.
// Вызывается только из подтверждения заявки (Pending-Release Gate).
func releasePaymentTx(ctx context.Context, tx *sqlx.Tx, paymentID, recipientID uuid.UUID) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := tx.GetContext(ctx, &p, `
		UPDATE escrow_payments SET status = 'released', released_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'held'
		RETURNING *
	`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("escrow repository: release %w", err)
	}

	if err := insertEscrowEntry(ctx, tx, p.ID, recipientID, models.EscrowEntryRelease, p.Amount, "Выплата продавцу из escrow"); err != nil {
		return nil, err
	}
	return &p, nil
}

// refundPaymentTx исполняет возврат held -> refunded внутри переданной транзакции.
// Полный возврат требует amount == сумме платежа. Частичный возврат пишет
// refund покупателю и release остатка продавцу одним атомарным шагом.
func refundPaymentTx(ctx context.Context, tx *sqlx.Tx, paymentID, buyerID, sellerID uuid.UUID, amount decimal.Decimal) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := tx.GetContext(ctx, &p, `
		UPDATE escrow_payments
		SET status = 'refunded', refunded_amount = $2, released_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'held'
		RETURNING *
	`, paymentID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("escrow repository: refund %w", err)
	}

	if err := insertEscrowEntry(ctx, tx, p.ID, buyerID, models.EscrowEntryRefund, amount, "Возврат средств покупателю"); err != nil {
		return nil, err
	}

	residual := p.Amount.Sub(amount)
	if residual.IsPositive() {
		if err := insertEscrowEntry(ctx, tx, p.ID, sellerID, models.EscrowEntryRelease, residual, "Остаток продавцу после частичного возврата"); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// insertEscrowEntry добавляет строку журнала движений.
func insertEscrowEntry(ctx context.Context, tx *sqlx.Tx, paymentID, userID uuid.UUID, entryType string, amount decimal.Decimal, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_entries (payment_id, user_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`, paymentID, userID, entryType, amount, description)
	if err != nil {
		return fmt.Errorf("escrow repository: insert entry %w", err)
	}
	return nil
}
