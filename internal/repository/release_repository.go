package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

type ReleaseRepository struct {
	db *sqlx.DB
}

func NewReleaseRepository(db *sqlx.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

// insertRelease пишет заявку на движение денег. Заявки создаются только
// вместе с порождающим их переходом (решение спора, завершение сделки,
// возврат посылки), поэтому вставка выполняется в транзакции вызывающего.
func insertRelease(ctx context.Context, q sqlx.ExtContext, rel *models.PendingRelease) error {
	query := `
		INSERT INTO pending_releases (type, status, amount, reason, recipient_id, payment_id, transaction_id, dispute_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		rel.Type, rel.Status, rel.Amount, rel.Reason, rel.RecipientID, rel.PaymentID, rel.TransactionID, rel.DisputeID,
	).Scan(&rel.ID, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("release repository: insert %w", err)
	}
	return nil
}

// GetByID возвращает заявку по идентификатору.
func (r *ReleaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error) {
	var rel models.PendingRelease
	err := r.db.GetContext(ctx, &rel, `SELECT * FROM pending_releases WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReleaseNotFound
	}
	return &rel, err
}

// ListPending возвращает очередь ожидающих заявок.
func (r *ReleaseRepository) ListPending(ctx context.Context, limit, offset int) ([]models.PendingRelease, error) {
	var releases []models.PendingRelease
	err := r.db.SelectContext(ctx, &releases, `
		SELECT * FROM pending_releases WHERE status = 'pending'
		ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	return releases, err
}

// SetToken сохраняет хэш одноразового токена подтверждения.
// Guarded: заявка должна быть pending, повторная инициация переписывает токен.
func (r *ReleaseRepository) SetToken(ctx context.Context, id uuid.UUID, tokenHash string, expires time.Time) (*models.PendingRelease, error) {
	var rel models.PendingRelease
	err := r.db.GetContext(ctx, &rel, `
		UPDATE pending_releases SET token_hash = $2, token_expires = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, tokenHash, expires)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("release repository: set token %w", err)
	}
	return &rel, nil
}

// Approve атомарно подтверждает заявку и исполняет соответствующее движение
// денег в Escrow Ledger внутри одной транзакции БД. Условное обновление
// статуса гарантирует ровно одного победителя при гонке подтверждений:
// проигравший получает ErrStateConflict.
func (r *ReleaseRepository) Approve(ctx context.Context, id, approverID uuid.UUID, notes *string) (*models.PendingRelease, *models.EscrowPayment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var rel models.PendingRelease
	err = tx.GetContext(ctx, &rel, `
		UPDATE pending_releases
		SET status = 'approved', approved_by = $2, approval_notes = $3,
		    token_hash = NULL, token_expires = NULL, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, approverID, notes)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, nil, getErr
		}
		return nil, nil, ErrStateConflict
	}
	if err != nil {
		return nil, nil, fmt.Errorf("release repository: approve %w", err)
	}

	var payment *models.EscrowPayment
	if rel.PaymentID != nil {
		payment, err = r.executeTx(ctx, tx, &rel)
		if err != nil {
			return nil, nil, err
		}
	}

	return &rel, payment, tx.Commit()
}

// executeTx инструктирует Ledger в рамках уже открытой транзакции.
func (r *ReleaseRepository) executeTx(ctx context.Context, tx *sqlx.Tx, rel *models.PendingRelease) (*models.EscrowPayment, error) {
	switch rel.Type {
	case models.ReleaseTypeSellerPayout:
		return releasePaymentTx(ctx, tx, *rel.PaymentID, rel.RecipientID)

	case models.ReleaseTypeRefundFull, models.ReleaseTypeRefundPartial:
		// Покупатель и продавец берутся из сделки платежа.
		var parties struct {
			BuyerID  uuid.UUID `db:"buyer_id"`
			SellerID uuid.UUID `db:"seller_id"`
		}
		err := tx.GetContext(ctx, &parties, `
			SELECT t.buyer_id, t.seller_id FROM transactions t
			JOIN escrow_payments p ON p.transaction_id = t.id
			WHERE p.id = $1
		`, *rel.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("release repository: payment parties %w", err)
		}
		return refundPaymentTx(ctx, tx, *rel.PaymentID, parties.BuyerID, parties.SellerID, rel.Amount)

	case models.ReleaseTypeHubCommission:
		// Комиссия хаба не меняет статус платежа, только журнал.
		if err := insertEscrowEntry(ctx, tx, *rel.PaymentID, rel.RecipientID, models.EscrowEntrySplitPayout, rel.Amount, "Комиссия хаба"); err != nil {
			return nil, err
		}
		return nil, nil

	case models.ReleaseTypeWithdrawal:
		// Вывод средств исполняет внешний платёжный шлюз, журнал для истории.
		if err := insertEscrowEntry(ctx, tx, *rel.PaymentID, rel.RecipientID, models.EscrowEntrySplitPayout, rel.Amount, "Вывод средств"); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("release repository: unknown release type %q", rel.Type)
	}
}

// Reject отклоняет заявку. Guarded, Ledger не затрагивается.
func (r *ReleaseRepository) Reject(ctx context.Context, id, rejecterID uuid.UUID, reason string) (*models.PendingRelease, error) {
	var rel models.PendingRelease
	err := r.db.GetContext(ctx, &rel, `
		UPDATE pending_releases
		SET status = 'rejected', rejected_by = $2, reject_reason = $3,
		    token_hash = NULL, token_expires = NULL, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, rejecterID, reason)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("release repository: reject %w", err)
	}
	return &rel, nil
}

// Expire переводит одну заявку pending -> expired (ленивая проверка при чтении).
func (r *ReleaseRepository) Expire(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error) {
	var rel models.PendingRelease
	err := r.db.GetContext(ctx, &rel, `
		UPDATE pending_releases
		SET status = 'expired', token_hash = NULL, token_expires = NULL,
		    resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("release repository: expire %w", err)
	}
	return &rel, nil
}

// ExpireStale переводит в expired все заявки с истёкшим токеном или
// просроченным сроком хранения. Используется фоновой зачисткой; условие
// по статусу исключает гонку с подтверждением.
func (r *ReleaseRepository) ExpireStale(ctx context.Context, retention time.Duration) ([]models.PendingRelease, error) {
	var releases []models.PendingRelease
	err := r.db.SelectContext(ctx, &releases, `
		UPDATE pending_releases
		SET status = 'expired', token_hash = NULL, token_expires = NULL,
		    resolved_at = NOW(), updated_at = NOW()
		WHERE status = 'pending'
		  AND ((token_expires IS NOT NULL AND token_expires < NOW())
		       OR created_at < NOW() - ($1 * INTERVAL '1 second'))
		RETURNING *
	`, int64(retention.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("release repository: expire stale %w", err)
	}
	return releases, nil
}
