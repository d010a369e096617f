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

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create создаёт спор. Частичный уникальный индекс в БД гарантирует
// не более одного незавершённого спора на сделку.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (transaction_id, payment_id, initiator_id, type, status, description, evidence_photos, response_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		d.TransactionID, d.PaymentID, d.InitiatorID, d.Type, d.Status, d.Description, d.EvidencePhotos, d.ResponseDeadline,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateDispute
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// GetOpenByTransactionID возвращает незавершённый спор сделки.
func (r *DisputeRepository) GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes
		WHERE transaction_id = $1 AND status NOT IN ('resolved', 'closed')
	`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// ListByUser возвращает споры по сделкам пользователя.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN transactions t ON d.transaction_id = t.id
		WHERE t.buyer_id = $1 OR t.seller_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// ListEscalated возвращает эскалированные споры для очереди модераторов.
func (r *DisputeRepository) ListEscalated(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status IN ('escalated', 'in_mediation')
		ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	return disputes, err
}

// SetSellerResponse выполняет guarded-переход open -> seller_response.
func (r *DisputeRepository) SetSellerResponse(ctx context.Context, id uuid.UUID, response string) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		UPDATE disputes SET status = 'seller_response', seller_response = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING *
	`, id, response)
	return r.guarded(ctx, id, &d, err, "set seller response")
}

// Escalate выполняет guarded-переход open|seller_response -> escalated.
func (r *DisputeRepository) Escalate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		UPDATE disputes SET status = 'escalated', updated_at = NOW()
		WHERE id = $1 AND status IN ('open', 'seller_response')
		RETURNING *
	`, id)
	return r.guarded(ctx, id, &d, err, "escalate")
}

// Claim закрепляет спор за модератором: escalated -> in_mediation.
func (r *DisputeRepository) Claim(ctx context.Context, id, mediatorID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		UPDATE disputes SET status = 'in_mediation', mediator_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'escalated'
		RETURNING *
	`, id, mediatorID)
	return r.guarded(ctx, id, &d, err, "claim")
}

// Resolve выполняет guarded-переход escalated|in_mediation -> resolved
// и одной транзакцией с ним создаёт заявку на движение денег, если
// решение его требует. Без атомарности спор мог бы остаться resolved
// без заявки при сбое вставки.
func (r *DisputeRepository) Resolve(ctx context.Context, id, mediatorID uuid.UUID, resolutionType string, amount *decimal.Decimal, notes *string, rel *models.PendingRelease) (*models.Dispute, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve begin %w", err)
	}
	defer tx.Rollback()

	var d models.Dispute
	err = tx.GetContext(ctx, &d, `
		UPDATE disputes
		SET status = 'resolved', resolution_type = $2, resolution_amount = $3,
		    resolution_notes = $4, mediator_id = $5, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('escalated', 'in_mediation')
		RETURNING *
	`, id, resolutionType, amount, notes, mediatorID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve %w", err)
	}

	if rel != nil {
		if err := insertRelease(ctx, tx, rel); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispute repository: resolve commit %w", err)
	}
	return &d, nil
}

// Close выполняет guarded-переход resolved -> closed.
func (r *DisputeRepository) Close(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		UPDATE disputes SET status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'resolved'
		RETURNING *
	`, id)
	return r.guarded(ctx, id, &d, err, "close")
}

// CreateMessage добавляет сообщение в ветку спора. Сообщения append-only.
func (r *DisputeRepository) CreateMessage(ctx context.Context, m *models.DisputeMessage) error {
	query := `
		INSERT INTO dispute_messages (dispute_id, author_id, body, photos, internal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		m.DisputeID, m.AuthorID, m.Body, m.Photos, m.Internal,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: create message %w", err)
	}
	return nil
}

// ListMessages возвращает сообщения спора в порядке создания.
// includeInternal false скрывает staff-only сообщения от участников.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID, includeInternal bool) ([]models.DisputeMessage, error) {
	var messages []models.DisputeMessage
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM dispute_messages
		WHERE dispute_id = $1 AND (internal = FALSE OR $2)
		ORDER BY created_at ASC
	`, disputeID, includeInternal)
	return messages, err
}

// guarded различает "спор не найден" и "статус уже другой" для условных обновлений.
func (r *DisputeRepository) guarded(ctx context.Context, id uuid.UUID, d *models.Dispute, err error, op string) (*models.Dispute, error) {
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: %s %w", op, err)
	}
	return d, nil
}
