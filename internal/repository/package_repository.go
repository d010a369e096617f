package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

type PackageRepository struct {
	db *sqlx.DB
}

func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create создаёт кастодиальную запись для сделки, идущей через хаб.
func (r *PackageRepository) Create(ctx context.Context, p *models.Package) error {
	query := `
		INSERT INTO packages (transaction_id, hub_id, status, inbound_tracking)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.TransactionID, p.HubID, p.Status, p.InboundTracking,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("package repository: create %w", err)
	}
	return nil
}

// GetByID возвращает посылку по идентификатору.
func (r *PackageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	var p models.Package
	err := r.db.GetContext(ctx, &p, `SELECT * FROM packages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPackageNotFound
	}
	return &p, err
}

// GetByTransactionID возвращает посылку сделки.
func (r *PackageRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Package, error) {
	var p models.Package
	err := r.db.GetContext(ctx, &p, `SELECT * FROM packages WHERE transaction_id = $1`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPackageNotFound
	}
	return &p, err
}

// MarkInTransit отмечает отправку на хаб: pending -> in_transit.
func (r *PackageRepository) MarkInTransit(ctx context.Context, id, actorID uuid.UUID, inboundTracking string) (*models.Package, error) {
	return r.transition(ctx, id, actorID, nil, `
		UPDATE packages SET status = 'in_transit', inbound_tracking = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, inboundTracking)
}

// MarkReceived отмечает приём на хабе: in_transit -> received.
// Единственный идемпотентный шаг цепочки: повторный скан перевозчика
// возвращает уже принятую посылку без ошибки и без новой строки аудита.
func (r *PackageRepository) MarkReceived(ctx context.Context, id, actorID uuid.UUID) (*models.Package, error) {
	p, err := r.transition(ctx, id, actorID, nil, `
		UPDATE packages SET status = 'received', received_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'in_transit'
		RETURNING *
	`, id)
	if errors.Is(err, ErrStateConflict) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == models.PackageStatusReceived {
			return current, nil
		}
		return nil, ErrStateConflict
	}
	return p, err
}

// MarkVerified отмечает успешную проверку: received -> verified.
// Фотографии проверки обязательны, это контролирует сервис.
func (r *PackageRepository) MarkVerified(ctx context.Context, id, actorID uuid.UUID, photos []string) (*models.Package, error) {
	return r.transition(ctx, id, actorID, nil, `
		UPDATE packages SET status = 'verified', verify_photos = $2, verified_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'received'
		RETURNING *
	`, id, pq.StringArray(photos))
}

// MarkReturned отмечает провал проверки: received|verified -> returned.
// Если возврат требует возврата денег, заявка rel пишется той же
// транзакцией, что и переход.
func (r *PackageRepository) MarkReturned(ctx context.Context, id, actorID uuid.UUID, reason string, rel *models.PendingRelease) (*models.Package, error) {
	return r.transitionWithRelease(ctx, id, actorID, &reason, rel, `
		UPDATE packages SET status = 'returned', return_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('received', 'verified')
		RETURNING *
	`, id, reason)
}

// MarkShipped отмечает отправку получателю: verified -> shipped.
func (r *PackageRepository) MarkShipped(ctx context.Context, id, actorID uuid.UUID, outboundTracking string) (*models.Package, error) {
	return r.transition(ctx, id, actorID, nil, `
		UPDATE packages SET status = 'shipped', outbound_tracking = $2, shipped_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'verified'
		RETURNING *
	`, id, outboundTracking)
}

// MarkDelivered отмечает вручение: shipped -> delivered (терминальный).
func (r *PackageRepository) MarkDelivered(ctx context.Context, id, actorID uuid.UUID) (*models.Package, error) {
	return r.transition(ctx, id, actorID, nil, `
		UPDATE packages SET status = 'delivered', delivered_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'shipped'
		RETURNING *
	`, id)
}

// ListAudit возвращает журнал переходов посылки.
func (r *PackageRepository) ListAudit(ctx context.Context, packageID uuid.UUID) ([]models.PackageAuditEntry, error) {
	var entries []models.PackageAuditEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM package_audit WHERE package_id = $1 ORDER BY created_at ASC
	`, packageID)
	return entries, err
}

// transition выполняет guarded-обновление и пишет строку аудита одной транзакцией.
func (r *PackageRepository) transition(ctx context.Context, id, actorID uuid.UUID, note *string, query string, args ...interface{}) (*models.Package, error) {
	return r.transitionWithRelease(ctx, id, actorID, note, nil, query, args...)
}

// transitionWithRelease — transition плюс опциональная заявка на движение
// денег в той же транзакции.
func (r *PackageRepository) transitionWithRelease(ctx context.Context, id, actorID uuid.UUID, note *string, rel *models.PendingRelease, query string, args ...interface{}) (*models.Package, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Статус до обновления нужен для строки аудита.
	var before string
	err = tx.GetContext(ctx, &before, `SELECT status FROM packages WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("package repository: lock %w", err)
	}

	var p models.Package
	err = tx.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("package repository: transition %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO package_audit (package_id, actor_id, from_status, to_status, note)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, actorID, before, p.Status, note)
	if err != nil {
		return nil, fmt.Errorf("package repository: audit %w", err)
	}

	if rel != nil {
		if err := insertRelease(ctx, tx, rel); err != nil {
			return nil, err
		}
	}

	return &p, tx.Commit()
}
