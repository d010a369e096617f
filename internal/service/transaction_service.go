package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
	"github.com/tcgbazaar/escrow-backend/internal/validation"
)

var (
	ErrSameParty           = errors.New("покупатель и продавец должны быть разными пользователями")
	ErrNotHubUser          = errors.New("указанный хаб не является хабом")
	ErrOpenDispute         = errors.New("завершение невозможно при открытом споре")
	ErrPackageNotDelivered = errors.New("завершение невозможно до вручения посылки")
	ErrNotHeldForComplete  = errors.New("завершение возможно только при платеже на удержании")
	ErrNotCancellable      = errors.New("сделку с платежом на удержании нельзя отменить")
)

// TransactionRepository описывает зависимости Orchestrator от слоя хранилища.
type TransactionRepository interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*models.Transaction, error)
	Complete(ctx context.Context, id uuid.UUID, rel *models.PendingRelease) (*models.Transaction, error)
}

// TransactionUserReader отдаёт пользователей для проверки сторон сделки.
type TransactionUserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TransactionDisputeReader отдаёт открытый спор сделки.
type TransactionDisputeReader interface {
	GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error)
}

// TransactionPackageReader отдаёт посылку сделки.
type TransactionPackageReader interface {
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Package, error)
}

// TransactionEscrowCanceller отменяет неиспользованный платёж при отмене сделки.
type TransactionEscrowCanceller interface {
	Cancel(ctx context.Context, paymentID uuid.UUID) (*models.EscrowPayment, error)
}

// TransactionAggregate — агрегатное состояние сделки: единая точка
// чтения для внешних слоёв.
type TransactionAggregate struct {
	Transaction *models.Transaction   `json:"transaction"`
	Payment     *models.EscrowPayment `json:"payment,omitempty"`
	Dispute     *models.Dispute       `json:"dispute,omitempty"`
	Package     *models.Package       `json:"package,omitempty"`
}

// TransactionService — Transaction Orchestrator: жизненный цикл сделки.
// Тонкий координатор: бизнес-правила живут в подчинённых машинах,
// здесь только секвенирование вех.
type TransactionService struct {
	notifier
	repo     TransactionRepository
	users    TransactionUserReader
	payments DisputePaymentReader
	escrow   TransactionEscrowCanceller
	disputes TransactionDisputeReader
	packages TransactionPackageReader
	releases ReleasePreparer
}

// NewTransactionService создаёт Orchestrator.
func NewTransactionService(
	repo TransactionRepository,
	users TransactionUserReader,
	payments DisputePaymentReader,
	escrow TransactionEscrowCanceller,
	disputes TransactionDisputeReader,
	packages TransactionPackageReader,
	releases ReleasePreparer,
) *TransactionService {
	return &TransactionService{
		repo:     repo,
		users:    users,
		payments: payments,
		escrow:   escrow,
		disputes: disputes,
		packages: packages,
		releases: releases,
	}
}

// Create регистрирует согласованную сделку. Вызывается, когда обе
// стороны приняли условия; создаётся сразу в статусе agreed.
func (s *TransactionService) Create(ctx context.Context, buyerID, sellerID uuid.UUID, hubID *uuid.UUID, title string, scheduledAt *time.Time) (*models.Transaction, error) {
	if err := validation.ValidateLength("название сделки", title, validation.MinDealTitleLength, validation.MaxDealTitleLength); err != nil {
		return nil, err
	}
	if buyerID == sellerID {
		return nil, ErrSameParty
	}

	if _, err := s.users.GetByID(ctx, sellerID); err != nil {
		return nil, err
	}
	if hubID != nil {
		hub, err := s.users.GetByID(ctx, *hubID)
		if err != nil {
			return nil, err
		}
		if hub.Role != models.RoleHub {
			return nil, ErrNotHubUser
		}
	}

	t := &models.Transaction{
		BuyerID:     buyerID,
		SellerID:    sellerID,
		HubID:       hubID,
		Status:      models.TransactionStatusAgreed,
		Title:       title,
		ScheduledAt: scheduledAt,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.notify(sellerID, models.EventDealCreated, t)
	return t, nil
}

// Get возвращает сделку с проверкой доступа.
func (s *TransactionService) Get(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isTransactionViewer(t, actorID, actorRole) {
		return nil, ErrNotParticipant
	}
	return t, nil
}

// GetAggregate собирает агрегатное состояние сделки: платёж, спор, посылка.
// Отсутствие подчинённой записи не ошибка.
func (s *TransactionService) GetAggregate(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*TransactionAggregate, error) {
	t, err := s.Get(ctx, id, actorID, actorRole)
	if err != nil {
		return nil, err
	}

	agg := &TransactionAggregate{Transaction: t}

	if payment, err := s.payments.GetActiveByTransactionID(ctx, id); err == nil {
		agg.Payment = payment
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}

	if dispute, err := s.disputes.GetOpenByTransactionID(ctx, id); err == nil {
		markDeadline(dispute)
		agg.Dispute = dispute
	} else if !errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, err
	}

	if pkg, err := s.packages.GetByTransactionID(ctx, id); err == nil {
		agg.Package = pkg
	} else if !errors.Is(err, repository.ErrPackageNotFound) {
		return nil, err
	}

	return agg, nil
}

// ListMine возвращает сделки пользователя.
func (s *TransactionService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Complete завершает сделку: in_progress -> completed. Требования:
// платёж на удержании, нет открытого спора, для сделки через хаб —
// посылка вручена. Завершение порождает заявку на штатную выплату
// продавцу; деньги двинутся после подтверждения в Gate.
func (s *TransactionService) Complete(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != actorID && actorRole != models.RoleAdmin {
		return nil, ErrNotParticipant
	}

	payment, err := s.payments.GetActiveByTransactionID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, ErrNotHeldForComplete
		}
		return nil, err
	}
	if payment.Status != models.EscrowStatusHeld {
		return nil, ErrNotHeldForComplete
	}

	if _, err := s.disputes.GetOpenByTransactionID(ctx, id); err == nil {
		return nil, ErrOpenDispute
	} else if !errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, err
	}

	if t.HubID != nil {
		pkg, err := s.packages.GetByTransactionID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrPackageNotFound) {
				return nil, ErrPackageNotDelivered
			}
			return nil, err
		}
		if pkg.Status != models.PackageStatusDelivered {
			return nil, ErrPackageNotDelivered
		}
	}

	payout := NewSellerPayout(payment.ID, t.ID, t.SellerID, payment.Amount)
	if err := s.releases.Prepare(payout); err != nil {
		return nil, err
	}

	// Переход completed и заявка на выплату фиксируются одной транзакцией.
	t, err = s.repo.Complete(ctx, id, payout)
	if err != nil {
		return nil, err
	}
	s.releases.Announce(payout)

	s.notify(t.SellerID, models.EventDealCompleted, t)
	return t, nil
}

// Cancel отменяет сделку до приёма денег: agreed -> cancelled.
// Платёж в статусе pending отменяется вместе со сделкой; удержанные
// деньги отмене не подлежат, для них существует спор.
func (s *TransactionService) Cancel(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != actorID && t.SellerID != actorID && actorRole != models.RoleAdmin {
		return nil, ErrNotParticipant
	}

	payment, err := s.payments.GetActiveByTransactionID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}
	if payment != nil && payment.Status == models.EscrowStatusHeld {
		return nil, ErrNotCancellable
	}

	t, err = s.repo.UpdateStatus(ctx, id, models.TransactionStatusAgreed, models.TransactionStatusCancelled)
	if err != nil {
		return nil, err
	}

	if payment != nil && payment.Status == models.EscrowStatusPending {
		if _, err := s.escrow.Cancel(ctx, payment.ID); err != nil && !errors.Is(err, repository.ErrStateConflict) {
			return nil, err
		}
	}

	s.notify(counterparty(t, actorID), models.EventDealCancelled, t)
	return t, nil
}

// isTransactionViewer проверяет право читать сделку.
func isTransactionViewer(t *models.Transaction, actorID uuid.UUID, actorRole string) bool {
	if actorRole == models.RoleAdmin {
		return true
	}
	if t.BuyerID == actorID || t.SellerID == actorID {
		return true
	}
	return t.HubID != nil && *t.HubID == actorID
}
