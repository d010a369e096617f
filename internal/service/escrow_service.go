package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
)

var (
	ErrInvalidAmount    = errors.New("сумма должна быть положительной")
	ErrInvalidMethod    = errors.New("неизвестный способ оплаты")
	ErrNotBuyer         = errors.New("инициировать оплату может только покупатель")
	ErrNotHubForPayment = errors.New("принять средства может только хаб сделки")
)

// EscrowRepository описывает зависимости Ledger от слоя хранилища.
type EscrowRepository interface {
	Create(ctx context.Context, p *models.EscrowPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error)
	GetActiveByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.EscrowPayment, error)
	Hold(ctx context.Context, paymentID, actorID uuid.UUID) (*models.EscrowPayment, error)
	Cancel(ctx context.Context, paymentID uuid.UUID) (*models.EscrowPayment, error)
	ListEntries(ctx context.Context, paymentID uuid.UUID) ([]models.EscrowEntry, error)
}

// EscrowTransactionReader отдаёт сделку для проверок сторон.
type EscrowTransactionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*models.Transaction, error)
}

// EscrowService — Escrow Ledger: владеет платёжными записями и их переходами.
// Release и refund здесь намеренно отсутствуют: исполнять их может только
// Pending-Release Gate после двухфазного подтверждения.
type EscrowService struct {
	notifier
	repo          EscrowRepository
	transactions  EscrowTransactionReader
	scorer        RiskScorer
	riskThreshold int
}

// NewEscrowService создаёт Ledger.
func NewEscrowService(repo EscrowRepository, transactions EscrowTransactionReader, scorer RiskScorer, riskThreshold int) *EscrowService {
	return &EscrowService{
		repo:          repo,
		transactions:  transactions,
		scorer:        scorer,
		riskThreshold: riskThreshold,
	}
}

// Initiate создаёт escrow-платёж по сделке. Риск считается в момент
// создания; оценка выше порога помечает платёж на ручную проверку.
func (s *EscrowService) Initiate(ctx context.Context, transactionID, actorID uuid.UUID, amount decimal.Decimal, method string) (*models.EscrowPayment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if _, ok := models.ValidPaymentMethods[method]; !ok {
		return nil, ErrInvalidMethod
	}

	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != actorID {
		return nil, ErrNotBuyer
	}

	payment := &models.EscrowPayment{
		TransactionID: transactionID,
		Amount:        amount.Round(2),
		Method:        method,
		Status:        models.EscrowStatusPending,
	}

	if s.scorer != nil {
		score := s.scorer.Score(ctx, t.BuyerID, amount, method)
		payment.RiskScore = &score
		payment.FlaggedReview = score > s.riskThreshold
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}

	s.notify(t.SellerID, models.EventEscrowInitiated, payment)
	return payment, nil
}

// Hold переводит платёж pending -> held. Доступно только хабу сделки
// (или админу); для сделки без хаба — только админу.
func (s *EscrowService) Hold(ctx context.Context, paymentID, actorID uuid.UUID, actorRole string) (*models.EscrowPayment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	t, err := s.transactions.GetByID(ctx, payment.TransactionID)
	if err != nil {
		return nil, err
	}
	if !canActForHub(t, actorID, actorRole) {
		return nil, ErrNotHubForPayment
	}

	payment, err = s.repo.Hold(ctx, paymentID, actorID)
	if err != nil {
		return nil, err
	}

	// Приём денег — веха сделки: agreed -> in_progress.
	// Конфликт статуса здесь не ошибка, сделка могла уже двигаться.
	if _, err := s.transactions.UpdateStatus(ctx, t.ID, models.TransactionStatusAgreed, models.TransactionStatusInProgress); err != nil && !errors.Is(err, repository.ErrStateConflict) {
		return nil, fmt.Errorf("escrow service: advance transaction %w", err)
	}

	s.notify(t.BuyerID, models.EventEscrowHeld, payment)
	s.notify(t.SellerID, models.EventEscrowHeld, payment)
	return payment, nil
}

// GetPayment возвращает платёж по идентификатору.
func (s *EscrowService) GetPayment(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetActivePayment возвращает активный платёж сделки.
func (s *EscrowService) GetActivePayment(ctx context.Context, transactionID uuid.UUID) (*models.EscrowPayment, error) {
	return s.repo.GetActiveByTransactionID(ctx, transactionID)
}

// ListEntries возвращает журнал движений по платежу.
func (s *EscrowService) ListEntries(ctx context.Context, paymentID uuid.UUID) ([]models.EscrowEntry, error) {
	return s.repo.ListEntries(ctx, paymentID)
}

// canActForHub проверяет право действовать от имени хаба сделки.
func canActForHub(t *models.Transaction, actorID uuid.UUID, actorRole string) bool {
	if actorRole == models.RoleAdmin {
		return true
	}
	if actorRole != models.RoleHub {
		return false
	}
	return t.HubID != nil && *t.HubID == actorID
}
