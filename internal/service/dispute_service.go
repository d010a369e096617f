package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/validation"
)

var (
	ErrNotParticipant       = errors.New("действие доступно только сторонам сделки")
	ErrNotSeller            = errors.New("ответить на спор может только продавец")
	ErrPaymentNotHeld       = errors.New("спор возможен только по платежу на удержании")
	ErrInvalidDisputeType   = errors.New("неизвестный тип спора")
	ErrInvalidResolution    = errors.New("неизвестный тип решения по спору")
	ErrInvalidPartialAmount = errors.New("сумма частичного возврата должна быть больше нуля и не превышать сумму платежа")
	ErrDisputeClosed        = errors.New("спор завершён, новые сообщения недоступны")
	ErrInternalNotAllowed   = errors.New("внутренние заметки доступны только модераторам")
)

// DisputeRepository описывает зависимости Workflow от слоя хранилища.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListEscalated(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	SetSellerResponse(ctx context.Context, id uuid.UUID, response string) (*models.Dispute, error)
	Escalate(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	Claim(ctx context.Context, id, mediatorID uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, id, mediatorID uuid.UUID, resolutionType string, amount *decimal.Decimal, notes *string, rel *models.PendingRelease) (*models.Dispute, error)
	Close(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	CreateMessage(ctx context.Context, m *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID, includeInternal bool) ([]models.DisputeMessage, error)
}

// ReleasePreparer валидирует заявку на движение денег перед атомарной
// записью вместе с порождающим её переходом и анонсирует её после
// фиксации.
type ReleasePreparer interface {
	Prepare(rel *models.PendingRelease) error
	Announce(rel *models.PendingRelease)
}

// DisputePaymentReader отдаёт платежи для проверок спора.
type DisputePaymentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error)
	GetActiveByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.EscrowPayment, error)
}

// DisputeService — Dispute Workflow: претензии, медиация и решения.
// Решение спора никогда не двигает деньги само: оно лишь порождает
// заявку в Gate, деньги движутся после двухфазного подтверждения.
type DisputeService struct {
	notifier
	repo           DisputeRepository
	transactions   EscrowTransactionReader
	payments       DisputePaymentReader
	releases       ReleasePreparer
	responseWindow time.Duration
}

// NewDisputeService создаёт Workflow.
func NewDisputeService(repo DisputeRepository, transactions EscrowTransactionReader, payments DisputePaymentReader, releases ReleasePreparer, responseWindow time.Duration) *DisputeService {
	return &DisputeService{
		repo:           repo,
		transactions:   transactions,
		payments:       payments,
		releases:       releases,
		responseWindow: responseWindow,
	}
}

// Open открывает спор по сделке. Разрешён только сторонам сделки
// и только пока платёж на удержании.
func (s *DisputeService) Open(ctx context.Context, transactionID, initiatorID uuid.UUID, disputeType, description string, photos []string) (*models.Dispute, error) {
	if _, ok := models.ValidDisputeTypes[disputeType]; !ok {
		return nil, ErrInvalidDisputeType
	}
	if err := validation.ValidateLength("описание", description, validation.MinDisputeDescriptionLength, validation.MaxDisputeDescriptionLength); err != nil {
		return nil, err
	}
	if err := validation.ValidatePhotoURLs("фотографии", photos); err != nil {
		return nil, err
	}

	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != initiatorID && t.SellerID != initiatorID {
		return nil, ErrNotParticipant
	}

	payment, err := s.payments.GetActiveByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.EscrowStatusHeld {
		return nil, ErrPaymentNotHeld
	}

	d := &models.Dispute{
		TransactionID:    transactionID,
		PaymentID:        payment.ID,
		InitiatorID:      initiatorID,
		Type:             disputeType,
		Status:           models.DisputeStatusOpen,
		Description:      description,
		EvidencePhotos:   photos,
		ResponseDeadline: time.Now().Add(s.responseWindow),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	s.notify(counterparty(t, initiatorID), models.EventDisputeOpened, d)
	return d, nil
}

// Get возвращает спор с проверкой доступа участника.
func (s *DisputeService) Get(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Dispute, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorRole != models.RoleAdmin {
		t, err := s.transactions.GetByID(ctx, d.TransactionID)
		if err != nil {
			return nil, err
		}
		if t.BuyerID != actorID && t.SellerID != actorID {
			return nil, ErrNotParticipant
		}
	}
	markDeadline(d)
	return d, nil
}

// ListMine возвращает споры по сделкам пользователя.
func (s *DisputeService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	disputes, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range disputes {
		markDeadline(&disputes[i])
	}
	return disputes, nil
}

// ListEscalated возвращает очередь эскалированных споров для модераторов.
func (s *DisputeService) ListEscalated(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	disputes, err := s.repo.ListEscalated(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range disputes {
		markDeadline(&disputes[i])
	}
	return disputes, nil
}

// Respond фиксирует ответ продавца: open -> seller_response.
// Просроченный дедлайн не запрещает ответ, он лишь даёт покупателю
// право на эскалацию.
func (s *DisputeService) Respond(ctx context.Context, id, actorID uuid.UUID, response string) (*models.Dispute, error) {
	if err := validation.ValidateLength("ответ", response, validation.MinMessageLength, validation.MaxMessageLength); err != nil {
		return nil, err
	}

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.transactions.GetByID(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.SellerID != actorID {
		return nil, ErrNotSeller
	}

	d, err = s.repo.SetSellerResponse(ctx, id, response)
	if err != nil {
		return nil, err
	}

	markDeadline(d)
	s.notify(t.BuyerID, models.EventDisputeResponded, d)
	return d, nil
}

// Escalate передаёт спор модераторам: open|seller_response -> escalated.
// Доступно сторонам сделки; автоматической эскалации по дедлайну нет.
func (s *DisputeService) Escalate(ctx context.Context, id, actorID uuid.UUID) (*models.Dispute, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.transactions.GetByID(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != actorID && t.SellerID != actorID {
		return nil, ErrNotParticipant
	}

	d, err = s.repo.Escalate(ctx, id)
	if err != nil {
		return nil, err
	}

	markDeadline(d)
	s.notify(counterparty(t, actorID), models.EventDisputeEscalated, d)
	return d, nil
}

// Claim закрепляет эскалированный спор за модератором.
func (s *DisputeService) Claim(ctx context.Context, id, mediatorID uuid.UUID) (*models.Dispute, error) {
	d, err := s.repo.Claim(ctx, id, mediatorID)
	if err != nil {
		return nil, err
	}
	markDeadline(d)
	return d, nil
}

// Resolve выносит решение по спору и порождает заявку на движение
// денег, если решение его требует. Решение rejected терминально и
// не порождает заявок.
func (s *DisputeService) Resolve(ctx context.Context, id, mediatorID uuid.UUID, resolutionType string, amount *decimal.Decimal, notes *string) (*models.Dispute, error) {
	if _, ok := models.ValidResolutionTypes[resolutionType]; !ok {
		return nil, ErrInvalidResolution
	}

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.GetByID(ctx, d.PaymentID)
	if err != nil {
		return nil, err
	}

	releaseType, releaseAmount, err := resolutionRelease(resolutionType, amount, payment)
	if err != nil {
		return nil, err
	}
	// Сумма решения определена только для частичного возврата; для
	// остальных типов стороннее значение не сохраняется.
	if resolutionType != models.ResolutionRefundPartial {
		amount = nil
	}

	t, err := s.transactions.GetByID(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}

	var rel *models.PendingRelease
	if releaseType != "" {
		rel = &models.PendingRelease{
			Type:          releaseType,
			Amount:        releaseAmount,
			Reason:        "Решение по спору: " + resolutionType,
			RecipientID:   t.BuyerID,
			PaymentID:     &d.PaymentID,
			TransactionID: &d.TransactionID,
			DisputeID:     &d.ID,
		}
		if err := s.releases.Prepare(rel); err != nil {
			return nil, err
		}
	}

	// Переход resolved и заявка фиксируются одной транзакцией хранилища.
	d, err = s.repo.Resolve(ctx, id, mediatorID, resolutionType, amount, notes, rel)
	if err != nil {
		return nil, err
	}
	if rel != nil {
		s.releases.Announce(rel)
	}

	markDeadline(d)
	s.notify(t.BuyerID, models.EventDisputeResolved, d)
	s.notify(t.SellerID, models.EventDisputeResolved, d)
	return d, nil
}

// Close закрывает разрешённый спор: resolved -> closed.
func (s *DisputeService) Close(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.repo.Close(ctx, id)
	if err != nil {
		return nil, err
	}
	markDeadline(d)
	return d, nil
}

// SendMessage добавляет сообщение в ветку спора. Ветка закрывается
// вместе со спором; внутренние заметки доступны только модераторам.
func (s *DisputeService) SendMessage(ctx context.Context, disputeID, authorID uuid.UUID, authorRole, body string, photos []string, internal bool) (*models.DisputeMessage, error) {
	if err := validation.ValidateLength("сообщение", body, validation.MinMessageLength, validation.MaxMessageLength); err != nil {
		return nil, err
	}
	if err := validation.ValidatePhotoURLs("фотографии", photos); err != nil {
		return nil, err
	}
	if internal && authorRole != models.RoleAdmin {
		return nil, ErrInternalNotAllowed
	}

	d, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if models.IsDisputeTerminal(d.Status) {
		return nil, ErrDisputeClosed
	}

	t, err := s.transactions.GetByID(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if authorRole != models.RoleAdmin && t.BuyerID != authorID && t.SellerID != authorID {
		return nil, ErrNotParticipant
	}

	m := &models.DisputeMessage{
		DisputeID: disputeID,
		AuthorID:  authorID,
		Body:      body,
		Photos:    photos,
		Internal:  internal,
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	if !internal {
		if t.BuyerID == authorID {
			s.notify(t.SellerID, models.EventDisputeMessage, m)
		} else if t.SellerID == authorID {
			s.notify(t.BuyerID, models.EventDisputeMessage, m)
		} else {
			s.notify(t.BuyerID, models.EventDisputeMessage, m)
			s.notify(t.SellerID, models.EventDisputeMessage, m)
		}
	}
	return m, nil
}

// ListMessages возвращает ветку спора. Участники не видят внутренних заметок.
func (s *DisputeService) ListMessages(ctx context.Context, disputeID, actorID uuid.UUID, actorRole string) ([]models.DisputeMessage, error) {
	if _, err := s.Get(ctx, disputeID, actorID, actorRole); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, disputeID, actorRole == models.RoleAdmin)
}

// resolutionRelease определяет, какую заявку порождает решение.
// Пустой тип означает, что движение денег не требуется.
func resolutionRelease(resolutionType string, amount *decimal.Decimal, payment *models.EscrowPayment) (string, decimal.Decimal, error) {
	switch resolutionType {
	case models.ResolutionRefundFull, models.ResolutionInFavorBuyer:
		return models.ReleaseTypeRefundFull, payment.Amount, nil
	case models.ResolutionRefundPartial:
		if amount == nil || !amount.IsPositive() || amount.GreaterThan(payment.Amount) {
			return "", decimal.Decimal{}, ErrInvalidPartialAmount
		}
		return models.ReleaseTypeRefundPartial, amount.Round(2), nil
	default:
		return "", decimal.Decimal{}, nil
	}
}

// counterparty возвращает вторую сторону сделки.
func counterparty(t *models.Transaction, actorID uuid.UUID) uuid.UUID {
	if t.BuyerID == actorID {
		return t.SellerID
	}
	return t.BuyerID
}

// markDeadline вычисляет флаг просроченного дедлайна ответа продавца.
func markDeadline(d *models.Dispute) {
	d.ResponseDeadlinePassed = d.Status == models.DisputeStatusOpen && time.Now().After(d.ResponseDeadline)
}
