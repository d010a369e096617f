package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
	"github.com/tcgbazaar/escrow-backend/internal/validation"
)

var (
	ErrNotHubForPackage = errors.New("действие доступно только хабу посылки")
	ErrMissingEvidence  = errors.New("подтверждение требует хотя бы одну фотографию")
	ErrMissingTracking  = errors.New("трек-номер обязателен")
	ErrEmptyReturn      = errors.New("причина возврата обязательна")
	ErrHubNotAssigned   = errors.New("сделка не маршрутизируется через хаб")
)

// PackageRepository описывает зависимости Tracker от слоя хранилища.
type PackageRepository interface {
	Create(ctx context.Context, p *models.Package) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Package, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Package, error)
	MarkInTransit(ctx context.Context, id, actorID uuid.UUID, inboundTracking string) (*models.Package, error)
	MarkReceived(ctx context.Context, id, actorID uuid.UUID) (*models.Package, error)
	MarkVerified(ctx context.Context, id, actorID uuid.UUID, photos []string) (*models.Package, error)
	MarkReturned(ctx context.Context, id, actorID uuid.UUID, reason string, rel *models.PendingRelease) (*models.Package, error)
	MarkShipped(ctx context.Context, id, actorID uuid.UUID, outboundTracking string) (*models.Package, error)
	MarkDelivered(ctx context.Context, id, actorID uuid.UUID) (*models.Package, error)
	ListAudit(ctx context.Context, packageID uuid.UUID) ([]models.PackageAuditEntry, error)
}

// PackageService — Custodial Package Tracker: цепочка владения посылкой
// при маршрутизации сделки через проверочный хаб. Переходы только вперёд,
// каждый переход попадает в аудит.
type PackageService struct {
	notifier
	repo         PackageRepository
	transactions EscrowTransactionReader
	payments     DisputePaymentReader
	releases     ReleasePreparer
}

// NewPackageService создаёт Tracker.
func NewPackageService(repo PackageRepository, transactions EscrowTransactionReader, payments DisputePaymentReader, releases ReleasePreparer) *PackageService {
	return &PackageService{
		repo:         repo,
		transactions: transactions,
		payments:     payments,
		releases:     releases,
	}
}

// Register заводит посылку по сделке с хабом. Вызывается продавцом.
func (s *PackageService) Register(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Package, error) {
	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.SellerID != actorID {
		return nil, ErrNotParticipant
	}
	if t.HubID == nil {
		return nil, ErrHubNotAssigned
	}

	p := &models.Package{
		TransactionID: transactionID,
		HubID:         *t.HubID,
		Status:        models.PackageStatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get возвращает посылку по идентификатору.
func (s *PackageService) Get(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByTransaction возвращает посылку сделки.
func (s *PackageService) GetByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Package, error) {
	return s.repo.GetByTransactionID(ctx, transactionID)
}

// Ship фиксирует отправку продавцом в хаб: pending -> in_transit.
func (s *PackageService) Ship(ctx context.Context, id, actorID uuid.UUID, tracking string) (*models.Package, error) {
	if err := validateTracking(tracking); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.transactions.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.SellerID != actorID {
		return nil, ErrNotParticipant
	}

	return s.repo.MarkInTransit(ctx, id, actorID, tracking)
}

// Receive фиксирует приём посылки хабом: in_transit -> received.
// Повторный вызов идемпотентен: сканер на складе может сработать дважды.
func (s *PackageService) Receive(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Package, error) {
	p, err := s.hubGuard(ctx, id, actorID, actorRole)
	if err != nil {
		return nil, err
	}

	p, err = s.repo.MarkReceived(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	t, err := s.transactions.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	s.notify(t.BuyerID, models.EventPackageReceived, p)
	s.notify(t.SellerID, models.EventPackageReceived, p)
	return p, nil
}

// Verify фиксирует проверку содержимого хабом: received -> verified.
// Без фотоподтверждения переход запрещён.
func (s *PackageService) Verify(ctx context.Context, id, actorID uuid.UUID, actorRole string, photos []string) (*models.Package, error) {
	if len(photos) == 0 {
		return nil, ErrMissingEvidence
	}
	if err := validation.ValidatePhotoURLs("фотографии проверки", photos); err != nil {
		return nil, err
	}

	if _, err := s.hubGuard(ctx, id, actorID, actorRole); err != nil {
		return nil, err
	}

	p, err := s.repo.MarkVerified(ctx, id, actorID, photos)
	if err != nil {
		return nil, err
	}

	t, err := s.transactions.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	s.notify(t.BuyerID, models.EventPackageVerified, p)
	s.notify(t.SellerID, models.EventPackageVerified, p)
	return p, nil
}

// Return отправляет посылку обратно продавцу: received|verified -> returned.
// Если платёж ещё на удержании, возврат порождает заявку на полный
// возврат покупателю — деньги двинутся после подтверждения в Gate.
func (s *PackageService) Return(ctx context.Context, id, actorID uuid.UUID, actorRole, reason string) (*models.Package, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReturn
	}
	if err := validation.ValidateLength("причина возврата", reason, validation.MinRejectReasonLength, validation.MaxRejectReasonLength); err != nil {
		return nil, err
	}

	p, err := s.hubGuard(ctx, id, actorID, actorRole)
	if err != nil {
		return nil, err
	}
	t, err := s.transactions.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.GetActiveByTransactionID(ctx, p.TransactionID)
	if err != nil && !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}

	var rel *models.PendingRelease
	if payment != nil && payment.Status == models.EscrowStatusHeld {
		rel = &models.PendingRelease{
			Type:          models.ReleaseTypeRefundFull,
			Amount:        payment.Amount,
			Reason:        "Возврат посылки хабом: " + reason,
			RecipientID:   t.BuyerID,
			PaymentID:     &payment.ID,
			TransactionID: &t.ID,
		}
		if err := s.releases.Prepare(rel); err != nil {
			return nil, err
		}
	}

	// Переход returned и заявка на возврат фиксируются одной транзакцией.
	p, err = s.repo.MarkReturned(ctx, id, actorID, reason, rel)
	if err != nil {
		return nil, err
	}
	if rel != nil {
		s.releases.Announce(rel)
	}

	s.notify(t.BuyerID, models.EventPackageReturned, p)
	s.notify(t.SellerID, models.EventPackageReturned, p)
	return p, nil
}

// Forward фиксирует отправку проверенной посылки покупателю:
// verified -> shipped.
func (s *PackageService) Forward(ctx context.Context, id, actorID uuid.UUID, actorRole, tracking string) (*models.Package, error) {
	if err := validateTracking(tracking); err != nil {
		return nil, err
	}

	if _, err := s.hubGuard(ctx, id, actorID, actorRole); err != nil {
		return nil, err
	}

	p, err := s.repo.MarkShipped(ctx, id, actorID, tracking)
	if err != nil {
		return nil, err
	}

	t, err := s.transactions.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	s.notify(t.BuyerID, models.EventPackageShipped, p)
	return p, nil
}

// Deliver фиксирует получение покупателем: shipped -> delivered.
// Доступно покупателю, хабу и админу.
func (s *PackageService) Deliver(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Package, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.transactions.GetByID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != actorID && !canActForHub(t, actorID, actorRole) {
		return nil, ErrNotParticipant
	}

	p, err = s.repo.MarkDelivered(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	s.notify(t.SellerID, models.EventPackageDelivered, p)
	return p, nil
}

// ListAudit возвращает журнал переходов посылки.
func (s *PackageService) ListAudit(ctx context.Context, packageID uuid.UUID) ([]models.PackageAuditEntry, error) {
	return s.repo.ListAudit(ctx, packageID)
}

// hubGuard проверяет право действовать от имени хаба посылки.
func (s *PackageService) hubGuard(ctx context.Context, id, actorID uuid.UUID, actorRole string) (*models.Package, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorRole == models.RoleAdmin {
		return p, nil
	}
	if actorRole != models.RoleHub || p.HubID != actorID {
		return nil, ErrNotHubForPackage
	}
	return p, nil
}

// validateTracking нормализует и проверяет трек-номер.
func validateTracking(tracking string) error {
	if strings.TrimSpace(tracking) == "" {
		return ErrMissingTracking
	}
	return validation.ValidateTracking(tracking)
}
