package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/logger"
	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
)

var (
	ErrAlreadyResolved   = errors.New("заявка уже разрешена")
	ErrTokenExpired      = errors.New("токен подтверждения истёк, инициируйте подтверждение заново")
	ErrTokenMismatch     = errors.New("токен подтверждения не совпадает")
	ErrTokenNotIssued    = errors.New("токен подтверждения не был выпущен")
	ErrEmptyRejectReason = errors.New("причина отклонения обязательна")
	ErrInvalidRelease    = errors.New("некорректная заявка на выплату")
)

// ReleaseRepository описывает зависимости Gate от слоя хранилища.
type ReleaseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.PendingRelease, error)
	SetToken(ctx context.Context, id uuid.UUID, tokenHash string, expires time.Time) (*models.PendingRelease, error)
	Approve(ctx context.Context, id, approverID uuid.UUID, notes *string) (*models.PendingRelease, *models.EscrowPayment, error)
	Reject(ctx context.Context, id, rejecterID uuid.UUID, reason string) (*models.PendingRelease, error)
	Expire(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error)
	ExpireStale(ctx context.Context, retention time.Duration) ([]models.PendingRelease, error)
}

// ReleasePaymentReader отдаёт платёж для проверки флага ручного ревью.
type ReleasePaymentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error)
}

// ApprovalToken возвращается при инициации подтверждения.
// Сам токен нигде не хранится, в БД лежит только его хэш.
type ApprovalToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	// FlaggedReview поднимается, если платёж помечен скорингом:
	// аппрувер обязан видеть это перед подтверждением.
	FlaggedReview bool `json:"flagged_review"`
}

// ReleaseService — Pending-Release Approval Gate. Двухфазный протокол:
// одиночный клик не двигает деньги, подтверждение требует второго
// действия с одноразовым токеном в узком окне времени.
type ReleaseService struct {
	notifier
	repo      ReleaseRepository
	payments  ReleasePaymentReader
	tokenTTL  time.Duration
	retention time.Duration
}

// NewReleaseService создаёт Gate.
func NewReleaseService(repo ReleaseRepository, payments ReleasePaymentReader, tokenTTL, retention time.Duration) *ReleaseService {
	return &ReleaseService{
		repo:      repo,
		payments:  payments,
		tokenTTL:  tokenTTL,
		retention: retention,
	}
}

// Prepare валидирует и нормализует заявку на движение денег. Заявка
// пишется не здесь: её создаёт порождающий переход (решение спора,
// завершение сделки, возврат посылки) в своей транзакции, чтобы переход
// и заявка фиксировались атомарно.
func (s *ReleaseService) Prepare(rel *models.PendingRelease) error {
	if _, ok := models.ValidReleaseTypes[rel.Type]; !ok {
		return ErrInvalidRelease
	}
	if !rel.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(rel.Reason) == "" {
		return ErrInvalidRelease
	}

	rel.Status = models.ReleaseStatusPending
	rel.Amount = rel.Amount.Round(2)
	return nil
}

// Announce шлёт получателю событие о зафиксированной заявке.
func (s *ReleaseService) Announce(rel *models.PendingRelease) {
	s.notify(rel.RecipientID, models.EventReleaseCreated, rel)
}

// Get возвращает заявку, лениво переводя её в expired при просрочке.
func (s *ReleaseService) Get(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error) {
	rel, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.lazyExpire(ctx, rel)
}

// ListPending возвращает очередь ожидающих заявок для аппруверов.
func (s *ReleaseService) ListPending(ctx context.Context, limit, offset int) ([]models.PendingRelease, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListPending(ctx, limit, offset)
}

// InitiateApproval выпускает одноразовый токен подтверждения.
// Деньги на этом шаге не двигаются.
func (s *ReleaseService) InitiateApproval(ctx context.Context, id uuid.UUID) (*ApprovalToken, error) {
	rel, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rel.Status != models.ReleaseStatusPending {
		return nil, ErrAlreadyResolved
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("release service: generate token %w", err)
	}
	token := hex.EncodeToString(raw)
	expires := time.Now().Add(s.tokenTTL)

	if _, err := s.repo.SetToken(ctx, id, hashToken(token), expires); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrAlreadyResolved
		}
		return nil, err
	}

	result := &ApprovalToken{Token: token, ExpiresAt: expires}
	if rel.PaymentID != nil {
		if payment, err := s.payments.GetByID(ctx, *rel.PaymentID); err == nil {
			result.FlaggedReview = payment.FlaggedReview
		}
	}
	return result, nil
}

// ConfirmApproval проверяет токен и атомарно исполняет заявку.
// Гонка двух подтверждений даёт ровно один успех: проигравший
// получает ErrAlreadyResolved от guarded-обновления в БД.
func (s *ReleaseService) ConfirmApproval(ctx context.Context, id, approverID uuid.UUID, token string, notes *string) (*models.PendingRelease, error) {
	rel, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.IsReleaseTerminal(rel.Status) {
		return nil, ErrAlreadyResolved
	}
	if rel.TokenHash == nil || rel.TokenExpires == nil {
		return nil, ErrTokenNotIssued
	}
	if time.Now().After(*rel.TokenExpires) {
		// Токен просрочен: лениво закрываем заявку, подтверждение
		// нужно начинать заново с новым токеном.
		if _, expErr := s.repo.Expire(ctx, id); expErr != nil && !errors.Is(expErr, repository.ErrStateConflict) {
			return nil, expErr
		}
		return nil, ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(*rel.TokenHash), []byte(hashToken(token))) != 1 {
		return nil, ErrTokenMismatch
	}

	rel, payment, err := s.repo.Approve(ctx, id, approverID, notes)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrAlreadyResolved
		}
		return nil, err
	}

	if logger.Log != nil {
		logger.Log.WithField("release_id", rel.ID).WithField("approver_id", approverID).Info("release approved")
	}

	s.notify(rel.RecipientID, models.EventReleaseApproved, rel)
	if payment != nil {
		event := models.EventEscrowReleased
		if payment.Status == models.EscrowStatusRefunded {
			event = models.EventEscrowRefunded
		}
		s.notify(rel.RecipientID, event, payment)
	}
	return rel, nil
}

// Reject отклоняет заявку. Ledger не затрагивается.
func (s *ReleaseService) Reject(ctx context.Context, id, rejecterID uuid.UUID, reason string) (*models.PendingRelease, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyRejectReason
	}

	rel, err := s.repo.Reject(ctx, id, rejecterID, reason)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, ErrAlreadyResolved
		}
		return nil, err
	}

	s.notify(rel.RecipientID, models.EventReleaseRejected, rel)
	return rel, nil
}

// RunExpirySweeper периодически закрывает просроченные заявки.
// Guarded-обновление по статусу исключает гонку со встречным подтверждением.
func (s *ReleaseService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.repo.ExpireStale(ctx, s.retention)
			if err != nil {
				if logger.Log != nil {
					logger.Log.WithError(err).Error("release expiry sweep failed")
				}
				continue
			}
			for i := range expired {
				s.notify(expired[i].RecipientID, models.EventReleaseExpired, &expired[i])
			}
		}
	}
}

// lazyExpire закрывает просроченную заявку при чтении.
func (s *ReleaseService) lazyExpire(ctx context.Context, rel *models.PendingRelease) (*models.PendingRelease, error) {
	if rel.Status != models.ReleaseStatusPending {
		return rel, nil
	}
	stale := rel.TokenExpires != nil && time.Now().After(*rel.TokenExpires)
	if !stale && time.Since(rel.CreatedAt) > s.retention {
		stale = true
	}
	if !stale {
		return rel, nil
	}

	expired, err := s.repo.Expire(ctx, rel.ID)
	if errors.Is(err, repository.ErrStateConflict) {
		// Кто-то успел разрешить заявку, отдаём свежее состояние.
		return s.repo.GetByID(ctx, rel.ID)
	}
	if err != nil {
		return nil, err
	}
	s.notify(expired.RecipientID, models.EventReleaseExpired, expired)
	return expired, nil
}

// hashToken хэширует токен для хранения.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewSellerPayout формирует заявку на штатную выплату продавцу.
func NewSellerPayout(paymentID, transactionID, sellerID uuid.UUID, amount decimal.Decimal) *models.PendingRelease {
	return &models.PendingRelease{
		Type:          models.ReleaseTypeSellerPayout,
		Amount:        amount,
		Reason:        "Штатная выплата продавцу по завершённой сделке",
		RecipientID:   sellerID,
		PaymentID:     &paymentID,
		TransactionID: &transactionID,
	}
}
