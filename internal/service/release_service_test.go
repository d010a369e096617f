package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
)

type mockReleaseRepo struct {
	mu       sync.Mutex
	releases map[uuid.UUID]*models.PendingRelease
	payments map[uuid.UUID]*models.EscrowPayment
}

func newMockReleaseRepo() *mockReleaseRepo {
	return &mockReleaseRepo{
		releases: make(map[uuid.UUID]*models.PendingRelease),
		payments: make(map[uuid.UUID]*models.EscrowPayment),
	}
}

func (m *mockReleaseRepo) add(rel *models.PendingRelease) *models.PendingRelease {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel.ID = uuid.New()
	rel.CreatedAt = time.Now()
	m.releases[rel.ID] = rel
	return rel
}

func (m *mockReleaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return nil, repository.ErrReleaseNotFound
	}
	cp := *rel
	return &cp, nil
}

func (m *mockReleaseRepo) ListPending(ctx context.Context, limit, offset int) ([]models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingRelease
	for _, rel := range m.releases {
		if rel.Status == models.ReleaseStatusPending {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (m *mockReleaseRepo) SetToken(ctx context.Context, id uuid.UUID, tokenHash string, expires time.Time) (*models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return nil, repository.ErrReleaseNotFound
	}
	if rel.Status != models.ReleaseStatusPending {
		return nil, repository.ErrStateConflict
	}
	rel.TokenHash = &tokenHash
	rel.TokenExpires = &expires
	cp := *rel
	return &cp, nil
}

func (m *mockReleaseRepo) Approve(ctx context.Context, id, approverID uuid.UUID, notes *string) (*models.PendingRelease, *models.EscrowPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return nil, nil, repository.ErrReleaseNotFound
	}
	if rel.Status != models.ReleaseStatusPending {
		return nil, nil, repository.ErrStateConflict
	}
	rel.Status = models.ReleaseStatusApproved
	rel.ApprovedBy = &approverID
	rel.ApprovalNotes = notes

	var payment *models.EscrowPayment
	if rel.PaymentID != nil {
		if p, ok := m.payments[*rel.PaymentID]; ok {
			if rel.Type == models.ReleaseTypeSellerPayout {
				p.Status = models.EscrowStatusReleased
			} else {
				p.Status = models.EscrowStatusRefunded
			}
			cp := *p
			payment = &cp
		}
	}
	cp := *rel
	return &cp, payment, nil
}

func (m *mockReleaseRepo) Reject(ctx context.Context, id, rejecterID uuid.UUID, reason string) (*models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return nil, repository.ErrReleaseNotFound
	}
	if rel.Status != models.ReleaseStatusPending {
		return nil, repository.ErrStateConflict
	}
	rel.Status = models.ReleaseStatusRejected
	rel.RejectedBy = &rejecterID
	rel.RejectReason = &reason
	cp := *rel
	return &cp, nil
}

func (m *mockReleaseRepo) Expire(ctx context.Context, id uuid.UUID) (*models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return nil, repository.ErrReleaseNotFound
	}
	if rel.Status != models.ReleaseStatusPending {
		return nil, repository.ErrStateConflict
	}
	rel.Status = models.ReleaseStatusExpired
	cp := *rel
	return &cp, nil
}

func (m *mockReleaseRepo) ExpireStale(ctx context.Context, retention time.Duration) ([]models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingRelease
	now := time.Now()
	for _, rel := range m.releases {
		if rel.Status != models.ReleaseStatusPending {
			continue
		}
		tokenStale := rel.TokenExpires != nil && now.After(*rel.TokenExpires)
		if tokenStale || now.Sub(rel.CreatedAt) > retention {
			rel.Status = models.ReleaseStatusExpired
			out = append(out, *rel)
		}
	}
	return out, nil
}

type mockReleasePayments struct {
	payments map[uuid.UUID]*models.EscrowPayment
}

func (m *mockReleasePayments) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func newReleaseFixture(t *testing.T, repo *mockReleaseRepo, svc *ReleaseService) *models.PendingRelease {
	t.Helper()
	payment := &models.EscrowPayment{
		ID:     uuid.New(),
		Status: models.EscrowStatusHeld,
		Amount: decimal.NewFromInt(150),
	}
	repo.payments[payment.ID] = payment

	rel := NewSellerPayout(payment.ID, uuid.New(), uuid.New(), payment.Amount)
	require.NoError(t, svc.Prepare(rel))
	return repo.add(rel)
}

func TestReleaseService_TwoPhaseApproval(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	rel := newReleaseFixture(t, repo, svc)

	// Первая фаза: токен выпущен, деньги не двигаются.
	issued, err := svc.InitiateApproval(ctx, rel.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)

	got, err := repo.GetByID(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusPending, got.Status,
		"после инициации заявка должна оставаться pending")

	// Вторая фаза: подтверждение исполняет заявку.
	approver := uuid.New()
	approved, err := svc.ConfirmApproval(ctx, rel.ID, approver, issued.Token, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, approver, *approved.ApprovedBy)
}

func TestReleaseService_TokenSingleUse(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	rel := newReleaseFixture(t, repo, svc)
	issued, err := svc.InitiateApproval(ctx, rel.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmApproval(ctx, rel.ID, uuid.New(), issued.Token, nil)
	require.NoError(t, err)

	// Повторное подтверждение тем же токеном проигрывает гонку.
	_, err = svc.ConfirmApproval(ctx, rel.ID, uuid.New(), issued.Token, nil)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestReleaseService_ConcurrentConfirmSingleWinner(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	rel := newReleaseFixture(t, repo, svc)
	issued, err := svc.InitiateApproval(ctx, rel.ID)
	require.NoError(t, err)

	// Два одновременных подтверждения одним токеном: guarded-обновление
	// пропускает ровно одно, второе получает ErrAlreadyResolved.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, confirmErr := svc.ConfirmApproval(ctx, rel.ID, uuid.New(), issued.Token, nil)
			errs <- confirmErr
		}()
	}
	wg.Wait()
	close(errs)

	var approved, lost int
	for confirmErr := range errs {
		switch {
		case confirmErr == nil:
			approved++
		case errors.Is(confirmErr, ErrAlreadyResolved):
			lost++
		default:
			t.Fatalf("неожиданная ошибка подтверждения: %v", confirmErr)
		}
	}
	assert.Equal(t, 1, approved, "успешным должно быть ровно одно подтверждение")
	assert.Equal(t, 1, lost)

	got, err := repo.GetByID(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusApproved, got.Status)
}

func TestReleaseService_TokenMismatch(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	rel := newReleaseFixture(t, repo, svc)
	_, err := svc.InitiateApproval(ctx, rel.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmApproval(ctx, rel.ID, uuid.New(), "deadbeef", nil)
	assert.ErrorIs(t, err, ErrTokenMismatch)

	// Неверный токен не сжигает заявку, верный всё ещё работает.
	got, err := repo.GetByID(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusPending, got.Status)
}

func TestReleaseService_ConfirmWithoutToken(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)

	rel := newReleaseFixture(t, repo, svc)

	_, err := svc.ConfirmApproval(context.Background(), rel.ID, uuid.New(), "anything", nil)
	assert.ErrorIs(t, err, ErrTokenNotIssued)
}

func TestReleaseService_TokenExpired(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, -time.Second, 7*24*time.Hour)
	ctx := context.Background()

	rel := newReleaseFixture(t, repo, svc)
	issued, err := svc.InitiateApproval(ctx, rel.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmApproval(ctx, rel.ID, uuid.New(), issued.Token, nil)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// Просроченный токен лениво закрывает заявку.
	got, err := repo.GetByID(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusExpired, got.Status)
}

func TestReleaseService_RejectRequiresReason(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	rel := newReleaseFixture(t, repo, svc)

	_, err := svc.Reject(ctx, rel.ID, uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrEmptyRejectReason)

	rejected, err := svc.Reject(ctx, rel.ID, uuid.New(), "подозрительная активность")
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusRejected, rejected.Status)

	// Отклонённую заявку подтверждать поздно.
	_, err = svc.InitiateApproval(ctx, rel.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestReleaseService_LazyExpireOnGet(t *testing.T) {
	repo := newMockReleaseRepo()
	svc := NewReleaseService(repo, &mockReleasePayments{payments: repo.payments}, 5*time.Minute, 7*24*time.Hour)

	rel := newReleaseFixture(t, repo, svc)
	past := time.Now().Add(-time.Minute)
	hash := hashToken("stale")
	repo.releases[rel.ID].TokenHash = &hash
	repo.releases[rel.ID].TokenExpires = &past

	got, err := svc.Get(context.Background(), rel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatusExpired, got.Status,
		"просроченная заявка должна отдаваться как expired")
}

func TestReleaseService_PrepareValidation(t *testing.T) {
	svc := &ReleaseService{}

	err := svc.Prepare(&models.PendingRelease{
		Type:        "jackpot",
		Amount:      decimal.NewFromInt(10),
		Reason:      "тип не из справочника",
		RecipientID: uuid.New(),
	})
	assert.ErrorIs(t, err, ErrInvalidRelease)

	err = svc.Prepare(&models.PendingRelease{
		Type:        models.ReleaseTypeRefundFull,
		Amount:      decimal.Zero,
		Reason:      "нулевая сумма",
		RecipientID: uuid.New(),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = svc.Prepare(&models.PendingRelease{
		Type:        models.ReleaseTypeRefundFull,
		Amount:      decimal.NewFromInt(10),
		Reason:      "   ",
		RecipientID: uuid.New(),
	})
	assert.ErrorIs(t, err, ErrInvalidRelease)

	rel := &models.PendingRelease{
		Type:        models.ReleaseTypeRefundPartial,
		Amount:      decimal.RequireFromString("49.999"),
		Reason:      "частичный возврат по договорённости",
		RecipientID: uuid.New(),
	}
	require.NoError(t, svc.Prepare(rel))
	assert.Equal(t, models.ReleaseStatusPending, rel.Status)
	assert.True(t, rel.Amount.Equal(decimal.RequireFromString("50")),
		"сумма должна округляться до копеек")
}
