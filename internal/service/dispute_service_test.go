package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
)

type mockDisputeRepo struct {
	disputes map[uuid.UUID]*models.Dispute
	messages map[uuid.UUID][]models.DisputeMessage
	releases []*models.PendingRelease

	// failResolveInsert эмулирует откат транзакции: при ошибке вставки
	// заявки переход resolved тоже не фиксируется.
	failResolveInsert error
}

func newMockDisputeRepo() *mockDisputeRepo {
	return &mockDisputeRepo{
		disputes: make(map[uuid.UUID]*models.Dispute),
		messages: make(map[uuid.UUID][]models.DisputeMessage),
	}
}

func (m *mockDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	for _, existing := range m.disputes {
		if existing.TransactionID == d.TransactionID && !models.IsDisputeTerminal(existing.Status) {
			return repository.ErrDuplicateDispute
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.disputes[d.ID] = d
	return nil
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, ok := m.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDisputeRepo) GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	for _, d := range m.disputes {
		if d.TransactionID == transactionID && !models.IsDisputeTerminal(d.Status) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (m *mockDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range m.disputes {
		if d.InitiatorID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockDisputeRepo) ListEscalated(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range m.disputes {
		if d.Status == models.DisputeStatusEscalated {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockDisputeRepo) transition(id uuid.UUID, to string) (*models.Dispute, error) {
	d, ok := m.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	if !models.DisputeCanTransition(d.Status, to) {
		return nil, repository.ErrStateConflict
	}
	d.Status = to
	cp := *d
	return &cp, nil
}

func (m *mockDisputeRepo) SetSellerResponse(ctx context.Context, id uuid.UUID, response string) (*models.Dispute, error) {
	d, err := m.transition(id, models.DisputeStatusSellerResponse)
	if err != nil {
		return nil, err
	}
	m.disputes[id].SellerResponse = &response
	d.SellerResponse = &response
	return d, nil
}

func (m *mockDisputeRepo) Escalate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return m.transition(id, models.DisputeStatusEscalated)
}

func (m *mockDisputeRepo) Claim(ctx context.Context, id, mediatorID uuid.UUID) (*models.Dispute, error) {
	d, err := m.transition(id, models.DisputeStatusInMediation)
	if err != nil {
		return nil, err
	}
	m.disputes[id].MediatorID = &mediatorID
	d.MediatorID = &mediatorID
	return d, nil
}

func (m *mockDisputeRepo) Resolve(ctx context.Context, id, mediatorID uuid.UUID, resolutionType string, amount *decimal.Decimal, notes *string, rel *models.PendingRelease) (*models.Dispute, error) {
	stored, ok := m.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	if !models.DisputeCanTransition(stored.Status, models.DisputeStatusResolved) {
		return nil, repository.ErrStateConflict
	}

	if rel != nil {
		if m.failResolveInsert != nil {
			return nil, m.failResolveInsert
		}
		rel.ID = uuid.New()
		m.releases = append(m.releases, rel)
	}

	now := time.Now()
	stored.Status = models.DisputeStatusResolved
	stored.MediatorID = &mediatorID
	stored.ResolutionType = &resolutionType
	stored.ResolutionAmount = amount
	stored.ResolutionNotes = notes
	stored.ResolvedAt = &now
	cp := *stored
	return &cp, nil
}

func (m *mockDisputeRepo) Close(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return m.transition(id, models.DisputeStatusClosed)
}

func (m *mockDisputeRepo) CreateMessage(ctx context.Context, msg *models.DisputeMessage) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages[msg.DisputeID] = append(m.messages[msg.DisputeID], *msg)
	return nil
}

func (m *mockDisputeRepo) ListMessages(ctx context.Context, disputeID uuid.UUID, includeInternal bool) ([]models.DisputeMessage, error) {
	var out []models.DisputeMessage
	for _, msg := range m.messages[disputeID] {
		if msg.Internal && !includeInternal {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

type mockTransactions struct {
	transactions map[uuid.UUID]*models.Transaction
	payouts      []*models.PendingRelease

	failCompleteInsert error
}

func newMockTransactions() *mockTransactions {
	return &mockTransactions{transactions: make(map[uuid.UUID]*models.Transaction)}
}

func (m *mockTransactions) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTransactions) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range m.transactions {
		if t.BuyerID == userID || t.SellerID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTransactions) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*models.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	if t.Status != fromStatus {
		return nil, repository.ErrStateConflict
	}
	t.Status = toStatus
	cp := *t
	return &cp, nil
}

func (m *mockTransactions) Complete(ctx context.Context, id uuid.UUID, rel *models.PendingRelease) (*models.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	if t.Status != models.TransactionStatusInProgress {
		return nil, repository.ErrStateConflict
	}
	// Откат транзакции: при сбое вставки заявки статус не меняется.
	if m.failCompleteInsert != nil {
		return nil, m.failCompleteInsert
	}
	rel.ID = uuid.New()
	m.payouts = append(m.payouts, rel)

	now := time.Now()
	t.Status = models.TransactionStatusCompleted
	t.CompletedAt = &now
	cp := *t
	return &cp, nil
}

type mockPayments struct {
	payments map[uuid.UUID]*models.EscrowPayment
}

func newMockPayments() *mockPayments {
	return &mockPayments{payments: make(map[uuid.UUID]*models.EscrowPayment)}
}

func (m *mockPayments) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowPayment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPayments) GetActiveByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.EscrowPayment, error) {
	for _, p := range m.payments {
		if p.TransactionID == transactionID && (p.Status == models.EscrowStatusPending || p.Status == models.EscrowStatusHeld) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

type disputeFixture struct {
	repo         *mockDisputeRepo
	transactions *mockTransactions
	payments     *mockPayments
	svc          *DisputeService

	transaction *models.Transaction
	payment     *models.EscrowPayment
}

func newDisputeFixture() *disputeFixture {
	f := &disputeFixture{
		repo:         newMockDisputeRepo(),
		transactions: newMockTransactions(),
		payments:     newMockPayments(),
	}
	// Gate без хранилища: Prepare и Announce не трогают репозиторий.
	f.svc = NewDisputeService(f.repo, f.transactions, f.payments, &ReleaseService{}, 72*time.Hour)

	f.transaction = &models.Transaction{
		ID:       uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.TransactionStatusInProgress,
		Title:    "Charizard Base Set Holo",
	}
	f.transactions.transactions[f.transaction.ID] = f.transaction

	f.payment = &models.EscrowPayment{
		ID:            uuid.New(),
		TransactionID: f.transaction.ID,
		Amount:        decimal.NewFromInt(300),
		Status:        models.EscrowStatusHeld,
	}
	f.payments.payments[f.payment.ID] = f.payment
	return f
}

func (f *disputeFixture) open(t *testing.T) *models.Dispute {
	t.Helper()
	d, err := f.svc.Open(context.Background(), f.transaction.ID, f.transaction.BuyerID,
		models.DisputeTypeDamaged, "карта пришла с заломом по центру", nil)
	require.NoError(t, err)
	return d
}

func (f *disputeFixture) escalateAndClaim(t *testing.T, id uuid.UUID) uuid.UUID {
	t.Helper()
	_, err := f.svc.Escalate(context.Background(), id, f.transaction.BuyerID)
	require.NoError(t, err)
	mediator := uuid.New()
	_, err = f.svc.Claim(context.Background(), id, mediator)
	require.NoError(t, err)
	return mediator
}

func TestDisputeService_Open(t *testing.T) {
	f := newDisputeFixture()

	d := f.open(t)
	assert.Equal(t, models.DisputeStatusOpen, d.Status)
	assert.Equal(t, f.payment.ID, d.PaymentID)
	assert.True(t, d.ResponseDeadline.After(time.Now().Add(71*time.Hour)),
		"дедлайн ответа должен отстоять на окно ответа")
}

func TestDisputeService_OpenValidation(t *testing.T) {
	f := newDisputeFixture()
	ctx := context.Background()

	_, err := f.svc.Open(ctx, f.transaction.ID, f.transaction.BuyerID, "vibes", "описание достаточной длины", nil)
	assert.ErrorIs(t, err, ErrInvalidDisputeType)

	_, err = f.svc.Open(ctx, f.transaction.ID, f.transaction.BuyerID, models.DisputeTypeDamaged, "коротко", nil)
	assert.Error(t, err, "короткое описание должно отклоняться")

	stranger := uuid.New()
	_, err = f.svc.Open(ctx, f.transaction.ID, stranger, models.DisputeTypeDamaged, "карта пришла повреждённой", nil)
	assert.ErrorIs(t, err, ErrNotParticipant)

	f.payment.Status = models.EscrowStatusPending
	_, err = f.svc.Open(ctx, f.transaction.ID, f.transaction.BuyerID, models.DisputeTypeDamaged, "карта пришла повреждённой", nil)
	assert.ErrorIs(t, err, ErrPaymentNotHeld)
}

func TestDisputeService_RespondOnlySeller(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	ctx := context.Background()

	_, err := f.svc.Respond(ctx, d.ID, f.transaction.BuyerID, "это был не я")
	assert.ErrorIs(t, err, ErrNotSeller)

	responded, err := f.svc.Respond(ctx, d.ID, f.transaction.SellerID, "карта была упакована в toploader, повреждение при доставке")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusSellerResponse, responded.Status)
}

func TestDisputeService_ResolvePartialRefund(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	mediator := f.escalateAndClaim(t, d.ID)

	amount := decimal.NewFromInt(100)
	resolved, err := f.svc.Resolve(context.Background(), d.ID, mediator, models.ResolutionRefundPartial, &amount, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)

	// Решение не двигает деньги: оно порождает заявку в очередь подтверждения.
	require.Len(t, f.repo.releases, 1)
	rel := f.repo.releases[0]
	assert.Equal(t, models.ReleaseTypeRefundPartial, rel.Type)
	assert.True(t, rel.Amount.Equal(amount))
	assert.Equal(t, f.transaction.BuyerID, rel.RecipientID)
	require.NotNil(t, rel.DisputeID)
	assert.Equal(t, d.ID, *rel.DisputeID)
	assert.Equal(t, models.EscrowStatusHeld, f.payment.Status,
		"платёж не должен меняться до подтверждения заявки")
}

func TestDisputeService_ResolvePartialAmountBounds(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	mediator := f.escalateAndClaim(t, d.ID)
	ctx := context.Background()

	over := f.payment.Amount.Add(decimal.NewFromInt(1))
	_, err := f.svc.Resolve(ctx, d.ID, mediator, models.ResolutionRefundPartial, &over, nil)
	assert.ErrorIs(t, err, ErrInvalidPartialAmount)

	zero := decimal.Zero
	_, err = f.svc.Resolve(ctx, d.ID, mediator, models.ResolutionRefundPartial, &zero, nil)
	assert.ErrorIs(t, err, ErrInvalidPartialAmount)

	_, err = f.svc.Resolve(ctx, d.ID, mediator, models.ResolutionRefundPartial, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPartialAmount)
}

func TestDisputeService_ResolveRejectedMovesNoMoney(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	mediator := f.escalateAndClaim(t, d.ID)

	// Сумма при отклонении игнорируется и не сохраняется.
	leftover := decimal.NewFromInt(50)
	resolved, err := f.svc.Resolve(context.Background(), d.ID, mediator, models.ResolutionRejected, &leftover, nil)
	require.NoError(t, err)
	assert.Empty(t, f.repo.releases, "отклонение спора не должно порождать заявок")
	assert.Nil(t, resolved.ResolutionAmount, "сумма должна быть сброшена для решения без движения денег")
}

func TestDisputeService_InFavorBuyerFullRefund(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	mediator := f.escalateAndClaim(t, d.ID)

	// Стороннее значение суммы при полном возврате не сохраняется:
	// сумма решения определена только для частичного возврата.
	stray := decimal.NewFromInt(7)
	resolved, err := f.svc.Resolve(context.Background(), d.ID, mediator, models.ResolutionInFavorBuyer, &stray, nil)
	require.NoError(t, err)
	assert.Nil(t, resolved.ResolutionAmount)

	require.Len(t, f.repo.releases, 1)
	rel := f.repo.releases[0]
	assert.Equal(t, models.ReleaseTypeRefundFull, rel.Type)
	assert.True(t, rel.Amount.Equal(f.payment.Amount), "полный возврат должен быть на сумму платежа")
}

func TestDisputeService_ResolveAtomicWithRelease(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	mediator := f.escalateAndClaim(t, d.ID)
	ctx := context.Background()

	// Сбой записи заявки откатывает и переход resolved: спор не должен
	// остаться разрешённым без заявки на движение денег.
	f.repo.failResolveInsert = assert.AnError
	_, err := f.svc.Resolve(ctx, d.ID, mediator, models.ResolutionInFavorBuyer, nil, nil)
	require.Error(t, err)

	stored, err := f.repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusInMediation, stored.Status)
	assert.Empty(t, f.repo.releases)

	// Повтор после восстановления проходит и создаёт ровно одну заявку.
	f.repo.failResolveInsert = nil
	resolved, err := f.svc.Resolve(ctx, d.ID, mediator, models.ResolutionInFavorBuyer, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)
	assert.Len(t, f.repo.releases, 1)
}

func TestDisputeService_Messages(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, d.ID, f.transaction.BuyerID, models.RoleUser, "прикладываю фото повреждения", []string{"https://cdn.example.com/p1.jpg"}, false)
	require.NoError(t, err)

	// Внутренние заметки доступны только модераторам.
	_, err = f.svc.SendMessage(ctx, d.ID, f.transaction.SellerID, models.RoleUser, "заметка", nil, true)
	assert.ErrorIs(t, err, ErrInternalNotAllowed)

	admin := uuid.New()
	_, err = f.svc.SendMessage(ctx, d.ID, admin, models.RoleAdmin, "похоже на повреждение при доставке", nil, true)
	require.NoError(t, err)

	// Участник не видит внутренних заметок, модератор видит всё.
	visible, err := f.svc.ListMessages(ctx, d.ID, f.transaction.BuyerID, models.RoleUser)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, err := f.svc.ListMessages(ctx, d.ID, admin, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDisputeService_MessagesClosedThread(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)
	mediator := f.escalateAndClaim(t, d.ID)
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, d.ID, mediator, models.ResolutionInFavorSeller, nil, nil)
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, d.ID, f.transaction.BuyerID, models.RoleUser, "ещё одно сообщение", nil, false)
	assert.ErrorIs(t, err, ErrDisputeClosed)
}

func TestDisputeService_DeadlineFlag(t *testing.T) {
	f := newDisputeFixture()
	d := f.open(t)

	f.repo.disputes[d.ID].ResponseDeadline = time.Now().Add(-time.Hour)

	got, err := f.svc.Get(context.Background(), d.ID, f.transaction.BuyerID, models.RoleUser)
	require.NoError(t, err)
	assert.True(t, got.ResponseDeadlinePassed, "флаг пропущенного дедлайна должен быть поднят")
	assert.Equal(t, models.DisputeStatusOpen, got.Status,
		"просроченный дедлайн не переводит спор автоматически")
}
