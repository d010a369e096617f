package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/models"
)

// RiskScorer оценивает риск escrow-платежа по шкале 0-100.
// Скоринговая политика подключаемая: ядро знает только порог,
// выше которого платёж помечается на ручную проверку.
type RiskScorer interface {
	Score(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal, method string) int
}

// HistoryReader отдаёт количество завершённых сделок пользователя.
type HistoryReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
}

// HeuristicRiskScorer — простая эвристика по способу оплаты, сумме
// и истории аккаунта. Используется, пока не подключена внешняя политика.
type HeuristicRiskScorer struct {
	history HistoryReader
}

// NewHeuristicRiskScorer создаёт эвристический скорер.
func NewHeuristicRiskScorer(history HistoryReader) *HeuristicRiskScorer {
	return &HeuristicRiskScorer{history: history}
}

// Score вычисляет оценку риска платежа.
func (s *HeuristicRiskScorer) Score(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal, method string) int {
	score := 0

	switch method {
	case models.PaymentMethodCash:
		score += 30
	case models.PaymentMethodCard:
		score += 10
	case models.PaymentMethodBankTransfer:
		score += 5
	case models.PaymentMethodWallet:
		score += 15
	}

	// Крупные суммы рискованнее
	switch {
	case amount.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		score += 40
	case amount.GreaterThanOrEqual(decimal.NewFromInt(500)):
		score += 25
	case amount.GreaterThanOrEqual(decimal.NewFromInt(100)):
		score += 10
	}

	// Новый аккаунт без завершённых сделок — дополнительный риск
	if s.history != nil {
		deals, err := s.history.ListByUser(ctx, buyerID, 10, 0)
		if err != nil || len(deals) == 0 {
			score += 30
		} else {
			completed := 0
			for _, d := range deals {
				if d.Status == models.TransactionStatusCompleted {
					completed++
				}
			}
			if completed == 0 {
				score += 20
			}
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}
