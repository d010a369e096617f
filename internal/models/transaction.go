package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы сделки
const (
	TransactionStatusAgreed     = "agreed"
	TransactionStatusInProgress = "in_progress"
	TransactionStatusCompleted  = "completed"
	TransactionStatusCancelled  = "cancelled"
)

// ValidTransactionStatuses список валидных статусов сделки
var ValidTransactionStatuses = map[string]struct{}{
	TransactionStatusAgreed:     {},
	TransactionStatusInProgress: {},
	TransactionStatusCompleted:  {},
	TransactionStatusCancelled:  {},
}

// TransactionTransitions таблица допустимых переходов статуса сделки.
// Переходы проверяются централизованно в сервисе, а не по месту вызова.
var TransactionTransitions = map[string][]string{
	TransactionStatusAgreed:     {TransactionStatusInProgress, TransactionStatusCancelled},
	TransactionStatusInProgress: {TransactionStatusCompleted, TransactionStatusCancelled},
}

// Transaction описывает согласованную сделку между покупателем и продавцом.
// Сделка может проходить через хаб проверки (HubID заполнен).
type Transaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BuyerID     uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID    uuid.UUID  `db:"seller_id" json:"seller_id"`
	HubID       *uuid.UUID `db:"hub_id" json:"hub_id,omitempty"`
	Status      string     `db:"status" json:"status"`
	Title       string     `db:"title" json:"title"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TransactionCanTransition проверяет допустимость перехода статуса сделки.
func TransactionCanTransition(from, to string) bool {
	for _, next := range TransactionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
