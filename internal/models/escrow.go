package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы escrow-платежа
const (
	EscrowStatusPending   = "pending"
	EscrowStatusHeld      = "held"
	EscrowStatusReleased  = "released"
	EscrowStatusRefunded  = "refunded"
	EscrowStatusCancelled = "cancelled"
)

// Типы движений по escrow-журналу
const (
	EscrowEntryHold        = "hold"
	EscrowEntryRelease     = "release"
	EscrowEntryRefund      = "refund"
	EscrowEntrySplitPayout = "split_payout"
)

// ValidEscrowStatuses список валидных статусов платежа
var ValidEscrowStatuses = map[string]struct{}{
	EscrowStatusPending:   {},
	EscrowStatusHeld:      {},
	EscrowStatusReleased:  {},
	EscrowStatusRefunded:  {},
	EscrowStatusCancelled: {},
}

// EscrowTransitions таблица допустимых переходов платежа.
// held ветвится: release, refund либо частичный refund с остатком продавцу.
var EscrowTransitions = map[string][]string{
	EscrowStatusPending: {EscrowStatusHeld, EscrowStatusCancelled},
	EscrowStatusHeld:    {EscrowStatusReleased, EscrowStatusRefunded},
}

// EscrowPayment описывает кастодиальную запись о деньгах одной сделки.
// Сумма после создания не меняется, история движений append-only.
type EscrowPayment struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	TransactionID  uuid.UUID        `db:"transaction_id" json:"transaction_id"`
	Amount         decimal.Decimal  `db:"amount" json:"amount"`
	Method         string           `db:"method" json:"method"`
	Status         string           `db:"status" json:"status"`
	RiskScore      *int             `db:"risk_score" json:"risk_score,omitempty"`
	FlaggedReview  bool             `db:"flagged_review" json:"flagged_review"`
	RefundedAmount *decimal.Decimal `db:"refunded_amount" json:"refunded_amount,omitempty"`
	HeldAt         *time.Time       `db:"held_at" json:"held_at,omitempty"`
	ReleasedAt     *time.Time       `db:"released_at" json:"released_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EscrowEntry описывает строку append-only журнала движений по escrow.
type EscrowEntry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	PaymentID   uuid.UUID       `db:"payment_id" json:"payment_id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Type        string          `db:"type" json:"type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description *string         `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// EscrowCanTransition проверяет допустимость перехода статуса платежа.
func EscrowCanTransition(from, to string) bool {
	for _, next := range EscrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
