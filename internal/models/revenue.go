package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы консигнационного сплита
const (
	SplitStatusPending  = "pending"
	SplitStatusEligible = "eligible"
	SplitStatusInPayout = "in_payout"
	SplitStatusPaid     = "paid"
	SplitStatusReversed = "reversed"
)

// Получатели долей сплита
const (
	SplitShareOwner    = "owner"
	SplitShareMerchant = "merchant"
	SplitSharePlatform = "platform"
)

// SplitStatusTransitions таблица допустимых переходов доли сплита.
// Каждая доля двигается к выплате независимо от остальных.
var SplitStatusTransitions = map[string][]string{
	SplitStatusPending:  {SplitStatusEligible, SplitStatusReversed},
	SplitStatusEligible: {SplitStatusInPayout, SplitStatusReversed},
	SplitStatusInPayout: {SplitStatusPaid},
}

// RevenueSplit описывает раскладку выручки консигнационной продажи 70/20/10.
// Сумма долей всегда в точности равна gross, остаток округления у платформы.
type RevenueSplit struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	TransactionID  uuid.UUID       `db:"transaction_id" json:"transaction_id"`
	OwnerID        uuid.UUID       `db:"owner_id" json:"owner_id"`
	MerchantID     uuid.UUID       `db:"merchant_id" json:"merchant_id"`
	GrossAmount    decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	OwnerAmount    decimal.Decimal `db:"owner_amount" json:"owner_amount"`
	MerchantAmount decimal.Decimal `db:"merchant_amount" json:"merchant_amount"`
	PlatformAmount decimal.Decimal `db:"platform_amount" json:"platform_amount"`
	OwnerStatus    string          `db:"owner_status" json:"owner_status"`
	MerchantStatus string          `db:"merchant_status" json:"merchant_status"`
	PlatformStatus string          `db:"platform_status" json:"platform_status"`
	EligibleAt     time.Time       `db:"eligible_at" json:"eligible_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// SplitCanTransition проверяет допустимость перехода статуса доли.
func SplitCanTransition(from, to string) bool {
	for _, next := range SplitStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
