package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы заявки на выплату
const (
	ReleaseStatusPending  = "pending"
	ReleaseStatusApproved = "approved"
	ReleaseStatusRejected = "rejected"
	ReleaseStatusExpired  = "expired"
)

// Типы заявок на выплату
const (
	ReleaseTypeSellerPayout  = "seller_payout"
	ReleaseTypeRefundFull    = "refund_full"
	ReleaseTypeRefundPartial = "refund_partial"
	ReleaseTypeHubCommission = "hub_commission"
	ReleaseTypeWithdrawal    = "withdrawal"
)

// ValidReleaseTypes список валидных типов заявок
var ValidReleaseTypes = map[string]struct{}{
	ReleaseTypeSellerPayout:  {},
	ReleaseTypeRefundFull:    {},
	ReleaseTypeRefundPartial: {},
	ReleaseTypeHubCommission: {},
	ReleaseTypeWithdrawal:    {},
}

// PendingRelease описывает заявку на движение денег из escrow.
// Заявка никогда не исполняется сама: approved лишь триггер для Ledger,
// подтверждение требует второго действия с одноразовым токеном.
type PendingRelease struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Type          string          `db:"type" json:"type"`
	Status        string          `db:"status" json:"status"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Reason        string          `db:"reason" json:"reason"`
	RecipientID   uuid.UUID       `db:"recipient_id" json:"recipient_id"`
	PaymentID     *uuid.UUID      `db:"payment_id" json:"payment_id,omitempty"`
	TransactionID *uuid.UUID      `db:"transaction_id" json:"transaction_id,omitempty"`
	DisputeID     *uuid.UUID      `db:"dispute_id" json:"dispute_id,omitempty"`
	ApprovedBy    *uuid.UUID      `db:"approved_by" json:"approved_by,omitempty"`
	RejectedBy    *uuid.UUID      `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectReason  *string         `db:"reject_reason" json:"reject_reason,omitempty"`
	ApprovalNotes *string         `db:"approval_notes" json:"approval_notes,omitempty"`
	TokenHash     *string         `db:"token_hash" json:"-"`
	TokenExpires  *time.Time      `db:"token_expires" json:"token_expires,omitempty"`
	ResolvedAt    *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// IsReleaseTerminal сообщает, разрешена ли заявка окончательно.
func IsReleaseTerminal(status string) bool {
	return status == ReleaseStatusApproved || status == ReleaseStatusRejected || status == ReleaseStatusExpired
}
