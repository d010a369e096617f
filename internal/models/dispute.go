package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Статусы спора
const (
	DisputeStatusOpen           = "open"
	DisputeStatusSellerResponse = "seller_response"
	DisputeStatusEscalated      = "escalated"
	DisputeStatusInMediation    = "in_mediation"
	DisputeStatusResolved       = "resolved"
	DisputeStatusClosed         = "closed"
)

// Типы споров
const (
	DisputeTypeNotDelivered      = "not_delivered"
	DisputeTypeDamaged           = "damaged"
	DisputeTypeWrongContent      = "wrong_content"
	DisputeTypeMissingItems      = "missing_items"
	DisputeTypeConditionMismatch = "condition_mismatch"
	DisputeTypeDelay             = "delay"
	DisputeTypeOther             = "other"
)

// Типы решений по спору
const (
	ResolutionRefundFull     = "refund_full"
	ResolutionRefundPartial  = "refund_partial"
	ResolutionReplacement    = "replacement"
	ResolutionReturnRequired = "return_required"
	ResolutionRejected       = "rejected"
	ResolutionInFavorBuyer   = "in_favor_buyer"
	ResolutionInFavorSeller  = "in_favor_seller"
)

// ValidDisputeTypes список валидных типов спора
var ValidDisputeTypes = map[string]struct{}{
	DisputeTypeNotDelivered:      {},
	DisputeTypeDamaged:           {},
	DisputeTypeWrongContent:      {},
	DisputeTypeMissingItems:      {},
	DisputeTypeConditionMismatch: {},
	DisputeTypeDelay:             {},
	DisputeTypeOther:             {},
}

// ValidResolutionTypes список валидных решений
var ValidResolutionTypes = map[string]struct{}{
	ResolutionRefundFull:     {},
	ResolutionRefundPartial:  {},
	ResolutionReplacement:    {},
	ResolutionReturnRequired: {},
	ResolutionRejected:       {},
	ResolutionInFavorBuyer:   {},
	ResolutionInFavorSeller:  {},
}

// DisputeTransitions таблица допустимых переходов спора.
var DisputeTransitions = map[string][]string{
	DisputeStatusOpen:           {DisputeStatusSellerResponse, DisputeStatusEscalated},
	DisputeStatusSellerResponse: {DisputeStatusEscalated},
	DisputeStatusEscalated:      {DisputeStatusInMediation, DisputeStatusResolved},
	DisputeStatusInMediation:    {DisputeStatusResolved},
	DisputeStatusResolved:       {DisputeStatusClosed},
}

// Dispute описывает претензию участника по сделке.
// На одну сделку может существовать только один открытый спор.
type Dispute struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	TransactionID    uuid.UUID        `db:"transaction_id" json:"transaction_id"`
	PaymentID        uuid.UUID        `db:"payment_id" json:"payment_id"`
	InitiatorID      uuid.UUID        `db:"initiator_id" json:"initiator_id"`
	Type             string           `db:"type" json:"type"`
	Status           string           `db:"status" json:"status"`
	Description      string           `db:"description" json:"description"`
	EvidencePhotos   pq.StringArray   `db:"evidence_photos" json:"evidence_photos"`
	ResponseDeadline time.Time        `db:"response_deadline" json:"response_deadline"`
	SellerResponse   *string          `db:"seller_response" json:"seller_response,omitempty"`
	ResolutionType   *string          `db:"resolution_type" json:"resolution_type,omitempty"`
	ResolutionAmount *decimal.Decimal `db:"resolution_amount" json:"resolution_amount,omitempty"`
	ResolutionNotes  *string          `db:"resolution_notes" json:"resolution_notes,omitempty"`
	MediatorID       *uuid.UUID       `db:"mediator_id" json:"mediator_id,omitempty"`
	ResolvedAt       *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`

	// ResponseDeadlinePassed вычисляется при чтении, переход по дедлайну
	// не выполняется автоматически — эскалация остаётся действием стороны.
	ResponseDeadlinePassed bool `db:"-" json:"response_deadline_passed"`
}

// DisputeMessage описывает сообщение в ветке спора. Неизменяемо после создания.
type DisputeMessage struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	DisputeID uuid.UUID      `db:"dispute_id" json:"dispute_id"`
	AuthorID  uuid.UUID      `db:"author_id" json:"author_id"`
	Body      string         `db:"body" json:"body"`
	Photos    pq.StringArray `db:"photos" json:"photos"`
	Internal  bool           `db:"internal" json:"internal"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// DisputeCanTransition проверяет допустимость перехода статуса спора.
func DisputeCanTransition(from, to string) bool {
	for _, next := range DisputeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsDisputeTerminal сообщает, завершён ли спор.
func IsDisputeTerminal(status string) bool {
	return status == DisputeStatusResolved || status == DisputeStatusClosed
}
