package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Статусы посылки на проверочном хабе
const (
	PackageStatusPending   = "pending"
	PackageStatusInTransit = "in_transit"
	PackageStatusReceived  = "received"
	PackageStatusVerified  = "verified"
	PackageStatusShipped   = "shipped"
	PackageStatusDelivered = "delivered"
	PackageStatusReturned  = "returned"
)

// PackageTransitions таблица допустимых переходов посылки.
// Возврат возможен только из received и verified (провал проверки).
var PackageTransitions = map[string][]string{
	PackageStatusPending:   {PackageStatusInTransit},
	PackageStatusInTransit: {PackageStatusReceived},
	PackageStatusReceived:  {PackageStatusVerified, PackageStatusReturned},
	PackageStatusVerified:  {PackageStatusShipped, PackageStatusReturned},
	PackageStatusShipped:   {PackageStatusDelivered},
}

// Package описывает физическую кастодиальную запись о товаре на хабе.
// Статус движется только вперёд, терминальные состояния delivered и returned.
type Package struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	TransactionID    uuid.UUID      `db:"transaction_id" json:"transaction_id"`
	HubID            uuid.UUID      `db:"hub_id" json:"hub_id"`
	Status           string         `db:"status" json:"status"`
	InboundTracking  *string        `db:"inbound_tracking" json:"inbound_tracking,omitempty"`
	OutboundTracking *string        `db:"outbound_tracking" json:"outbound_tracking,omitempty"`
	VerifyPhotos     pq.StringArray `db:"verify_photos" json:"verify_photos"`
	ReturnReason     *string        `db:"return_reason" json:"return_reason,omitempty"`
	ReceivedAt       *time.Time     `db:"received_at" json:"received_at,omitempty"`
	VerifiedAt       *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
	ShippedAt        *time.Time     `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// PackageAuditEntry описывает строку аудита перехода посылки.
type PackageAuditEntry struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PackageID  uuid.UUID `db:"package_id" json:"package_id"`
	ActorID    uuid.UUID `db:"actor_id" json:"actor_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PackageCanTransition проверяет допустимость перехода статуса посылки.
func PackageCanTransition(from, to string) bool {
	for _, next := range PackageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsPackageTerminal сообщает, завершён ли маршрут посылки.
func IsPackageTerminal(status string) bool {
	return status == PackageStatusDelivered || status == PackageStatusReturned
}
