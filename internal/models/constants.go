package models

// Роли пользователей платформы
const (
	RoleUser  = "user"
	RoleHub   = "hub"
	RoleAdmin = "admin"
)

// Способы оплаты
const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodWallet       = "wallet"
)

// События для уведомлений и websocket-подписки
const (
	EventEscrowInitiated   = "escrow.initiated"
	EventEscrowHeld        = "escrow.held"
	EventEscrowReleased    = "escrow.released"
	EventEscrowRefunded    = "escrow.refunded"
	EventDisputeOpened     = "dispute.opened"
	EventDisputeResponded  = "dispute.responded"
	EventDisputeEscalated  = "dispute.escalated"
	EventDisputeResolved   = "dispute.resolved"
	EventDisputeMessage    = "dispute.message"
	EventReleaseCreated    = "release.created"
	EventReleaseApproved   = "release.approved"
	EventReleaseRejected   = "release.rejected"
	EventReleaseExpired    = "release.expired"
	EventPackageReceived   = "package.received"
	EventPackageVerified   = "package.verified"
	EventPackageReturned   = "package.returned"
	EventPackageShipped    = "package.shipped"
	EventPackageDelivered  = "package.delivered"
	EventDealCreated       = "deal.created"
	EventDealCompleted     = "deal.completed"
	EventDealCancelled     = "deal.cancelled"
	EventSplitShareUpdated = "split.share_updated"
)

// ValidRoles список валидных ролей
var ValidRoles = map[string]struct{}{
	RoleUser:  {},
	RoleHub:   {},
	RoleAdmin: {},
}

// ValidPaymentMethods список валидных способов оплаты
var ValidPaymentMethods = map[string]struct{}{
	PaymentMethodCash:         {},
	PaymentMethodCard:         {},
	PaymentMethodBankTransfer: {},
	PaymentMethodWallet:       {},
}
