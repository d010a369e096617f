package repository

import "errors"

// Общие ошибки слоя хранилища
var (
	// ErrStateConflict возвращается, когда guarded-обновление не прошло:
	// сущность уже не в ожидаемом статусе. Вызывающий должен перечитать
	// состояние и принять решение заново, тихий retry недопустим.
	ErrStateConflict = errors.New("entity is not in the expected state")

	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPaymentNotFound     = errors.New("escrow payment not found")
	ErrDuplicateActive     = errors.New("active escrow payment already exists for transaction")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrDuplicateDispute    = errors.New("open dispute already exists for transaction")
	ErrReleaseNotFound     = errors.New("pending release not found")
	ErrPackageNotFound     = errors.New("package not found")
	ErrSplitNotFound       = errors.New("revenue split not found")
)
