package ws

import (
	"context"

	"github.com/google/uuid"
)

// wsNotificationCreator — часть NotificationService, нужная хабу.
type wsNotificationCreator interface {
	CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// NotificationServiceAdapter подгоняет NotificationService под NotificationSaver,
// не затягивая пакет service в зависимости хаба.
type NotificationServiceAdapter struct {
	service wsNotificationCreator
}

// NewNotificationServiceAdapter создаёт адаптер.
func NewNotificationServiceAdapter(service wsNotificationCreator) *NotificationServiceAdapter {
	return &NotificationServiceAdapter{service: service}
}

// CreateNotification реализует NotificationSaver.
func (a *NotificationServiceAdapter) CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	return a.service.CreateNotificationForWS(ctx, userID, event, data)
}
