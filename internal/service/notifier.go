package service

import (
	"github.com/google/uuid"

	"github.com/tcgbazaar/escrow-backend/internal/ws"
)

// notifier рассылает события участникам через websocket-хаб.
// Хаб необязателен: без него сервис просто не шлёт push-события.
// Сохранение уведомлений в БД выполняет сам хаб через NotificationSaver.
type notifier struct {
	hub *ws.Hub
}

// SetHub устанавливает хаб для отправки событий.
func (n *notifier) SetHub(hub *ws.Hub) {
	n.hub = hub
}

func (n *notifier) notify(userID uuid.UUID, event string, data interface{}) {
	if n.hub == nil {
		return
	}
	_ = n.hub.BroadcastToUser(userID, event, data)
}
