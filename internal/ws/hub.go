package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tcgbazaar/escrow-backend/internal/goroutine"
	"github.com/tcgbazaar/escrow-backend/internal/logger"
)

// NotificationSaver дублирует отправленное событие в постоянное хранилище,
// чтобы пользователь увидел его даже без активного соединения.
type NotificationSaver interface {
	CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// Hub ведёт учёт активных WebSocket подключений по пользователям.
// Один пользователь может держать несколько соединений (веб + мобильный клиент).
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	outbound   chan outboundEvent
	saver      NotificationSaver
	ctx        context.Context
}

type outboundEvent struct {
	userID uuid.UUID
	frame  []byte
}

// NewHub создаёт хаб. Контекст ограничивает время жизни фоновых операций.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan outboundEvent, 64),
		ctx:        ctx,
	}
}

// SetNotificationSaver подключает сохранение уведомлений.
func (h *Hub) SetNotificationSaver(saver NotificationSaver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saver = saver
}

// Run крутит главный цикл хаба до отмены контекста.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case ev := <-h.outbound:
			h.deliver(ev.userID, ev.frame)
		}
	}
}

// Register добавляет подключение пользователя.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister снимает подключение с учёта.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser доставляет событие во все соединения пользователя и
// параллельно сохраняет его как уведомление. Кадр повторяет формат
// сохранённого payload: {"event": <имя>, "data": <данные>}.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	frame, err := json.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать событие %s: %w", event, err)
	}

	h.mu.RLock()
	saver := h.saver
	ctx := h.ctx
	h.mu.RUnlock()

	if saver != nil {
		// Сохранение не должно задерживать доставку по соединениям.
		goroutine.SafeGo(func() {
			if err := saver.CreateNotification(ctx, userID, event, data); err != nil {
				if logger.Log != nil {
					logger.Log.WithError(err).WithField("event", event).
						Warn("не удалось сохранить уведомление")
				}
			}
		})
	}

	h.outbound <- outboundEvent{userID: userID, frame: frame}
	return nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.userID]
	if !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) deliver(userID uuid.UUID, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- frame:
		default:
			// Переполненный буфер означает зависшее соединение: закрываем его,
			// не блокируя рассылку остальным.
			slow := client
			goroutine.SafeGo(func() {
				slow.Close()
			})
		}
	}
}
