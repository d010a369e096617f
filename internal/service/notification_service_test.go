package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
)

type mockNotificationRepo struct {
	notifications map[uuid.UUID]*models.Notification
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{notifications: make(map[uuid.UUID]*models.Notification)}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.notifications[n.ID] = n
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	n, ok := m.notifications[id]
	if !ok {
		return nil, repository.ErrNotificationNotFound
	}
	return n, nil
}

func (m *mockNotificationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	if n, ok := m.notifications[id]; ok {
		n.IsRead = true
	}
	return nil
}

func (m *mockNotificationRepo) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	for _, n := range m.notifications {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func TestNotificationService_CreateForWS(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := NewNotificationService(repo)
	ctx := context.Background()
	userID := uuid.New()

	err := svc.CreateNotificationForWS(ctx, userID, models.EventEscrowHeld, map[string]string{"payment_id": uuid.NewString()})
	require.NoError(t, err)

	list, err := svc.List(ctx, userID, 20, 0, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	var payload struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(list[0].Payload, &payload), "пейлоад должен быть валидным JSON")
	assert.Equal(t, models.EventEscrowHeld, payload.Event, "пейлоад должен нести событие")
}

func TestNotificationService_MarkAsReadOwnership(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := NewNotificationService(repo)
	ctx := context.Background()
	owner := uuid.New()

	require.NoError(t, svc.CreateNotificationForWS(ctx, owner, models.EventDealCompleted, nil))
	var id uuid.UUID
	for nid := range repo.notifications {
		id = nid
	}

	// Чужое уведомление отметить нельзя.
	err := svc.MarkAsRead(ctx, id, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotificationNotFound)

	require.NoError(t, svc.MarkAsRead(ctx, id, owner))
	unread, err := svc.CountUnread(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
