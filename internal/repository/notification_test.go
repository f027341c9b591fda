package repository

import (
	"context"
	"testing"

	"dermai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(userID uint, typ models.NotificationType) *models.Notification {
	return &models.Notification{
		UserID:       userID,
		Type:         typ,
		Title:        "New Message",
		Message:      "You have a new message from Dana Derm",
		RelatedID:    1,
		RelatedModel: models.RelatedConversation,
	}
}

func TestNotificationRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	_, patient := createPair(t, db)

	for i := 0; i < NotificationListLimit+5; i++ {
		require.NoError(t, repo.Create(ctx, newNotification(patient.ID, models.NotificationMessageReceived)))
	}

	all, err := repo.List(ctx, patient.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, NotificationListLimit)
	assert.Greater(t, all[0].ID, all[len(all)-1].ID, "newest first")

	count, err := repo.CountUnread(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(NotificationListLimit+5), count)
}

func TestNotificationRepository_AppendOnlyNoDedup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	doctor, _ := createPair(t, db)

	n1 := newNotification(doctor.ID, models.NotificationChatStarted)
	n2 := newNotification(doctor.ID, models.NotificationChatStarted)
	require.NoError(t, repo.Create(ctx, n1))
	require.NoError(t, repo.Create(ctx, n2))
	assert.NotEqual(t, n1.ID, n2.ID)
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)

	mine := newNotification(patient.ID, models.NotificationReportShared)
	require.NoError(t, repo.Create(ctx, mine))
	other := newNotification(patient.ID, models.NotificationMessageReceived)
	require.NoError(t, repo.Create(ctx, other))

	_, err := repo.MarkRead(ctx, mine.ID, doctor.ID)
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))
	_, err = repo.MarkRead(ctx, 999, patient.ID)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))

	n, err := repo.MarkRead(ctx, mine.ID, patient.ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	unread, err := repo.List(ctx, patient.ID, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, other.ID, unread[0].ID)

	marked, err := repo.MarkAllRead(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	count, err := repo.CountUnread(ctx, patient.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
