package repository

import (
	"context"
	"testing"

	"dermai/internal/models"
	"dermai/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewTestDB(t)
}

func createUser(t *testing.T, db *gorm.DB, role models.Role, first, last string) *models.User {
	t.Helper()
	return testutil.CreateUser(t, db, role, first, last)
}

func createPair(t *testing.T, db *gorm.DB) (doctor, patient *models.User) {
	t.Helper()
	return testutil.CreatePair(t, db)
}

func reloadConversation(t *testing.T, db *gorm.DB, id uint) models.Conversation {
	t.Helper()
	var conv models.Conversation
	require.NoError(t, db.WithContext(context.Background()).First(&conv, id).Error)
	return conv
}
