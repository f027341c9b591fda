package database

import "dermai/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Report{},
		&models.ReportShare{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	}
}
