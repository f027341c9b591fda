// Package testutil provides shared test doubles and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"dermai/internal/database"
	"dermai/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps the database alive and serialises writers.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with a predictable email.
func CreateUser(t testing.TB, db *gorm.DB, role models.Role, first, last string) *models.User {
	t.Helper()
	u := &models.User{
		Email:     fmt.Sprintf("%s.%s@dermai.test", first, last),
		Password:  "x",
		Role:      role,
		FirstName: first,
		LastName:  last,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePair inserts the doctor Dana Derm and the patient Pat Doe.
func CreatePair(t testing.TB, db *gorm.DB) (doctor, patient *models.User) {
	t.Helper()
	return CreateUser(t, db, models.RoleDoctor, "Dana", "Derm"), CreateUser(t, db, models.RolePatient, "Pat", "Doe")
}

// CreateReport inserts a report owned by patientID.
func CreateReport(t testing.TB, db *gorm.DB, patientID uint) *models.Report {
	t.Helper()
	r := &models.Report{PatientID: patientID, Diagnosis: "benign keratosis", Confidence: 0.91}
	require.NoError(t, db.Create(r).Error)
	return r
}
