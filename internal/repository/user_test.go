package repository

import (
	"context"
	"testing"

	"dermai/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewUserRepository(db, rdb)
	ctx := context.Background()

	u := &models.User{Email: " Dana@Clinic.test ", Password: "hash", Role: models.RoleDoctor, FirstName: "Dana", LastName: "Derm"}
	require.NoError(t, repo.Create(ctx, u))
	assert.Equal(t, "dana@clinic.test", u.Email)

	dup := &models.User{Email: "dana@clinic.test", Password: "hash", Role: models.RoleDoctor, FirstName: "D", LastName: "D"}
	assert.Equal(t, models.CodeValidation, models.CodeOf(repo.Create(ctx, dup)))

	bad := &models.User{Email: "x@y.zz", Password: "hash", Role: "nurse"}
	assert.Equal(t, models.CodeValidation, models.CodeOf(repo.Create(ctx, bad)))

	badEmail := &models.User{Email: "not-an-email", Password: "hash", Role: models.RolePatient}
	assert.Equal(t, models.CodeValidation, models.CodeOf(repo.Create(ctx, badEmail)))

	noName := &models.User{Email: "pat@clinic.test", Password: "hash", Role: models.RolePatient, FirstName: "Pat"}
	assert.Equal(t, models.CodeValidation, models.CodeOf(repo.Create(ctx, noName)))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dana Derm", got.DisplayName())
	assert.True(t, mr.Exists("user:1"))

	// served from cache after the row changes underneath
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", u.ID).Update("first_name", "Changed").Error)
	cached, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dana", cached.FirstName)

	byEmail, err := repo.GetByEmail(ctx, "DANA@clinic.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.GetByID(ctx, 4242)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
	assert.False(t, mr.Exists("user:4242"), "misses are not cached")
}

func TestReportRepository_Share(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)

	report := &models.Report{PatientID: patient.ID, Diagnosis: "benign nevus", Confidence: 0.93}
	require.NoError(t, repo.Create(ctx, report))

	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, got.PatientID)

	created, err := repo.Share(ctx, report.ID, doctor.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Share(ctx, report.ID, doctor.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.GetByID(ctx, 999)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}
