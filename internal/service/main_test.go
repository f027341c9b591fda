package service

import (
	"testing"

	"dermai/internal/models"
	"dermai/internal/repository"
	"dermai/internal/testutil"

	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	pub      *testutil.RecordingPublisher
	convs    repository.ConversationRepository
	notes    repository.NotificationRepository
	users    repository.UserRepository
	reportDB repository.ReportRepository
	chat     *ChatService
	notify   *NotificationService
	reports  *ReportService
	doctor   *models.User
	patient  *models.User
	stranger *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := &testutil.RecordingPublisher{}

	convs := repository.NewConversationRepository(db)
	users := repository.NewUserRepository(db, nil)
	notes := repository.NewNotificationRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notify := NewNotificationService(notes, pub)

	doctor, patient := testutil.CreatePair(t, db)
	stranger := testutil.CreateUser(t, db, models.RolePatient, "Sam", "Stranger")

	return &fixture{
		db:       db,
		pub:      pub,
		convs:    convs,
		notes:    notes,
		users:    users,
		reportDB: reportRepo,
		chat:     NewChatService(convs, users, reportRepo, notify, pub),
		notify:   notify,
		reports:  NewReportService(reportRepo, users, convs, notify),
		doctor:   doctor,
		patient:  patient,
		stranger: stranger,
	}
}
