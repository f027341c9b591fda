package repository

import (
	"context"
	"sync"
	"testing"

	"dermai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_FindOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)

	first, created, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Zero(t, first.DoctorUnreadCount)
	assert.Zero(t, first.PatientUnreadCount)

	again, created, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	perReport, created, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 77)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, perReport.ID, "report-scoped threads are distinct")
}

func TestConversationRepository_FindOrCreateConcurrent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	doctor, patient := createPair(t, db)

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]uint, workers)
	createdFlags := make([]bool, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, created, err := repo.FindOrCreate(context.Background(), doctor.ID, patient.ID, 0)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
			createdFlags[i] = created
		}(i)
	}
	wg.Wait()

	creations := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if createdFlags[i] {
			creations++
		}
	}
	assert.Equal(t, 1, creations)

	var count int64
	db.Model(&models.Conversation{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestConversationRepository_AppendMessageCounters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	conv, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)

	msg, updated, err := repo.AppendMessage(ctx, conv.ID, doctor.ID, models.RoleDoctor, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, int64(1), msg.Seq)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", msg.PublicID.String())
	assert.False(t, msg.IsRead)
	assert.Equal(t, 0, updated.DoctorUnreadCount, "sender side is unaffected")
	assert.Equal(t, 1, updated.PatientUnreadCount)
	assert.Equal(t, "hello", updated.LastMessage)
	require.NotNil(t, updated.LastMessageAt)

	// back-to-back from the same sender
	_, updated, err = repo.AppendMessage(ctx, conv.ID, doctor.ID, models.RoleDoctor, "are you there?")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.PatientUnreadCount)
	assert.Equal(t, int64(2), updated.MessageCount)

	_, updated, err = repo.AppendMessage(ctx, conv.ID, patient.ID, models.RolePatient, "yes")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.DoctorUnreadCount)
	assert.Equal(t, 2, updated.PatientUnreadCount)
}

func TestConversationRepository_AppendMessageRejections(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	stranger := createUser(t, db, models.RolePatient, "Sam", "Stranger")
	conv, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)

	tests := []struct {
		name     string
		convID   uint
		sender   uint
		role     models.Role
		text     string
		wantCode string
	}{
		{"unknown conversation", 9999, doctor.ID, models.RoleDoctor, "hi", models.CodeNotFound},
		{"non participant", conv.ID, stranger.ID, models.RolePatient, "hi", models.CodeForbidden},
		{"role mismatch", conv.ID, patient.ID, models.RoleDoctor, "hi", models.CodeForbidden},
		{"empty text", conv.ID, patient.ID, models.RolePatient, "", models.CodeValidation},
		{"whitespace text", conv.ID, patient.ID, models.RolePatient, " \n\t ", models.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, _, err := repo.AppendMessage(ctx, tt.convID, tt.sender, tt.role, tt.text)
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.Equal(t, tt.wantCode, models.CodeOf(err))
		})
	}

	after := reloadConversation(t, db, conv.ID)
	assert.Zero(t, after.MessageCount)
	assert.Zero(t, after.DoctorUnreadCount)
	assert.Zero(t, after.PatientUnreadCount)
	var msgs int64
	db.Model(&models.Message{}).Count(&msgs)
	assert.Zero(t, msgs)
}

func TestConversationRepository_MarkRead(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	conv, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, _, err := repo.AppendMessage(ctx, conv.ID, doctor.ID, models.RoleDoctor, text)
		require.NoError(t, err)
	}
	_, _, err = repo.AppendMessage(ctx, conv.ID, patient.ID, models.RolePatient, "mine")
	require.NoError(t, err)

	marked, err := repo.MarkRead(ctx, conv.ID, models.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked, "only the other side's messages are marked")

	first := reloadConversation(t, db, conv.ID)
	assert.Zero(t, first.PatientUnreadCount)
	assert.Equal(t, 1, first.DoctorUnreadCount)

	var unreadFromDoctor int64
	db.Model(&models.Message{}).Where("sender_role = ? AND is_read = ?", models.RoleDoctor, false).Count(&unreadFromDoctor)
	assert.Zero(t, unreadFromDoctor)

	var readAtSet int64
	db.Model(&models.Message{}).Where("read_at IS NOT NULL").Count(&readAtSet)
	assert.Equal(t, int64(3), readAtSet)

	// idempotent
	marked, err = repo.MarkRead(ctx, conv.ID, models.RolePatient)
	require.NoError(t, err)
	assert.Zero(t, marked)
	second := reloadConversation(t, db, conv.ID)
	assert.Equal(t, first.PatientUnreadCount, second.PatientUnreadCount)
	assert.Equal(t, first.DoctorUnreadCount, second.DoctorUnreadCount)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))

	_, err = repo.MarkRead(ctx, 4242, models.RolePatient)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}

func TestConversationRepository_UnreadEqualsSentMinusResets(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	conv, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)

	sinceReset := 0
	for i := 1; i <= 10; i++ {
		_, updated, err := repo.AppendMessage(ctx, conv.ID, patient.ID, models.RolePatient, "msg")
		require.NoError(t, err)
		sinceReset++
		assert.Equal(t, sinceReset, updated.DoctorUnreadCount)

		if i%4 == 0 {
			_, err := repo.MarkRead(ctx, conv.ID, models.RoleDoctor)
			require.NoError(t, err)
			sinceReset = 0
			assert.Zero(t, reloadConversation(t, db, conv.ID).DoctorUnreadCount)
		}
	}
}

func TestConversationRepository_ConcurrentAppendsKeepOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	conv, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)

	const perSide = 15
	var wg sync.WaitGroup
	send := func(sender uint, role models.Role) {
		defer wg.Done()
		for i := 0; i < perSide; i++ {
			_, _, err := repo.AppendMessage(ctx, conv.ID, sender, role, "ping")
			assert.NoError(t, err)
		}
	}
	wg.Add(2)
	go send(doctor.ID, models.RoleDoctor)
	go send(patient.ID, models.RolePatient)
	wg.Wait()

	full, err := repo.Get(ctx, conv.ID, patient.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 2*perSide)
	for i, m := range full.Messages {
		assert.Equal(t, int64(i+1), m.Seq)
		if i > 0 {
			assert.Less(t, full.Messages[i-1].ID, m.ID, "seq order equals append order")
		}
	}
	assert.Equal(t, perSide, full.DoctorUnreadCount)
	assert.Equal(t, perSide, full.PatientUnreadCount)
	assert.Equal(t, int64(2*perSide), full.MessageCount)
}

func TestConversationRepository_GetAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	otherDoctor := createUser(t, db, models.RoleDoctor, "Olga", "Other")

	older, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)
	newer, _, err := repo.FindOrCreate(ctx, otherDoctor.ID, patient.ID, 0)
	require.NoError(t, err)

	_, _, err = repo.AppendMessage(ctx, older.ID, patient.ID, models.RolePatient, "bump")
	require.NoError(t, err)

	list, err := repo.ListForUser(ctx, patient.ID, models.RolePatient)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID, "most recent activity first")
	assert.Equal(t, newer.ID, list[1].ID)
	require.NotNil(t, list[0].Doctor)
	assert.Equal(t, "Dana Derm", list[0].Doctor.DisplayName())

	doctorList, err := repo.ListForUser(ctx, doctor.ID, models.RoleDoctor)
	require.NoError(t, err)
	assert.Len(t, doctorList, 1)

	got, err := repo.Get(ctx, older.ID, doctor.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
	require.NotNil(t, got.Patient)

	_, err = repo.Get(ctx, older.ID, otherDoctor.ID)
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))
	_, err = repo.Get(ctx, 999, doctor.ID)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))

	ids, err := repo.ParticipantConversationIDs(ctx, patient.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{older.ID, newer.ID}, ids)

	role, err := repo.Participant(ctx, older.ID, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleDoctor, role)
	_, err = repo.Participant(ctx, older.ID, otherDoctor.ID)
	assert.Equal(t, models.CodeForbidden, models.CodeOf(err))
	_, err = repo.Participant(ctx, 999, doctor.ID)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}

func TestConversationRepository_MessagesAfterSeq(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)
	conv, _, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := repo.AppendMessage(ctx, conv.ID, doctor.ID, models.RoleDoctor, "m")
		require.NoError(t, err)
	}

	msgs, err := repo.Messages(ctx, conv.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, int64(4), msgs[1].Seq)

	all, err := repo.Messages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

// Patient opens a chat, doctor says hello, patient reads it.
func TestConversationRepository_OpenSendReadScenario(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()
	doctor, patient := createPair(t, db)

	conv, created, err := repo.FindOrCreate(ctx, doctor.ID, patient.ID, 0)
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = repo.AppendMessage(ctx, conv.ID, doctor.ID, models.RoleDoctor, "hello")
	require.NoError(t, err)
	mid := reloadConversation(t, db, conv.ID)
	assert.Zero(t, mid.DoctorUnreadCount)
	assert.Equal(t, 1, mid.PatientUnreadCount)

	_, err = repo.MarkRead(ctx, conv.ID, models.RolePatient)
	require.NoError(t, err)
	full, err := repo.Get(ctx, conv.ID, patient.ID)
	require.NoError(t, err)
	assert.Zero(t, full.PatientUnreadCount)
	require.Len(t, full.Messages, 1)
	assert.True(t, full.Messages[0].IsRead)
}
