// Package seed creates demo doctors, patients, reports and conversations for
// development and load testing.
package seed

import (
	"context"
	"fmt"
	"log"

	"dermai/internal/models"
	"dermai/internal/repository"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	Doctors                 int
	Patients                int
	ReportsPerPatient       int
	MessagesPerConversation int
	Password                string
	RandomSeed              int64
	ShouldClean             bool
}

// DefaultOptions is a small but complete data set.
func DefaultOptions() Options {
	return Options{
		Doctors:                 3,
		Patients:                10,
		ReportsPerPatient:       1,
		MessagesPerConversation: 6,
		Password:                "DermaiDemo123!",
	}
}

// Result lists what was created.
type Result struct {
	Doctors       []models.User
	Patients      []models.User
	Reports       int
	Conversations int
	Messages      int
}

// Seed populates the database. Each patient gets a general thread with one
// doctor and a report thread per report, filled with alternating messages.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	if opts.Doctors <= 0 || opts.Patients <= 0 {
		return nil, fmt.Errorf("seed needs at least one doctor and one patient")
	}
	log.Printf("🌱 Seeding %d doctors and %d patients...", opts.Doctors, opts.Patients)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f, err := NewFactory(db, opts.Password, opts.RandomSeed)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if res.Doctors, err = f.CreateUsers(ctx, models.RoleDoctor, opts.Doctors); err != nil {
		return nil, err
	}
	if res.Patients, err = f.CreateUsers(ctx, models.RolePatient, opts.Patients); err != nil {
		return nil, err
	}
	log.Printf("✓ %d users created", len(res.Doctors)+len(res.Patients))

	convs := repository.NewConversationRepository(db)
	reports := repository.NewReportRepository(db)

	for i, patient := range res.Patients {
		doctor := res.Doctors[i%len(res.Doctors)]

		threads := []uint{0}
		for r := 0; r < opts.ReportsPerPatient; r++ {
			report := f.BuildReport(patient.ID)
			if err := reports.Create(ctx, report); err != nil {
				return nil, err
			}
			if _, err := reports.Share(ctx, report.ID, doctor.ID); err != nil {
				return nil, err
			}
			res.Reports++
			threads = append(threads, report.ID)
		}

		for _, reportID := range threads {
			conv, created, err := convs.FindOrCreate(ctx, doctor.ID, patient.ID, reportID)
			if err != nil {
				return nil, err
			}
			if created {
				res.Conversations++
			}
			for m := 0; m < opts.MessagesPerConversation; m++ {
				sender, role := patient.ID, models.RolePatient
				if m%2 == 1 {
					sender, role = doctor.ID, models.RoleDoctor
				}
				if _, _, err := convs.AppendMessage(ctx, conv.ID, sender, role, f.Line(role)); err != nil {
					return nil, err
				}
				res.Messages++
			}
		}
	}

	log.Printf("✓ %d reports, %d conversations, %d messages", res.Reports, res.Conversations, res.Messages)
	log.Println("🎉 Database seeding completed successfully!")
	return res, nil
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE notifications, messages, conversations, report_shares, reports, users RESTART IDENTITY CASCADE;`).Error
	}
	for _, table := range []string{"notifications", "messages", "conversations", "report_shares", "reports", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
