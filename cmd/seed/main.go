// Command seed populates the database with demo doctors, patients and conversations.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"dermai/internal/config"
	"dermai/internal/database"
	"dermai/internal/middleware"
	"dermai/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	defaults := seed.DefaultOptions()
	doctors := flag.Int("doctors", defaults.Doctors, "Number of doctors to create")
	patients := flag.Int("patients", defaults.Patients, "Number of patients to create")
	reports := flag.Int("reports", defaults.ReportsPerPatient, "Reports shared by each patient")
	messages := flag.Int("messages", defaults.MessagesPerConversation, "Messages per conversation")
	password := flag.String("password", defaults.Password, "Password for every seeded account")
	randomSeed := flag.Int64("seed", defaults.RandomSeed, "Random seed for generated data")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed demo tokens")
	flag.Parse()

	log.Println("DermAI Database Seeder")
	log.Printf("Target: %d doctors, %d patients, clean=%v", *doctors, *patients, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	res, err := seed.Seed(ctx, db, seed.Options{
		Doctors:                 *doctors,
		Patients:                *patients,
		ReportsPerPatient:       *reports,
		MessagesPerConversation: *messages,
		Password:                *password,
		RandomSeed:              *randomSeed,
		ShouldClean:             *shouldClean,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d doctors, %d patients, %d reports, %d conversations, %d messages",
		len(res.Doctors), len(res.Patients), res.Reports, res.Conversations, res.Messages)
	log.Printf("All seeded users have the password: %s", *password)

	for _, u := range []struct {
		label string
		id    uint
		email string
	}{
		{"doctor", res.Doctors[0].ID, res.Doctors[0].Email},
		{"patient", res.Patients[0].ID, res.Patients[0].Email},
	} {
		token, err := middleware.IssueToken(cfg, u.id, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		log.Printf("%s %s (id %d) token: %s", u.label, u.email, u.id, token)
	}
}
