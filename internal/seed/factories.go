package seed

import (
	"context"
	"fmt"
	"strings"

	"dermai/internal/models"
	"dermai/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	specializations = []string{
		"General Dermatology", "Dermatopathology", "Mohs Surgery",
		"Pediatric Dermatology", "Cosmetic Dermatology", "Teledermatology",
	}

	// Lesion classes the prediction model reports.
	diagnoses = []string{
		"melanocytic nevus", "melanoma", "benign keratosis", "basal cell carcinoma",
		"actinic keratosis", "vascular lesion", "dermatofibroma",
	}

	patientLines = []string{
		"The spot on my arm looks darker than last month.",
		"It has started to itch a little at night.",
		"Should I be worried about the irregular border?",
		"I uploaded a new photo this morning.",
		"Thanks, I will book the follow-up.",
	}

	doctorLines = []string{
		"Thanks for sharing the report. Could you send a closer photo?",
		"The model confidence is moderate, so I'd like to see it in person.",
		"Please avoid sun exposure on that area for now.",
		"Nothing urgent, but let's check again in six weeks.",
		"I have reviewed the images and left a note on your file.",
	}
)

// Factory builds seed entities and persists them.
type Factory struct {
	db     *gorm.DB
	faker  *gofakeit.Faker
	hashed string
	nextN  int
}

// NewFactory hashes password once and returns a Factory. A zero seed picks a random one.
func NewFactory(db *gorm.DB, password string, seed int64) (*Factory, error) {
	if err := validation.Password(password); err != nil {
		return nil, fmt.Errorf("seed password: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{db: db, faker: gofakeit.New(seed), hashed: string(hashed)}, nil
}

// BuildUser returns an unsaved user with a unique, role-prefixed email.
func (f *Factory) BuildUser(role models.Role) *models.User {
	f.nextN++
	first, last := f.faker.FirstName(), f.faker.LastName()
	u := &models.User{
		Email:          fmt.Sprintf("%s.%s.%d@%s.dermai.test", strings.ToLower(first), strings.ToLower(last), f.nextN, role),
		Password:       f.hashed,
		Role:           role,
		FirstName:      first,
		LastName:       last,
		ProfilePicture: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
	if role == models.RoleDoctor {
		u.Specialization = specializations[f.faker.Number(0, len(specializations)-1)]
	}
	return u
}

// BuildReport returns an unsaved prediction report for patientID.
func (f *Factory) BuildReport(patientID uint) *models.Report {
	return &models.Report{
		PatientID:  patientID,
		Diagnosis:  diagnoses[f.faker.Number(0, len(diagnoses)-1)],
		Confidence: float64(f.faker.Number(55, 99)) / 100,
		ImageURL:   fmt.Sprintf("https://picsum.photos/seed/%s/600/600", f.faker.UUID()),
	}
}

// Line returns a plausible chat line for the sender's role.
func (f *Factory) Line(role models.Role) string {
	if role == models.RoleDoctor {
		return doctorLines[f.faker.Number(0, len(doctorLines)-1)]
	}
	return patientLines[f.faker.Number(0, len(patientLines)-1)]
}

// CreateUsers persists count users of the given role.
func (f *Factory) CreateUsers(ctx context.Context, role models.Role, count int) ([]models.User, error) {
	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		u := f.BuildUser(role)
		if err := f.db.WithContext(ctx).Create(u).Error; err != nil {
			return users, fmt.Errorf("create %s %s: %w", role, u.Email, err)
		}
		users = append(users, *u)
	}
	return users, nil
}
