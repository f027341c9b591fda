package repository

import (
	"context"
	"strings"

	"dermai/internal/cache"
	"dermai/internal/models"
	"dermai/internal/validation"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewUserRepository returns a UserRepository that caches lookups by id in Redis when rdb is set.
func NewUserRepository(db *gorm.DB, rdb *redis.Client) UserRepository {
	return &userRepository{db: db, rdb: rdb}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := cache.Remember(ctx, r.rdb, cache.UserKey(id), cache.UserTTL, func(ctx context.Context) (models.User, error) {
		var u models.User
		if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
			return u, translateError(err, "User", id)
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		return nil, translateError(err, "User", email)
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if !user.Role.Valid() {
		return models.NewValidationError("role must be patient or doctor")
	}
	if err := validation.Email(user.Email); err != nil {
		return models.NewValidationError(err.Error())
	}
	for _, name := range []string{user.FirstName, user.LastName} {
		if err := validation.PersonName(name); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewValidationError("email already registered")
		}
		return models.NewInternalError(err)
	}
	cache.Invalidate(ctx, r.rdb, cache.UserKey(user.ID))
	return nil
}
