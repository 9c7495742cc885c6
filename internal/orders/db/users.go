package db

import (
	"context"
	"fmt"

	"github.com/gartstein/orderdesk/internal/orders/db/models"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	domain "github.com/gartstein/orderdesk/internal/orders/models"
)

func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	rec := &models.User{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		IsAdmin:      user.IsAdmin,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translate(err)
	}
	*user = *userToDomain(rec)
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var rec models.User
	if err := r.db.WithContext(ctx).Take(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(translate(err), "user", id)
	}
	return userToDomain(&rec), nil
}

// GetUserByUsername looks a user up by exact, case-sensitive username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var rec models.User
	if err := r.db.WithContext(ctx).Take(&rec, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return userToDomain(&rec), nil
}

func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Limit(1).
		Count(&count)
	return count > 0, translate(result.Error)
}

// ListUsers returns every account ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	var recs []models.User
	if err := r.db.WithContext(ctx).Order("username").Find(&recs).Error; err != nil {
		return nil, translate(err)
	}
	users := make([]domain.User, 0, len(recs))
	for i := range recs {
		users = append(users, *userToDomain(&recs[i]))
	}
	return users, nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("password_hash", hash)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", e.ErrNotFound, id)
	}
	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", e.ErrNotFound, id)
	}
	return nil
}

// notFound adds the entity and id to a bare ErrNotFound.
func notFound(err error, entity string, id int64) error {
	if err == e.ErrNotFound {
		return fmt.Errorf("%w: %s %d", e.ErrNotFound, entity, id)
	}
	return err
}
