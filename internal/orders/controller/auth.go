package controller

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gartstein/orderdesk/internal/orders/auth"
	"github.com/gartstein/orderdesk/internal/orders/db"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/gartstein/orderdesk/internal/orders/policy"
	"go.uber.org/zap"
)

// AuthService verifies credentials and manages user accounts.
type AuthService struct {
	base

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs an AuthService.
func NewAuthService(store Store, producer EventProducer, logger *zap.Logger, opts ...Option) *AuthService {
	return &AuthService{base: newBase(store, producer, logger.Named("auth_service"), opts)}
}

// Authenticate checks username and password and returns the actor to run
// later operations under. Unknown usernames and wrong passwords both fail
// with ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (models.Actor, error) {
	var user *models.User
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		user, err = repo.GetUserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, e.ErrNotFound) {
		// spend the same work as a real comparison
		auth.CheckPassword(s.dummy(), password)
		return models.Actor{}, e.ErrInvalidCredentials
	}
	if err != nil {
		return models.Actor{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return models.Actor{}, e.ErrInvalidCredentials
	}

	if auth.NeedsRehash(user.PasswordHash, s.hashCost) {
		s.rehash(ctx, user, password)
	}
	return models.ActorOf(*user), nil
}

// rehash upgrades a credential stored with a lower cost. Failure leaves the
// old, still valid hash in place.
func (s *AuthService) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := auth.HashPassword(password, s.hashCost)
	if err != nil {
		return
	}
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		return repo.UpdatePasswordHash(ctx, user.ID, hash)
	})
	if err == nil {
		s.logger.Debug("credential rehashed", zap.String("username", user.Username))
	}
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("orderdesk-dummy-credential", s.hashCost)
	})
	return s.dummyHash
}

// CreateUser adds an account. Only administrators may call it.
func (s *AuthService) CreateUser(ctx context.Context, username, password string, isAdmin bool) (*models.User, error) {
	actor, err := s.authorize(ctx, policy.UserCreate, policy.Target{})
	if err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, e.Invalid("username", "is required")
	}
	if len(username) > 64 {
		return nil, e.Invalid("username", "is longer than 64 characters")
	}
	if password == "" {
		return nil, e.Invalid("password", "is required")
	}
	hash, err := auth.HashPassword(password, s.hashCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: username, PasswordHash: hash, IsAdmin: isAdmin}
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		exists, err := repo.UsernameExists(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return &e.ConflictError{Entity: "user", Field: "username", Value: username}
		}
		user.ID = 0
		return repo.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, conflictOn(err, "user", "username", username)
	}

	s.logger.Debug("user created", zap.Int64("user_id", user.ID), zap.String("actor", actor.Username))
	s.publish(events.UserCreated, user.ID, actor, map[string]any{"username": user.Username, "is_admin": user.IsAdmin})
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword replaces the credential of userID. Changing one's own
// password requires oldPassword; administrators reset other accounts
// without it.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return e.ErrUnauthenticated
	}
	if err := policy.Authorize(actor, policy.UserChangePassword, policy.Target{UserID: userID}); err != nil {
		return err
	}
	if newPassword == "" {
		return e.Invalid("password", "is required")
	}

	var target *models.User
	err := s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		target, err = repo.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	if actor.UserID == target.ID && !auth.CheckPassword(target.PasswordHash, oldPassword) {
		return e.ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword, s.hashCost)
	if err != nil {
		return err
	}
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		return repo.UpdatePasswordHash(ctx, userID, hash)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("password changed", zap.Int64("user_id", userID), zap.String("actor", actor.Username))
	s.publish(events.UserPasswordChanged, userID, actor, nil)
	return nil
}

// DeleteUser removes an account. The seeded administrator is never
// deletable and nobody may delete their own account.
func (s *AuthService) DeleteUser(ctx context.Context, userID int64) error {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return e.ErrUnauthenticated
	}

	err := s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		target, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(actor, policy.UserDelete, policy.TargetOf(*target)); err != nil {
			return err
		}
		return repo.DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("user deleted", zap.Int64("user_id", userID), zap.String("actor", actor.Username))
	s.publish(events.UserDeleted, userID, actor, nil)
	return nil
}

// ListUsers returns every account ordered by username, without hashes.
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	if _, err := s.authorize(ctx, policy.UserList, policy.Target{}); err != nil {
		return nil, err
	}

	var users []models.User
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		users, err = repo.ListUsers(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// conflictOn gives a bare unique violation reported by the store the
// detail of the key the caller was writing.
func conflictOn(err error, entity, field, value string) error {
	var conflict *e.ConflictError
	if errors.Is(err, e.ErrDuplicate) && !errors.As(err, &conflict) {
		return &e.ConflictError{Entity: entity, Field: field, Value: value}
	}
	return err
}
