package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sodaledger/backend/internal/domain"
	"sodaledger/backend/internal/logging"
)

const (
	bootstrapUsername = "admin"
	minPasswordLength = 6
)

// Authenticate checks a username and password against stored credentials.
// Unknown users and wrong passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Actor, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		burnPasswordCheck(password)
		s.metrics.LoginFailed()
		return domain.Actor{}, domain.ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			burnPasswordCheck(password)
			s.metrics.LoginFailed()
			return domain.Actor{}, domain.ErrInvalidCredentials
		}
		return domain.Actor{}, err
	}

	ok, needsUpgrade := verifyPassword(user.PasswordHash, password)
	if !ok {
		s.metrics.LoginFailed()
		return domain.Actor{}, domain.ErrInvalidCredentials
	}

	if needsUpgrade {
		s.upgradePasswordHash(ctx, user.Username, password)
	}

	return domain.Actor{Username: user.Username, Role: user.Role}, nil
}

func (s *Service) upgradePasswordHash(ctx context.Context, username string, password string) {
	log := logging.FromContext(ctx, s.logger)
	hashed, err := hashPassword(password)
	if err != nil {
		log.Warn("failed to hash password during upgrade", zap.String("username", username), zap.Error(err))
		return
	}
	if err := s.repo.UpdateUserPassword(ctx, username, hashed); err != nil {
		log.Warn("failed to store upgraded password hash", zap.String("username", username), zap.Error(err))
		return
	}
	log.Info("upgraded legacy password hash", zap.String("username", username))
}

func (s *Service) CreateUser(ctx context.Context, actor domain.Actor, username string, password string, role string) (domain.User, error) {
	username = strings.TrimSpace(username)
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = domain.RoleStaff
	}

	if username == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.User{
		Username:     username,
		PasswordHash: hashed,
		Role:         role,
	})
	if err != nil {
		return domain.User{}, err
	}

	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Created user %s", created.Username))
	return *created, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListUsers(ctx)
}

// Bootstrap seeds the admin account on an empty users table. Losing a race
// with another process doing the same counts as success.
func (s *Service) Bootstrap(ctx context.Context, defaultPassword string) error {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if defaultPassword == "" {
		return fmt.Errorf("%w: bootstrap password is empty", domain.ErrValidation)
	}

	hashed, err := hashPassword(defaultPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	_, err = s.repo.CreateUser(ctx, domain.User{
		Username:     bootstrapUsername,
		PasswordHash: hashed,
		Role:         domain.RoleAdmin,
	})
	if errors.Is(err, domain.ErrDuplicateUsername) {
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("bootstrapped admin account", zap.String("username", bootstrapUsername))
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, actor domain.Actor, current string, next string) error {
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	user, err := s.repo.GetUserByUsername(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidCredentials
		}
		return err
	}
	if ok, _ := verifyPassword(user.PasswordHash, current); !ok {
		return domain.ErrInvalidCredentials
	}

	hashed, err := hashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, user.Username, hashed); err != nil {
		return err
	}

	s.LogActivity(ctx, actor.Username, "Changed password")
	return nil
}
