package library

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/melodystream/internal/domain/user"
	"github.com/osa030/melodystream/internal/infra/auth"
	"github.com/osa030/melodystream/internal/infra/sqlite"
)

// Register creates a regular user account.
func (s *Service) Register(ctx context.Context, reg user.Registration) (*user.User, error) {
	return s.CreateAccount(ctx, reg, false)
}

// CreateAccount creates a user account with the given admin flag.
func (s *Service) CreateAccount(ctx context.Context, reg user.Registration, admin bool) (*user.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := reg.Validate(); err != nil {
		return nil, invalid(err)
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	u := user.New(uuid.NewString(), reg, hash)
	u.IsAdmin = admin
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, errors.Wrap(translate(err), "failed to create user")
	}

	zlog.Info().Msgf("user registered: id=%s username=%s admin=%v", u.ID, u.Username, u.IsAdmin)
	return u, nil
}

// Authenticate checks a username or email and password pair.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*user.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, errors.Wrap(ErrInvalidCredentials, "missing identifier or password")
	}

	u, err := s.repo.GetUserByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, errors.Wrap(ErrInvalidCredentials, "unknown user")
		}
		return nil, translate(err)
	}

	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		zlog.Info().Msgf("login failed: user=%s", u.Username)
		return nil, errors.Mark(err, ErrInvalidCredentials)
	}
	return u, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	return u, translate(err)
}
