package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

const (
	// DefaultIdentityLimit caps List when no limit is given.
	DefaultIdentityLimit = 100

	// DefaultBootstrapUsername names the admin created by Bootstrap when
	// the caller does not pick one.
	DefaultBootstrapUsername = "admin"

	maxDisplayNameLength = 128
)

// IdentityService reads and administers identities. Privilege checks on the
// caller belong to the transport; the service only enforces data rules.
type IdentityService struct {
	Store store.Store

	// BootstrapToken enables Bootstrap while no enabled admin exists.
	BootstrapToken string

	Recorder Recorder
	Now      func() time.Time
}

// Get returns an identity by id.
func (s *IdentityService) Get(ctx context.Context, id string) (domain.Identity, error) {
	ident, err := s.Store.Identities().GetIdentityByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrIdentityNotFound
		}
		return domain.Identity{}, err
	}
	return ident, nil
}

// List returns identities oldest first.
func (s *IdentityService) List(ctx context.Context, limit, offset int) ([]domain.Identity, error) {
	if limit <= 0 {
		limit = DefaultIdentityLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.Identities().ListIdentities(ctx, limit, offset)
}

// UpdateProfile replaces the display name of an identity. An empty name
// falls back to the username.
func (s *IdentityService) UpdateProfile(ctx context.Context, id, displayName string) (domain.Identity, error) {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > maxDisplayNameLength {
		return domain.Identity{}, fmt.Errorf("%w: display name longer than %d", ErrInvalidRequest, maxDisplayNameLength)
	}

	ident, err := s.Get(ctx, id)
	if err != nil {
		return domain.Identity{}, err
	}
	if displayName == "" {
		displayName = ident.Username
	}

	now := nowFunc(s.Now)()
	if err := s.Store.Identities().UpdateIdentityProfile(ctx, id, displayName, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrIdentityNotFound
		}
		return domain.Identity{}, err
	}

	ident.DisplayName = displayName
	ident.UpdatedAt = now
	return ident, nil
}

// SetEnabled enables or disables an identity. A disabled identity keeps its
// methods but can no longer be established or issued tokens.
func (s *IdentityService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.Store.Identities().SetIdentityEnabled(ctx, id, enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("set identity enabled: %w", err)
	}

	slogx.FromContext(ctx).Info("identity enablement changed",
		slog.String("identity_id", id),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// SetAdmin grants or revokes the admin flag.
func (s *IdentityService) SetAdmin(ctx context.Context, id string, admin bool) error {
	if err := s.Store.Identities().SetIdentityAdmin(ctx, id, admin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("set identity admin: %w", err)
	}

	slogx.FromContext(ctx).Info("identity admin flag changed",
		slog.String("identity_id", id),
		slog.Bool("admin", admin),
	)
	return nil
}

// Bootstrap creates or promotes the first admin. It only works with the
// configured token and only while no enabled admin exists, so it cannot be
// used to take over a running deployment. An existing username is promoted
// and re-enabled.
func (s *IdentityService) Bootstrap(ctx context.Context, token, username string) (domain.Identity, error) {
	if s.BootstrapToken == "" {
		return domain.Identity{}, ErrBootstrapDisabled
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.BootstrapToken)) != 1 {
		security(ctx, s.Recorder, EventBootstrapRefused, ErrInvalidCredentials)
		return domain.Identity{}, ErrInvalidCredentials
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = DefaultBootstrapUsername
	}

	var (
		ident   domain.Identity
		created bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Identities().CountEnabledAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyBootstrapped
		}

		existing, err := tx.Identities().GetIdentityByUsername(ctx, username)
		switch {
		case errors.Is(err, store.ErrNotFound):
			now := nowFunc(s.Now)()
			ident = domain.Identity{
				ID:          idx.New().String(),
				Username:    username,
				DisplayName: username,
				Enabled:     true,
				IsAdmin:     true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			created = true
			return tx.Identities().CreateIdentity(ctx, ident)

		case err != nil:
			return err
		}

		if err := tx.Identities().SetIdentityAdmin(ctx, existing.ID, true); err != nil {
			return err
		}
		if err := tx.Identities().SetIdentityEnabled(ctx, existing.ID, true); err != nil {
			return err
		}
		ident = existing
		ident.IsAdmin = true
		ident.Enabled = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyBootstrapped) {
			slogx.FromContext(ctx).Warn("bootstrap attempted after an admin exists")
		}
		return domain.Identity{}, err
	}

	slogx.FromContext(ctx).Info("admin bootstrapped",
		slog.String("identity_id", ident.ID),
		slog.String("username", ident.Username),
		slog.Bool("created", created),
	)
	return ident, nil
}
