package http

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
)

// AdminAuthorizer admits enabled identities holding the admin flag.
func AdminAuthorizer(st store.Store) httpx.Authorizer {
	return httpx.AuthorizerFunc(func(ctx context.Context, subject string) error {
		ident, err := callerIdentity(ctx, st, subject)
		if err != nil {
			return err
		}
		if !ident.IsAdmin {
			return service.ErrNotAuthorized
		}
		return nil
	})
}

func callerIdentity(ctx context.Context, st store.Store, subject string) (domain.Identity, error) {
	ident, err := st.Identities().GetIdentityByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, service.ErrNotAuthorized
		}
		return domain.Identity{}, err
	}
	if !ident.Enabled {
		return domain.Identity{}, service.ErrIdentityDisabled
	}
	return ident, nil
}
