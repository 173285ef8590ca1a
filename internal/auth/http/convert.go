package http

import (
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
)

func toToken(t service.IssuedToken, now time.Time) authsdk.Token {
	expiresIn := int64(t.ExpiresAt.Sub(now).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return authsdk.Token{
		Token:     t.Token,
		TokenType: "Bearer",
		ExpiresAt: t.ExpiresAt,
		ExpiresIn: expiresIn,
		Kid:       t.Kid,
	}
}

func toTokenPair(identityID string, p service.TokenPair, now time.Time) authsdk.TokenPair {
	return authsdk.TokenPair{
		IdentityID: identityID,
		Access:     toToken(p.Access, now),
		Refresh:    toToken(p.Refresh, now),
	}
}

// toMethodInfo never copies secret material: hashes, public keys and
// counters stay server side.
func toMethodInfo(m domain.AuthMethod) authsdk.MethodInfo {
	info := authsdk.MethodInfo{
		ID:               m.ID,
		IdentityID:       m.IdentityID,
		Kind:             string(m.Kind()),
		Enabled:          m.Enabled,
		RequiresApproval: m.RequiresApproval,
		Approved:         m.Approved,
		ApprovedBy:       m.ApprovedBy,
		ApprovedAt:       m.ApprovedAt,
		CreatedAt:        m.CreatedAt,
		LastUsedAt:       m.LastUsedAt,
	}

	switch d := m.Details.(type) {
	case domain.PublicKeyCredential:
		info.Scope = d.Scope
		info.Transports = d.Transports
	case domain.ExternalIdentity:
		info.Provider = d.Provider
		info.Subject = d.Subject
	case domain.BearerToken:
		info.Description = d.Description
		info.ExpiresAt = d.ExpiresAt
	}
	return info
}

func toMethodInfos(methods []domain.AuthMethod) []authsdk.MethodInfo {
	out := make([]authsdk.MethodInfo, len(methods))
	for i, m := range methods {
		out[i] = toMethodInfo(m)
	}
	return out
}

func toSigningKeyInfo(k domain.SigningKey) authsdk.SigningKeyInfo {
	return authsdk.SigningKeyInfo{
		ID:        k.ID,
		Kid:       k.Kid,
		Family:    string(k.Family),
		Algorithm: k.Algorithm,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
		RotatedAt: k.RotatedAt,
		ExpiresAt: k.ExpiresAt,
	}
}

func toIdentityInfo(ident domain.Identity) authsdk.IdentityInfo {
	return authsdk.IdentityInfo{
		ID:          ident.ID,
		Username:    ident.Username,
		DisplayName: ident.DisplayName,
		Enabled:     ident.Enabled,
		IsAdmin:     ident.IsAdmin,
		CreatedAt:   ident.CreatedAt,
		UpdatedAt:   ident.UpdatedAt,
	}
}
