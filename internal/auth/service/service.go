package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

// Security event names, shared by logs and metrics.
const (
	EventReplay             = "replay_detected"
	EventBadSignature       = "signature_invalid"
	EventDuplicateCred      = "duplicate_credential"
	EventAlgConfusion       = "algorithm_confusion"
	EventInvalidCredentials = "invalid_credentials"
	EventBootstrapRefused   = "bootstrap_refused"
)

// IdentityResolver maps an ongoing interaction to the identity behind it.
// The transport owns sessions and tokens; services only ask.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context) (identityID string, ok bool)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context) (string, bool)

func (f IdentityResolverFunc) ResolveIdentity(ctx context.Context) (string, bool) { return f(ctx) }

// Recorder receives ceremony outcomes and security events, typically to
// export them as metrics.
type Recorder interface {
	CeremonyOutcome(ceremony domain.Ceremony, outcome string)
	SecurityEvent(event string)
	KeyRotated(family domain.KeyFamily)
}

type nopRecorder struct{}

func (nopRecorder) CeremonyOutcome(domain.Ceremony, string) {}
func (nopRecorder) SecurityEvent(string)                    {}
func (nopRecorder) KeyRotated(domain.KeyFamily)             {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// RelyingParties indexes the configured relying parties by id.
type RelyingParties map[string]domain.RelyingParty

// NewRelyingParties builds the index. Later duplicates replace earlier ones.
func NewRelyingParties(rps ...domain.RelyingParty) RelyingParties {
	out := make(RelyingParties, len(rps))
	for _, rp := range rps {
		out[rp.ID] = rp
	}
	return out
}

// Lookup returns the relying party for scope.
func (r RelyingParties) Lookup(scope string) (domain.RelyingParty, error) {
	rp, ok := r[scope]
	if !ok || scope == "" {
		return domain.RelyingParty{}, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	return rp, nil
}

// security logs and counts a security-relevant failure.
func security(ctx context.Context, rec Recorder, event string, err error, attrs ...any) {
	slogx.SecurityEvent(ctx, event, append(attrs, slog.Any("error", err))...)
	recorderOrNop(rec).SecurityEvent(event)
}

func nowFunc(f func() time.Time) func() time.Time {
	if f == nil {
		return time.Now
	}
	return f
}
