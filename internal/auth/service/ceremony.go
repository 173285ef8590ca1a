package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

type ceremonyState string

const (
	stateBegun     ceremonyState = "begun"
	stateVerified  ceremonyState = "verified"
	stateCommitted ceremonyState = "committed"
	stateFailed    ceremonyState = "failed"
)

// Outcomes reported to the Recorder.
const (
	OutcomeBegun     = "begun"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ceremonyTransitions lists the legal moves per ceremony. Terminal states
// have no entry.
var ceremonyTransitions = map[domain.Ceremony]map[ceremonyState][]ceremonyState{
	domain.CeremonyRegistration: {
		stateBegun:    {stateVerified, stateFailed},
		stateVerified: {stateCommitted, stateFailed},
	},
	domain.CeremonyAuthentication: {
		stateBegun: {stateVerified, stateFailed},
	},
}

// ceremonyRun tracks one finish call through its states.
type ceremonyRun struct {
	kind  domain.Ceremony
	state ceremonyState
	log   *slog.Logger
	rec   Recorder
}

func startCeremony(ctx context.Context, kind domain.Ceremony, rec Recorder) *ceremonyRun {
	return &ceremonyRun{
		kind:  kind,
		state: stateBegun,
		log:   slogx.FromContext(ctx).With(slog.String("ceremony", string(kind))),
		rec:   recorderOrNop(rec),
	}
}

func (c *ceremonyRun) advance(to ceremonyState) {
	if !c.allowed(to) {
		// A programming error, not a caller error.
		panic(fmt.Sprintf("ceremony %s: illegal transition %s -> %s", c.kind, c.state, to))
	}
	c.log.Debug("ceremony transition", slog.String("from", string(c.state)), slog.String("to", string(to)))
	c.state = to

	if to != stateFailed && c.terminal() {
		c.rec.CeremonyOutcome(c.kind, OutcomeSucceeded)
	}
}

// fail moves to Failed and returns err unchanged.
func (c *ceremonyRun) fail(err error) error {
	c.log.Debug("ceremony transition",
		slog.String("from", string(c.state)),
		slog.String("to", string(stateFailed)),
		slog.Any("error", err),
	)
	c.state = stateFailed
	c.rec.CeremonyOutcome(c.kind, OutcomeFailed)
	return err
}

func (c *ceremonyRun) allowed(to ceremonyState) bool {
	for _, s := range ceremonyTransitions[c.kind][c.state] {
		if s == to {
			return true
		}
	}
	return false
}

// terminal reports whether the current state has no outgoing transitions.
func (c *ceremonyRun) terminal() bool {
	return len(ceremonyTransitions[c.kind][c.state]) == 0
}
