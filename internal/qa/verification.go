package qa

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
)

type VerificationState string

const (
	VerificationUnchecked     VerificationState = "unchecked"
	VerificationChecking      VerificationState = "checking"
	VerificationVerified      VerificationState = "verified"
	VerificationUnverified    VerificationState = "unverified"
	VerificationNotApplicable VerificationState = "not_applicable"
)

// Gate tracks whether the current lawyer session carries a verified
// credential: unchecked -> checking -> verified | unverified. Any change of
// authentication status, role or user resets it. Lookup failures fail
// closed to unverified.
type Gate struct {
	verifier Verifier
	life     *lifecycle
	logger   *zap.Logger
	recorder Recorder

	mu         sync.Mutex
	key        string
	state      VerificationState
	generation uint64
	cancel     context.CancelFunc
	pending    int
	idle       *sync.Cond
}

func newGate(verifier Verifier, life *lifecycle, logger *zap.Logger, recorder Recorder) *Gate {
	g := &Gate{
		verifier: verifier,
		life:     life,
		logger:   logger,
		recorder: recorder,
		state:    VerificationUnchecked,
	}
	g.idle = sync.NewCond(&g.mu)
	return g
}

func (g *Gate) State() VerificationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Observe feeds the current session to the gate. Only a change of the
// session key starts a new lookup; repeated calls are no-ops.
func (g *Gate) Observe(s session.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.life.alive() {
		return
	}
	key := s.Key()
	if key == g.key && g.state != VerificationUnchecked {
		return
	}

	g.key = key
	g.generation++
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.state = VerificationUnchecked

	if !s.Is(rbac.RoleLawyer) {
		g.state = VerificationNotApplicable
		return
	}
	if g.verifier == nil {
		g.state = VerificationUnverified
		g.recorder.Verification(g.state)
		return
	}

	g.state = VerificationChecking
	generation := g.generation
	ctx, cancel := context.WithCancel(g.life.ctx)
	g.cancel = cancel

	g.pending++
	go func() {
		defer cancel()
		verified, err := g.verifier.VerifyLawyer(ctx, s)
		g.commit(generation, s.User.ID, verified, err)
	}()
}

func (g *Gate) commit(generation uint64, userID int64, verified bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		g.pending--
		g.idle.Broadcast()
	}()

	if !g.life.alive() || generation != g.generation {
		g.recorder.DiscardedCommit("verification")
		g.logger.Debug("discarding stale verification result", zap.Int64("user_id", userID))
		return
	}
	g.cancel = nil
	switch {
	case err != nil:
		g.logger.Warn("lawyer verification lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		g.state = VerificationUnverified
	case verified:
		g.state = VerificationVerified
	default:
		g.state = VerificationUnverified
	}
	g.recorder.Verification(g.state)
}

// Recheck drops the current result for s and looks it up again, even when
// the session key has not changed.
func (g *Gate) Recheck(s session.Session) {
	g.mu.Lock()
	g.state = VerificationUnchecked
	g.mu.Unlock()
	g.Observe(s)
}

// Wait blocks until every lookup started so far has committed or been
// discarded.
func (g *Gate) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.pending > 0 {
		g.idle.Wait()
	}
}
