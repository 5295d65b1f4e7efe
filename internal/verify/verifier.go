package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

type profileLookup interface {
	GetLawyerProfileByUserID(ctx context.Context, userID int64) (store.LawyerProfile, error)
}

type cache interface {
	Get(ctx context.Context, userID int64) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
}

type invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// CachedVerifier answers credential checks from the cache when it can and
// from the lawyer profile otherwise. Concurrent checks of the same user
// share one lookup.
type CachedVerifier struct {
	profiles profileLookup
	cache    cache
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewCachedVerifier builds a verifier. cache may be nil.
func NewCachedVerifier(profiles profileLookup, c cache, logger *zap.Logger) *CachedVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedVerifier{profiles: profiles, cache: c, logger: logger, now: time.Now}
}

// VerifyLawyer reports whether s is a lawyer with a verified profile. A
// missing profile is a definite "no"; any other lookup failure is returned
// so the caller can fail closed.
func (v *CachedVerifier) VerifyLawyer(ctx context.Context, s session.Session) (bool, error) {
	if !s.Is(rbac.RoleLawyer) || s.User.ID == 0 {
		return false, nil
	}
	userID := s.User.ID

	if v.cache != nil {
		entry, ok, err := v.cache.Get(ctx, userID)
		switch {
		case err != nil:
			v.logger.Warn("verification cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		case ok:
			return entry.Verified, nil
		}
	}

	ch := v.group.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return v.lookup(context.WithoutCancel(ctx), userID)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

// Forget drops what is known about userID so the next check reads the
// profile again. Callers use it when the store refuses an action the cached
// verdict allowed.
func (v *CachedVerifier) Forget(ctx context.Context, userID int64) error {
	v.group.Forget(strconv.FormatInt(userID, 10))
	inv, ok := v.cache.(invalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("forget verification for user %d: %w", userID, err)
	}
	return nil
}

func (v *CachedVerifier) lookup(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	profile, err := v.profiles.GetLawyerProfileByUserID(ctx, userID)
	verified := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	default:
		verified = profile.IsVerified
	}

	if v.cache != nil {
		entry := Entry{UserID: userID, Verified: verified, CheckedAt: v.now().UTC()}
		if err := v.cache.Set(ctx, entry); err != nil {
			v.logger.Warn("verification cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return verified, nil
}
