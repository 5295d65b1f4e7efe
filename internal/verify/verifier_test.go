package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

type fakeProfiles struct {
	calls atomic.Int32
	fn    func(context.Context, int64) (store.LawyerProfile, error)
}

func (f *fakeProfiles) GetLawyerProfileByUserID(ctx context.Context, userID int64) (store.LawyerProfile, error) {
	f.calls.Add(1)
	return f.fn(ctx, userID)
}

func lawyer(id int64) session.Session {
	return session.New(rbac.RoleLawyer, session.User{ID: id, FirstName: "A", LastName: "B"})
}

func TestVerifyLawyer(t *testing.T) {
	cases := []struct {
		name    string
		sess    session.Session
		profile store.LawyerProfile
		err     error
		want    bool
		wantErr bool
	}{
		{name: "verified", sess: lawyer(3), profile: store.LawyerProfile{UserID: 3, IsVerified: true}, want: true},
		{name: "unverified", sess: lawyer(3), profile: store.LawyerProfile{UserID: 3}, want: false},
		{name: "no profile", sess: lawyer(3), err: fmt.Errorf("get: %w", sql.ErrNoRows), want: false},
		{name: "db down", sess: lawyer(3), err: errors.New("connection reset"), wantErr: true},
		{name: "client", sess: session.New(rbac.RoleClient, session.User{ID: 3}), want: false},
		{name: "anonymous", sess: session.Anonymous(), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profiles := &fakeProfiles{fn: func(context.Context, int64) (store.LawyerProfile, error) {
				return tc.profile, tc.err
			}}
			v := NewCachedVerifier(profiles, nil, nil)
			got, err := v.VerifyLawyer(context.Background(), tc.sess)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("verified = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerifyLawyerUsesCache(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	profiles := &fakeProfiles{fn: func(context.Context, int64) (store.LawyerProfile, error) {
		return store.LawyerProfile{UserID: 3, IsVerified: true}, nil
	}}
	v := NewCachedVerifier(profiles, cache, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := v.VerifyLawyer(ctx, lawyer(3))
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	if n := profiles.calls.Load(); n != 1 {
		t.Fatalf("expected one profile lookup, got %d", n)
	}

	if err := cache.Invalidate(ctx, 3); err != nil {
		t.Fatal(err)
	}
	_, _ = v.VerifyLawyer(ctx, lawyer(3))
	if n := profiles.calls.Load(); n != 2 {
		t.Fatalf("expected lookup after invalidation, got %d", n)
	}
}

func TestForgetDropsCachedVerdict(t *testing.T) {
	cache, _ := setupTestCache(t, time.Hour)
	var verified atomic.Bool
	verified.Store(true)
	profiles := &fakeProfiles{fn: func(context.Context, int64) (store.LawyerProfile, error) {
		return store.LawyerProfile{UserID: 3, IsVerified: verified.Load()}, nil
	}}
	v := NewCachedVerifier(profiles, cache, nil)
	ctx := context.Background()

	if ok, err := v.VerifyLawyer(ctx, lawyer(3)); err != nil || !ok {
		t.Fatalf("expected verified, ok=%v err=%v", ok, err)
	}
	verified.Store(false)
	if ok, _ := v.VerifyLawyer(ctx, lawyer(3)); !ok {
		t.Fatal("expected the cached verdict before Forget")
	}

	if err := v.Forget(ctx, 3); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if ok, err := v.VerifyLawyer(ctx, lawyer(3)); err != nil || ok {
		t.Fatalf("expected revoked lawyer after Forget, ok=%v err=%v", ok, err)
	}
	if n := profiles.calls.Load(); n != 2 {
		t.Fatalf("expected two profile lookups, got %d", n)
	}

	if err := NewCachedVerifier(profiles, nil, nil).Forget(ctx, 3); err != nil {
		t.Fatalf("Forget() without cache error = %v", err)
	}
}

func TestVerifyLawyerDoesNotCacheFailures(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	fail := true
	profiles := &fakeProfiles{fn: func(context.Context, int64) (store.LawyerProfile, error) {
		if fail {
			return store.LawyerProfile{}, errors.New("timeout")
		}
		return store.LawyerProfile{UserID: 3, IsVerified: true}, nil
	}}
	v := NewCachedVerifier(profiles, cache, nil)
	ctx := context.Background()

	if _, err := v.VerifyLawyer(ctx, lawyer(3)); err == nil {
		t.Fatal("expected lookup error")
	}
	fail = false
	ok, err := v.VerifyLawyer(ctx, lawyer(3))
	if err != nil || !ok {
		t.Fatalf("expected verified after recovery, ok=%v err=%v", ok, err)
	}
}

func TestVerifyLawyerSharesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	profiles := &fakeProfiles{fn: func(context.Context, int64) (store.LawyerProfile, error) {
		<-release
		return store.LawyerProfile{UserID: 3, IsVerified: true}, nil
	}}
	v := NewCachedVerifier(profiles, nil, nil)

	var wg sync.WaitGroup
	results := make(chan bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := v.VerifyLawyer(context.Background(), lawyer(3))
			results <- ok
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for ok := range results {
		if !ok {
			t.Fatal("expected every caller to see verified")
		}
	}
	if n := profiles.calls.Load(); n != 1 {
		t.Fatalf("expected one shared lookup, got %d", n)
	}
}

func TestVerifyLawyerHonorsCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	profiles := &fakeProfiles{fn: func(context.Context, int64) (store.LawyerProfile, error) {
		<-release
		return store.LawyerProfile{IsVerified: true}, nil
	}}
	v := NewCachedVerifier(profiles, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := v.VerifyLawyer(ctx, lawyer(3))
	if !errors.Is(err, context.Canceled) || ok {
		t.Fatalf("expected cancellation, ok=%v err=%v", ok, err)
	}
}
