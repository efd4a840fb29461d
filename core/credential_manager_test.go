package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func expiringIn(d time.Duration) int64 {
	return testNow.Add(d).UnixMilli()
}

func newTestManager(t *testing.T, store *memoryCredentialStore, refresher TokenRefresher) *Manager {
	t.Helper()
	manager, err := NewManager(store, refresher, WithClock(fixedClock(testNow)))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return manager
}

func TestEnsureValid_FreshCredentialSkipsRefresh(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{AccessToken: "tok", RefreshToken: "r", ExpiryEpochMs: expiringIn(10 * time.Minute)}, hasStored: true}
	refresher := &stubRefresher{}
	manager := newTestManager(t, store, refresher)

	credential, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if credential.AccessToken != "tok" || refresher.calls.Load() != 0 {
		t.Fatalf("expected cached credential without refresh")
	}
}

func TestEnsureValid_RefreshesWithinSkewWindow(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{AccessToken: "old", RefreshToken: "r1", ExpiryEpochMs: expiringIn(30 * time.Second)}, hasStored: true}
	refresher := &stubRefresher{result: Credential{AccessToken: "new", ExpiryEpochMs: expiringIn(time.Hour)}}
	manager := newTestManager(t, store, refresher)

	credential, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if credential.AccessToken != "new" {
		t.Fatalf("expected refreshed token, got %q", credential.AccessToken)
	}
	if credential.RefreshToken != "r1" {
		t.Fatalf("expected refresh token to be preserved, got %q", credential.RefreshToken)
	}
	stored, saves := store.snapshot()
	if saves != 1 || stored.AccessToken != "new" {
		t.Fatalf("expected refreshed credential persisted, got %#v (%d saves)", stored, saves)
	}
}

func TestEnsureValid_SingleFlightUnderConcurrency(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{AccessToken: "old", RefreshToken: "r1", ExpiryEpochMs: expiringIn(-time.Minute)}, hasStored: true}
	release := make(chan struct{})
	refresher := &stubRefresher{release: release, result: Credential{AccessToken: "new", ExpiryEpochMs: expiringIn(time.Hour)}}
	manager := newTestManager(t, store, refresher)

	const callers = 50
	var wg sync.WaitGroup
	results := make(chan Credential, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			credential, err := manager.EnsureValid(context.Background())
			if err != nil {
				errs <- err
				return
			}
			results <- credential
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for credential := range results {
		count++
		if credential.AccessToken != "new" {
			t.Fatalf("expected every caller to observe the refreshed token")
		}
	}
	if count != callers {
		t.Fatalf("expected %d results, got %d", callers, count)
	}
	if calls := refresher.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", calls)
	}
}

func TestEnsureValid_RefreshFailureFailsAllWaitersAndKeepsStore(t *testing.T) {
	original := Credential{AccessToken: "old", RefreshToken: "r1", ExpiryEpochMs: expiringIn(-time.Minute)}
	store := &memoryCredentialStore{stored: original, hasStored: true}
	release := make(chan struct{})
	refresher := &stubRefresher{release: release, err: errors.New("invalid_grant")}
	manager := newTestManager(t, store, refresher)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.EnsureValid(context.Background())
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if KindOf(err) != KindAuthError {
			t.Fatalf("expected AuthError for every waiter, got %v", err)
		}
	}
	stored, saves := store.snapshot()
	if saves != 0 || stored.AccessToken != original.AccessToken {
		t.Fatalf("expected store unchanged after failed refresh")
	}
	if refresher.calls.Load() != 1 {
		t.Fatalf("expected a single refresh attempt, got %d", refresher.calls.Load())
	}
}

func TestEnsureValid_NoRefreshTokenFailsFast(t *testing.T) {
	refresher := &stubRefresher{}
	manager := newTestManager(t, &memoryCredentialStore{}, refresher)
	_, err := manager.EnsureValid(context.Background())
	if KindOf(err) != KindAuthError {
		t.Fatalf("expected AuthError for empty store, got %v", err)
	}

	expired := &memoryCredentialStore{stored: Credential{AccessToken: "tok", ExpiryEpochMs: expiringIn(-time.Second)}, hasStored: true}
	manager = newTestManager(t, expired, refresher)
	if _, err := manager.EnsureValid(context.Background()); KindOf(err) != KindAuthError {
		t.Fatalf("expected AuthError for expired token without refresh token, got %v", err)
	}
	if refresher.calls.Load() != 0 {
		t.Fatalf("expected no refresh attempts without a refresh token")
	}
}

func TestEnsureValid_SkewedButUnexpiredWithoutRefreshToken(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{AccessToken: "tok", ExpiryEpochMs: expiringIn(30 * time.Second)}, hasStored: true}
	manager := newTestManager(t, store, &stubRefresher{})
	credential, err := manager.EnsureValid(context.Background())
	if err != nil || credential.AccessToken != "tok" {
		t.Fatalf("expected still-valid token to be returned, got %v", err)
	}
}

func TestEnsureValid_CancelledWaiterDoesNotAbortRefresh(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{RefreshToken: "r1"}, hasStored: true}
	release := make(chan struct{})
	refresher := &stubRefresher{release: release, result: Credential{AccessToken: "new", ExpiryEpochMs: expiringIn(time.Hour)}}
	manager := newTestManager(t, store, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := manager.EnsureValid(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; err == nil {
		t.Fatalf("expected cancelled waiter to return an error")
	}

	waiter := make(chan Credential, 1)
	go func() {
		credential, _ := manager.EnsureValid(context.Background())
		waiter <- credential
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	credential := <-waiter
	if credential.AccessToken != "new" {
		t.Fatalf("expected refresh to complete for remaining waiter, got %#v", credential)
	}
	if refresher.calls.Load() != 1 {
		t.Fatalf("expected a single refresh despite cancellation, got %d", refresher.calls.Load())
	}
}

func TestEnsureValid_PersistFailureStillReturnsRotatedCredential(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{RefreshToken: "r1"}, hasStored: true}
	manager := newTestManager(t, store, &stubRefresher{result: Credential{AccessToken: "new", RefreshToken: "r2", ExpiryEpochMs: expiringIn(time.Hour)}})
	store.saveErr = errors.New("disk full")

	credential, err := manager.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("expected rotated credential despite persist failure, got %v", err)
	}
	if credential.RefreshToken != "r2" {
		t.Fatalf("expected rotated refresh token in memory, got %q", credential.RefreshToken)
	}
}

func TestRefresh_ForcedRefreshAndState(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{AccessToken: "tok", RefreshToken: "r1", ExpiryEpochMs: expiringIn(time.Hour)}, hasStored: true}
	refresher := &stubRefresher{result: Credential{AccessToken: "forced", ExpiryEpochMs: expiringIn(2 * time.Hour)}}
	manager := newTestManager(t, store, refresher)

	if state := manager.State(); state.NeedsRefresh || !state.HasRefreshToken {
		t.Fatalf("unexpected state %#v", state)
	}
	credential, err := manager.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if credential.AccessToken != "forced" || refresher.calls.Load() != 1 {
		t.Fatalf("expected forced refresh to call provider")
	}
}

func TestPrime_OnlyWhenEmpty(t *testing.T) {
	manager := newTestManager(t, &memoryCredentialStore{}, &stubRefresher{})
	if !manager.Prime(Credential{RefreshToken: "seed"}) {
		t.Fatalf("expected prime on empty manager")
	}
	if manager.Prime(Credential{RefreshToken: "other"}) {
		t.Fatalf("expected prime to be ignored once a credential is present")
	}
}

func TestRefresh_FailureKeepsCauseKind(t *testing.T) {
	store := &memoryCredentialStore{stored: Credential{RefreshToken: "r1"}, hasStored: true}
	cases := []struct {
		cause ErrorKind
	}{
		{cause: KindTransient},
		{cause: KindRateLimited},
		{cause: KindAuthError},
	}
	for _, tc := range cases {
		refresher := &stubRefresher{err: NewKindError(tc.cause, "token endpoint said no")}
		manager := newTestManager(t, store, refresher)
		_, err := manager.Refresh(context.Background())
		if KindOf(err) != KindAuthError {
			t.Fatalf("expected AuthError surface for %s cause, got %v", tc.cause, err)
		}
		if CauseKind(err) != tc.cause {
			t.Fatalf("expected cause kind %s, got %s", tc.cause, CauseKind(err))
		}
	}
	if CauseKind(NewKindError(KindNotFound, "missing")) != KindNotFound {
		t.Fatalf("expected CauseKind to fall back to KindOf")
	}
}
