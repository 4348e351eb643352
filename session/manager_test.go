package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mckhtech/uni360-go/credentials"
	fakecredstore "github.com/mckhtech/uni360-go/credentials/storefake"
	"github.com/mckhtech/uni360-go/internal/utils"
	"github.com/mckhtech/uni360-go/session"
	"github.com/mckhtech/uni360-go/users"
)

const (
	testEmail    = "maria@example.com"
	testPassword = "s3cret-pass"
)

func mintToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "exp": expiry.Unix()})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// fakeAuthAPI scripts the remote authentication endpoints.
type fakeAuthAPI struct {
	mu sync.Mutex

	loginResult *session.Result
	loginErr    error

	signUpResult *session.Result
	signUpErr    error

	googleResult *session.Result
	googleErr    error

	refreshCreds *credentials.Credentials
	refreshErr   error
	refreshCalls int

	logoutErr   error
	logoutCalls int
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password string) (*session.Result, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAuthAPI) SignUp(ctx context.Context, input session.SignUpInput) (*session.Result, error) {
	return f.signUpResult, f.signUpErr
}

func (f *fakeAuthAPI) GoogleLogin(ctx context.Context, idToken string) (*session.Result, error) {
	return f.googleResult, f.googleErr
}

func (f *fakeAuthAPI) Refresh(ctx context.Context, refreshToken string) (*credentials.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	copied := *f.refreshCreds
	return &copied, nil
}

func (f *fakeAuthAPI) Logout(ctx context.Context, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

// fakeResolver counts cache invalidations.
type fakeResolver struct {
	mu           sync.Mutex
	refreshCalls int
}

func (f *fakeResolver) ForceRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
}

// fakeTimer records arming and cancellation so tests can assert the
// one-live-timer invariant and fire ticks by hand.
type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (ft *fakeTimer) Stop() bool {
	ft.stopped = true
	return true
}

type fakeTimerFactory struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimerFactory) new(d time.Duration, fn func()) session.TimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, timer)
	return timer
}

func (f *fakeTimerFactory) live() []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var live []*fakeTimer
	for _, timer := range f.timers {
		if !timer.stopped {
			live = append(live, timer)
		}
	}
	return live
}

type testFixture struct {
	store    *fakecredstore.FakeStore
	resolver *fakeResolver
	api      *fakeAuthAPI
	timers   *fakeTimerFactory
	now      time.Time
	manager  *session.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		store:    fakecredstore.NewFakeStore(),
		resolver: &fakeResolver{},
		api:      &fakeAuthAPI{},
		timers:   &fakeTimerFactory{},
		now:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	manager, err := session.NewManager(
		f.store,
		f.resolver,
		f.api,
		zerolog.Nop(),
		session.WithNowFunc(func() time.Time { return f.now }),
		session.WithTimerFunc(f.timers.new),
	)
	require.NoError(t, err)
	f.manager = manager
	return f
}

func (f *testFixture) loginResult(t *testing.T, userID string, accessExpiry time.Time) *session.Result {
	t.Helper()
	return &session.Result{
		Credentials: credentials.Credentials{
			AccessToken:  mintToken(t, accessExpiry),
			RefreshToken: "refresh-1",
		},
		User: &users.User{ID: userID, Email: testEmail, FirstName: "Maria"},
	}
}

func TestRestoreSessionWithFreshToken(t *testing.T) {
	f := setupTestFixture(t)
	access := mintToken(t, f.now.Add(time.Hour))
	require.NoError(t, f.store.SetCredentials(access, "refresh-1"))
	require.NoError(t, f.store.SetCachedUser(&users.User{ID: "user-1", Email: testEmail}))

	require.NoError(t, f.manager.RestoreSession(context.Background()))

	snap := f.manager.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, "user-1", snap.User.ID)
	require.Zero(t, f.api.refreshCalls, "fresh token must not trigger a remote refresh")

	live := f.timers.live()
	require.Len(t, live, 1, "proactive refresh must be armed")
	require.Equal(t, 55*time.Minute, live[0].delay, "timer fires refresh-lead ahead of expiry")
}

func TestRestoreSessionRefreshesExpiredToken(t *testing.T) {
	f := setupTestFixture(t)
	expired := mintToken(t, f.now.Add(-time.Minute))
	require.NoError(t, f.store.SetCredentials(expired, "refresh-1"))
	require.NoError(t, f.store.SetCachedUser(&users.User{ID: "user-1", Email: testEmail}))

	newAccess := mintToken(t, f.now.Add(time.Hour))
	f.api.refreshCreds = &credentials.Credentials{AccessToken: newAccess, RefreshToken: "refresh-2"}

	require.NoError(t, f.manager.RestoreSession(context.Background()))

	snap := f.manager.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, newAccess, f.store.AccessToken(), "new tokens must be persisted")
	require.Equal(t, "refresh-2", f.store.RefreshToken())
	require.Equal(t, 1, f.api.refreshCalls)
	require.NotZero(t, f.resolver.refreshCalls, "resolver cache must be invalidated on new tokens")
	require.Len(t, f.timers.live(), 1)
}

func TestRestoreSessionKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	f := setupTestFixture(t)
	expired := mintToken(t, f.now.Add(-time.Minute))
	require.NoError(t, f.store.SetCredentials(expired, "refresh-1"))
	require.NoError(t, f.store.SetCachedUser(&users.User{ID: "user-1"}))

	f.api.refreshCreds = &credentials.Credentials{AccessToken: mintToken(t, f.now.Add(time.Hour))}

	require.NoError(t, f.manager.RestoreSession(context.Background()))
	require.Equal(t, "refresh-1", f.store.RefreshToken())
}

func TestRestoreSessionExpiredWithoutRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	expired := mintToken(t, f.now.Add(-time.Minute))
	require.NoError(t, f.store.SetCredentials(expired, ""))
	require.NoError(t, f.store.SetCachedUser(&users.User{ID: "user-1"}))

	require.NoError(t, f.manager.RestoreSession(context.Background()))

	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Empty(t, f.store.AccessToken(), "storage must be cleared")
	require.Nil(t, f.store.CachedUser())
	require.Empty(t, f.timers.live())
}

func TestRestoreSessionRefreshFailureClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	expired := mintToken(t, f.now.Add(-time.Minute))
	require.NoError(t, f.store.SetCredentials(expired, "refresh-1"))
	require.NoError(t, f.store.SetCachedUser(&users.User{ID: "user-1"}))

	f.api.refreshErr = errors.New("refresh token revoked")

	err := f.manager.RestoreSession(context.Background())
	require.ErrorIs(t, err, session.ErrRefreshFailed)

	require.False(t, f.manager.Snapshot().IsAuthenticated)
	require.Empty(t, f.store.AccessToken())
	require.Nil(t, f.store.CachedUser())
}

func TestRestoreSessionNothingStored(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.manager.RestoreSession(context.Background()))
	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.False(t, snap.IsLoading)
	require.Empty(t, f.timers.live())
}

func TestLoginPersistsTokensAndUser(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(time.Hour))

	user, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID, "backend-supplied id is never overwritten")

	require.NotEmpty(t, f.store.AccessToken())
	require.Equal(t, "refresh-1", f.store.RefreshToken())
	require.NotNil(t, f.store.CachedUser())
	require.True(t, f.manager.Snapshot().IsAuthenticated)
	require.Len(t, f.timers.live(), 1)
}

func TestLoginGeneratesFallbackUserID(t *testing.T) {
	f := setupTestFixture(t)
	result := f.loginResult(t, "", f.now.Add(time.Hour))
	f.api.loginResult = result

	user, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, user.ID, "missing backend id gets a client-generated uuid")
	require.Equal(t, user.ID, f.store.CachedUser().ID)
}

func TestLoginFailureStaysAnonymous(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginErr = errors.New("status 400: invalid credentials")

	_, err := f.manager.Login(context.Background(), testEmail, "wrong")
	require.Error(t, err)

	snap := f.manager.Snapshot()
	require.False(t, snap.IsAuthenticated)
	require.Contains(t, snap.Error, "invalid credentials")
	require.Empty(t, f.store.AccessToken())
}

func TestSignUpWithoutBackendUserBuildsSnapshotFromInput(t *testing.T) {
	f := setupTestFixture(t)
	f.api.signUpResult = &session.Result{
		Credentials: credentials.Credentials{AccessToken: mintToken(t, f.now.Add(time.Hour)), RefreshToken: "refresh-1"},
	}

	user, err := f.manager.SignUp(context.Background(), session.SignUpInput{
		Email:     testEmail,
		Password:  testPassword,
		FirstName: "Maria",
		LastName:  "Schmidt",
	})
	require.NoError(t, err)
	require.Equal(t, testEmail, user.Email)
	require.Equal(t, "Maria", user.FirstName)
	require.NotEmpty(t, user.ID)
}

func TestLogoutClearsStorageEvenWhenRemoteFails(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(time.Hour))
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	f.api.logoutErr = errors.New("network down")

	require.NoError(t, f.manager.Logout(context.Background()))
	require.Equal(t, 1, f.api.logoutCalls)
	require.Empty(t, f.store.AccessToken())
	require.Nil(t, f.store.CachedUser())
	require.False(t, f.manager.Snapshot().IsAuthenticated)
	require.Empty(t, f.timers.live(), "logout must cancel the refresh timer")
}

func TestUpdateUserProfileMergesAndPersists(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(time.Hour))
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	updated, err := f.manager.UpdateUserProfile(users.Partial{
		TargetCountry: utils.Ptr("Germany"),
		Stage:         utils.Ptr(users.StageApplying),
	})
	require.NoError(t, err)
	require.Equal(t, "Germany", updated.TargetCountry)
	require.Equal(t, users.StageApplying, updated.Stage)
	require.Equal(t, "user-1", updated.ID, "merge never touches the id")
	require.Equal(t, "Maria", updated.FirstName, "unset fields stay untouched")
	require.Equal(t, "Germany", f.store.CachedUser().TargetCountry)
}

func TestUpdateUserProfileRequiresSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.UpdateUserProfile(users.Partial{TargetCountry: utils.Ptr("Germany")})
	require.ErrorIs(t, err, session.ErrNoActiveSession)
}

func TestAtMostOneLiveTimer(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(time.Hour))

	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	_, err = f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	require.Len(t, f.timers.timers, 2, "each login arms a timer")
	require.Len(t, f.timers.live(), 1, "arming must cancel the previous timer")
}

func TestProactiveRefreshRearmsOnSuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(time.Hour))
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	f.api.refreshCreds = &credentials.Credentials{AccessToken: mintToken(t, f.now.Add(2*time.Hour)), RefreshToken: "refresh-2"}

	live := f.timers.live()
	require.Len(t, live, 1)
	live[0].fn()

	require.Equal(t, 1, f.api.refreshCalls)
	require.Equal(t, "refresh-2", f.store.RefreshToken())
	require.True(t, f.manager.Snapshot().IsAuthenticated)
	require.Len(t, f.timers.live(), 1, "successful refresh re-arms exactly one timer")
	require.Equal(t, 115*time.Minute, f.timers.live()[0].delay)
}

func TestProactiveRefreshFailureForcesLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(time.Hour))
	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	f.api.refreshErr = errors.New("refresh token revoked")

	live := f.timers.live()
	require.Len(t, live, 1)
	live[0].fn()

	require.False(t, f.manager.Snapshot().IsAuthenticated)
	require.Empty(t, f.store.AccessToken())
	require.Nil(t, f.store.CachedUser())
	require.Empty(t, f.timers.live())
}

func TestImminentExpiryArmsImmediateTimer(t *testing.T) {
	f := setupTestFixture(t)
	// Expiry inside the refresh lead: the timer must fire at zero delay, not
	// a negative one.
	f.api.loginResult = f.loginResult(t, "user-1", f.now.Add(2*time.Minute))

	_, err := f.manager.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	live := f.timers.live()
	require.Len(t, live, 1)
	require.Equal(t, time.Duration(0), live[0].delay)
}
