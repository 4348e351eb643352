package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mckhtech/uni360-go/credentials"
	"github.com/mckhtech/uni360-go/users"
)

// defaultRefreshLead is how long before access-token expiry the proactive
// refresh fires.
const defaultRefreshLead = 5 * time.Minute

// TokenInvalidator is the slice of the token resolver the Manager needs:
// whenever the stored credentials change, the resolver's cache must be
// dropped so the next request picks up the new token.
type TokenInvalidator interface {
	ForceRefresh()
}

// TimerHandle is a cancellable one-shot timer.
type TimerHandle interface {
	Stop() bool
}

// GoogleTokenVerifier checks a Google-issued ID token before it is forwarded
// to the backend, and surfaces its identity claims.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error)
}

// Manager is the session lifecycle controller. It is constructed once at
// process start and handed to every consumer; all session state lives here,
// never in package-level variables. At most one refresh timer is live at any
// time: arming a new one always cancels the previous one first.
type Manager struct {
	store       credentials.Store
	resolver    TokenInvalidator
	api         AuthAPI
	logger      zerolog.Logger
	refreshLead time.Duration
	nowFunc     func() time.Time
	newTimer    func(d time.Duration, fn func()) TimerHandle
	google      GoogleTokenVerifier

	mu      sync.Mutex
	status  Status
	user    *users.User
	lastErr string
	timer   TimerHandle
}

// ManagerOption mutates a Manager at construction time.
type ManagerOption func(*Manager)

// WithRefreshLead overrides how long before expiry the proactive refresh
// fires.
func WithRefreshLead(lead time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshLead = lead
	}
}

// WithNowFunc overrides the clock (for tests).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithTimerFunc overrides timer creation (for tests).
func WithTimerFunc(newTimer func(d time.Duration, fn func()) TimerHandle) ManagerOption {
	return func(m *Manager) {
		m.newTimer = newTimer
	}
}

// WithGoogleVerifier enables local verification of Google ID tokens in
// LoginWithGoogle.
func WithGoogleVerifier(verifier GoogleTokenVerifier) ManagerOption {
	return func(m *Manager) {
		m.google = verifier
	}
}

func NewManager(store credentials.Store, resolver TokenInvalidator, api AuthAPI, logger zerolog.Logger, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if resolver == nil {
		return nil, errors.New("[NewManager] token resolver is required")
	}
	if api == nil {
		return nil, errors.New("[NewManager] auth API is required")
	}

	m := &Manager{
		store:       store,
		resolver:    resolver,
		api:         api,
		logger:      logger.With().Str("component", "session_manager").Logger(),
		refreshLead: defaultRefreshLead,
		nowFunc:     time.Now,
		newTimer: func(d time.Duration, fn func()) TimerHandle {
			return time.AfterFunc(d, fn)
		},
		status: StatusAnonymous,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Session{
		User:            m.user,
		IsAuthenticated: m.status == StatusAuthenticated || m.status == StatusRefreshing,
		IsLoading:       m.status == StatusRestoring || m.status == StatusAuthenticating,
		Error:           m.lastErr,
	}
}

// RestoreSession rebuilds a session from persisted state. Run once at
// application start.
//
// A stored user with an unexpired access token goes straight to
// authenticated. An expired access token with a refresh token triggers a
// remote refresh; if that fails, all credentials are cleared and the session
// ends anonymous. Nothing stored means anonymous.
func (m *Manager) RestoreSession(ctx context.Context) error {
	m.setStatus(StatusRestoring, "")

	user := m.store.CachedUser()
	accessToken := m.store.AccessToken()

	if user == nil || accessToken == "" {
		m.logger.Debug().Msg("no stored session")
		m.toAnonymous("")
		return nil
	}

	if !credentials.IsExpiredAt(accessToken, m.nowFunc()) {
		m.logger.Info().Str("user_id", user.ID).Msg("session restored from storage")
		m.toAuthenticated(user)
		m.scheduleRefresh(accessToken)
		return nil
	}

	refreshToken := m.store.RefreshToken()
	if refreshToken == "" {
		m.logger.Info().Msg("stored access token expired and no refresh token, clearing session")
		m.clearLocal()
		m.toAnonymous("")
		return nil
	}

	creds, err := m.refreshCredentials(ctx, refreshToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("session restore refresh failed, clearing session")
		m.clearLocal()
		m.toAnonymous("")
		return errors.Wrap(ErrRefreshFailed, err.Error())
	}

	m.logger.Info().Str("user_id", user.ID).Msg("session restored via token refresh")
	m.toAuthenticated(user)
	m.scheduleRefresh(creds.AccessToken)
	return nil
}

// Login authenticates with email and password.
func (m *Manager) Login(ctx context.Context, email, password string) (*users.User, error) {
	m.setStatus(StatusAuthenticating, "")

	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.toAnonymous(err.Error())
		return nil, errors.Wrap(err, "[Manager.Login]")
	}
	return m.completeAuthentication(result)
}

// SignUp registers a new account and starts a session with the returned
// tokens.
func (m *Manager) SignUp(ctx context.Context, input SignUpInput) (*users.User, error) {
	m.setStatus(StatusAuthenticating, "")

	result, err := m.api.SignUp(ctx, input)
	if err != nil {
		m.toAnonymous(err.Error())
		return nil, errors.Wrap(err, "[Manager.SignUp]")
	}
	if result.User == nil {
		// Registration backends have answered with tokens only; build the
		// snapshot from the form input.
		result.User = &users.User{
			Email:      input.Email,
			FirstName:  input.FirstName,
			LastName:   input.LastName,
			Phone:      input.Phone,
			DateJoined: m.nowFunc(),
		}
	}
	return m.completeAuthentication(result)
}

// LoginWithGoogle exchanges a Google-issued ID token for a portal session.
// When a verifier is configured the token is checked locally first and its
// claims fill any user fields the backend omitted.
func (m *Manager) LoginWithGoogle(ctx context.Context, providerToken string) (*users.User, error) {
	m.setStatus(StatusAuthenticating, "")

	var claims *GoogleClaims
	if m.google != nil {
		var err error
		claims, err = m.google.Verify(ctx, providerToken)
		if err != nil {
			m.toAnonymous(err.Error())
			return nil, errors.Wrap(err, "[Manager.LoginWithGoogle] verify provider token")
		}
	}

	result, err := m.api.GoogleLogin(ctx, providerToken)
	if err != nil {
		m.toAnonymous(err.Error())
		return nil, errors.Wrap(err, "[Manager.LoginWithGoogle]")
	}
	if result.User == nil {
		result.User = &users.User{}
	}
	if claims != nil {
		if result.User.Email == "" {
			result.User.Email = claims.Email
		}
		if result.User.FirstName == "" {
			result.User.FirstName = claims.GivenName
		}
		if result.User.LastName == "" {
			result.User.LastName = claims.FamilyName
		}
	}
	return m.completeAuthentication(result)
}

// Logout ends the session. The remote logout call is best effort: its
// failure is logged and never blocks local cleanup.
func (m *Manager) Logout(ctx context.Context) error {
	m.cancelTimer()

	accessToken := m.store.AccessToken()
	refreshToken := m.store.RefreshToken()
	if accessToken != "" || refreshToken != "" {
		if err := m.api.Logout(ctx, accessToken, refreshToken); err != nil {
			m.logger.Warn().Err(err).Msg("remote logout failed, clearing local session anyway")
		}
	}

	err := m.clearLocal()
	m.toAnonymous("")
	if err != nil {
		return errors.Wrap(err, "[Manager.Logout]")
	}
	return nil
}

// UpdateUserProfile merges partial into the cached user, persists the result
// and returns it. Fails with ErrNoActiveSession while anonymous.
func (m *Manager) UpdateUserProfile(partial users.Partial) (*users.User, error) {
	m.mu.Lock()
	if m.status != StatusAuthenticated && m.status != StatusRefreshing || m.user == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	merged := m.user.Merge(partial)
	m.user = &merged
	m.mu.Unlock()

	if err := m.store.SetCachedUser(&merged); err != nil {
		return nil, errors.Wrap(err, "[Manager.UpdateUserProfile]")
	}
	return &merged, nil
}

// completeAuthentication persists tokens and user, invalidates the resolver
// cache and arms the proactive refresh.
func (m *Manager) completeAuthentication(result *Result) (*users.User, error) {
	user := result.User
	if user == nil {
		user = &users.User{}
	}
	if user.ID == "" {
		// Some backend responses omit the identifier; generate one so the
		// cached snapshot stays addressable. A backend-supplied ID is never
		// overwritten.
		user.ID = uuid.New().String()
		m.logger.Debug().Str("user_id", user.ID).Msg("backend omitted user id, generated fallback")
	}
	user.LastLogin = m.nowFunc()

	if err := m.store.SetCredentials(result.Credentials.AccessToken, result.Credentials.RefreshToken); err != nil {
		m.toAnonymous(err.Error())
		return nil, errors.Wrap(err, "[Manager.completeAuthentication] persist credentials")
	}
	if err := m.store.SetCachedUser(user); err != nil {
		m.toAnonymous(err.Error())
		return nil, errors.Wrap(err, "[Manager.completeAuthentication] persist user")
	}
	m.resolver.ForceRefresh()

	m.logger.Info().Str("user_id", user.ID).Msg("authenticated")
	m.toAuthenticated(user)
	m.scheduleRefresh(result.Credentials.AccessToken)
	return user, nil
}

// scheduleRefresh arms the one-shot proactive refresh timer for
// max(0, expiry - now - refreshLead). Any previously armed timer is cancelled
// first, so at most one timer is ever live.
func (m *Manager) scheduleRefresh(accessToken string) {
	expiry, err := credentials.TokenExpiry(accessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("cannot schedule refresh for undecodable token")
		return
	}

	delay := expiry.Sub(m.nowFunc()) - m.refreshLead
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.newTimer(delay, m.refreshTick)
	m.logger.Debug().Dur("in", delay).Time("expiry", expiry).Msg("proactive refresh armed")
}

// refreshTick runs when the proactive timer fires: refresh, persist, re-arm.
// An unrecoverable refresh forces a logout rather than retrying.
func (m *Manager) refreshTick() {
	m.mu.Lock()
	if m.status != StatusAuthenticated {
		m.mu.Unlock()
		return
	}
	m.status = StatusRefreshing
	m.mu.Unlock()

	ctx := context.Background()
	refreshToken := m.store.RefreshToken()
	if refreshToken == "" {
		m.logger.Warn().Msg("proactive refresh fired without a refresh token, logging out")
		_ = m.Logout(ctx)
		return
	}

	creds, err := m.refreshCredentials(ctx, refreshToken)
	if err != nil {
		m.logger.Error().Err(err).Msg("proactive refresh failed, logging out")
		_ = m.Logout(ctx)
		return
	}

	m.mu.Lock()
	if m.status == StatusRefreshing {
		m.status = StatusAuthenticated
	}
	m.mu.Unlock()

	m.scheduleRefresh(creds.AccessToken)
}

// refreshCredentials performs the remote refresh and persists the outcome.
// When the backend does not rotate the refresh token, the old one is kept.
func (m *Manager) refreshCredentials(ctx context.Context, refreshToken string) (*credentials.Credentials, error) {
	creds, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	if err := m.store.SetCredentials(creds.AccessToken, creds.RefreshToken); err != nil {
		return nil, err
	}
	m.resolver.ForceRefresh()
	return creds, nil
}

func (m *Manager) clearLocal() error {
	err := m.store.ClearAll()
	m.resolver.ForceRefresh()
	return err
}

func (m *Manager) cancelTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStatus(status Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.lastErr = errMsg
}

func (m *Manager) toAuthenticated(user *users.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusAuthenticated
	m.user = user
	m.lastErr = ""
}

func (m *Manager) toAnonymous(errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusAnonymous
	m.user = nil
	m.lastErr = errMsg
}
