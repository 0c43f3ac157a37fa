// Package session owns the authentication lifecycle: login, logout,
// registration with one-time-code verification, password reset, profile
// updates, and detection of out-of-band credential changes.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/lenscart/lenscart/internal/credstore"
	"github.com/lenscart/lenscart/internal/errs"
	"github.com/lenscart/lenscart/internal/gateway"
	"github.com/lenscart/lenscart/internal/model"
	"github.com/lenscart/lenscart/internal/notify"
)

// API is the slice of the request gateway the manager depends on.
type API interface {
	Login(ctx context.Context, email, password string) (gateway.Auth, error)
	Register(ctx context.Context, name, email, password string, role model.Role) error
	VerifyOTP(ctx context.Context, email, code string) (gateway.Auth, error)
	ResendOTP(ctx context.Context, email string) error
	VerifyToken(ctx context.Context) error
	SendResetCode(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	UpdateProfile(ctx context.Context, partial map[string]string) (model.UserProfile, error)
	ChangePassword(ctx context.Context, current, next string) error
}

// Manager is the single writer of session state and of the credential
// store's token pair.
type Manager struct {
	api      API
	store    credstore.Store
	notifier notify.Notifier
	log      *zap.Logger

	mu        sync.Mutex
	session   model.Session
	lastToken string // last access token this manager wrote or observed
	subs      map[int]chan model.Session
	nextID    int
}

// New constructs a Manager in the Initializing state; call Restore to
// settle it.
func New(api API, store credstore.Store, notifier notify.Notifier, log *zap.Logger) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		api:      api,
		store:    store,
		notifier: notifier,
		log:      log,
		session:  model.Session{Status: model.StatusInitializing},
		subs:     map[int]chan model.Session{},
	}
}

// Session returns the current session snapshot.
func (m *Manager) Session() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Status returns the current session status.
func (m *Manager) Status() model.Status {
	return m.Session().Status
}

// Subscribe delivers a snapshot after every session change until ctx is
// done. Synchronizers use it to trigger full resyncs.
func (m *Manager) Subscribe(ctx context.Context) <-chan model.Session {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan model.Session, 8)
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Restore attempts to rebuild a session from the credential store: both
// tokens plus a cached profile are required, and the access token must
// verify against the server. Any other outcome clears the store and
// settles on anonymous.
func (m *Manager) Restore(ctx context.Context) {
	creds, err := m.store.Load(ctx)
	if err != nil || !creds.Complete() {
		m.dropSession(ctx)
		return
	}
	if err := m.api.VerifyToken(ctx); err != nil {
		m.log.Info("stored session rejected", zap.Error(err))
		m.dropSession(ctx)
		return
	}
	// the gateway may have rotated the pair during verification
	creds, err = m.store.Load(ctx)
	if err != nil || !creds.Complete() {
		m.dropSession(ctx)
		return
	}
	m.setAuthenticated(creds)
	m.log.Info("session restored",
		zap.String("user", creds.Profile.ID),
		zap.Time("token_exp", tokenExpiry(creds.AccessToken)),
	)
}

// Login authenticates and persists the issued credentials.
func (m *Manager) Login(ctx context.Context, email, password string) (model.UserProfile, error) {
	auth, err := m.api.Login(ctx, email, password)
	if err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Login failed", aerr.Message)
		return model.UserProfile{}, aerr
	}
	return m.adopt(ctx, auth, "Logged in")
}

// Logout clears the credential store and settles on anonymous.
// Idempotent regardless of prior state.
func (m *Manager) Logout(ctx context.Context, quiet bool) {
	m.dropSession(ctx)
	if !quiet {
		m.notifier.Info("Logged out", "Your session has ended.")
	}
	m.log.Info("logged out")
}

// Register validates input locally, then submits the account. The user
// is not authenticated yet; a one-time code sent by the server completes
// registration through VerifyOneTimeCode.
func (m *Manager) Register(ctx context.Context, name, email, password string, role model.Role) error {
	if err := validateRegistration(name, email, password, role); err != nil {
		var verr *errs.ValidationError
		if errors.As(err, &verr) {
			m.notifier.Error("Invalid "+verr.Field, verr.Reason)
		}
		return err
	}
	if err := m.api.Register(ctx, name, email, password, role); err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Registration failed", aerr.Message)
		return aerr
	}
	m.notifier.Info("Almost there", "Enter the verification code we sent to "+email+".")
	return nil
}

// VerifyOneTimeCode completes registration and authenticates.
func (m *Manager) VerifyOneTimeCode(ctx context.Context, email, code string) (model.UserProfile, error) {
	auth, err := m.api.VerifyOTP(ctx, email, code)
	if err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Verification failed", aerr.Message)
		return model.UserProfile{}, aerr
	}
	return m.adopt(ctx, auth, "Account verified")
}

// ResendOneTimeCode requests a fresh registration code.
func (m *Manager) ResendOneTimeCode(ctx context.Context, email string) error {
	if err := m.api.ResendOTP(ctx, email); err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Could not resend code", aerr.Message)
		return aerr
	}
	m.notifier.Info("Code sent", "A new verification code is on its way to "+email+".")
	return nil
}

// SendResetCode starts the password-reset flow.
func (m *Manager) SendResetCode(ctx context.Context, email string) error {
	if err := m.api.SendResetCode(ctx, email); err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Could not send reset code", aerr.Message)
		return aerr
	}
	m.notifier.Info("Code sent", "Check "+email+" for the reset code.")
	return nil
}

// VerifyResetCode checks a password-reset code.
func (m *Manager) VerifyResetCode(ctx context.Context, email, code string) error {
	if err := m.api.VerifyResetCode(ctx, email, code); err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Invalid reset code", aerr.Message)
		return aerr
	}
	return nil
}

// ResetPassword completes the password-reset flow. The session is not
// touched; the user logs in with the new password.
func (m *Manager) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		var verr *errs.ValidationError
		if errors.As(err, &verr) {
			m.notifier.Error("Invalid password", verr.Reason)
		}
		return err
	}
	if err := m.api.ResetPassword(ctx, email, code, newPassword); err != nil {
		aerr := asAuthError(err)
		m.notifier.Error("Password reset failed", aerr.Message)
		return aerr
	}
	m.notifier.Info("Password updated", "You can now log in with your new password.")
	return nil
}

// UpdateProfile patches profile fields. The cached profile only changes
// after the server confirms; the role never changes within a session.
func (m *Manager) UpdateProfile(ctx context.Context, partial map[string]string) (model.UserProfile, error) {
	cur := m.Session()
	if cur.Status != model.StatusAuthenticated {
		m.notifier.Error("Login required", "Log in to update your profile.")
		return model.UserProfile{}, errs.ErrLoginRequired
	}
	fields := make(map[string]string, len(partial))
	for k, v := range partial {
		if k != "role" {
			fields[k] = v
		}
	}

	updated, err := m.api.UpdateProfile(ctx, fields)
	if err != nil {
		if errors.Is(err, errs.ErrAuthExpired) {
			m.Expire(ctx)
			return model.UserProfile{}, err
		}
		aerr := asAuthError(err)
		m.notifier.Error("Profile update failed", aerr.Message)
		return model.UserProfile{}, aerr
	}
	updated.Role = cur.User.Role

	creds, lerr := m.store.Load(ctx)
	if lerr == nil {
		creds.Profile = &updated
		if serr := m.store.Save(ctx, creds); serr != nil {
			m.log.Warn("persist profile", zap.Error(serr))
		}
	}
	m.mu.Lock()
	if m.session.Status == model.StatusAuthenticated {
		u := updated
		m.session.User = &u
	}
	snap := m.session
	m.mu.Unlock()
	m.publish(snap)
	m.notifier.Info("Profile updated", "Your changes have been saved.")
	return updated, nil
}

// UpdatePassword rotates the account password after a server round trip.
func (m *Manager) UpdatePassword(ctx context.Context, current, next string) error {
	if m.Status() != model.StatusAuthenticated {
		m.notifier.Error("Login required", "Log in to change your password.")
		return errs.ErrLoginRequired
	}
	if err := validatePassword(next); err != nil {
		var verr *errs.ValidationError
		if errors.As(err, &verr) {
			m.notifier.Error("Invalid password", verr.Reason)
		}
		return err
	}
	if err := m.api.ChangePassword(ctx, current, next); err != nil {
		if errors.Is(err, errs.ErrAuthExpired) {
			m.Expire(ctx)
			return err
		}
		aerr := asAuthError(err)
		m.notifier.Error("Password change failed", aerr.Message)
		return aerr
	}
	m.notifier.Info("Password changed", "Your password has been updated.")
	return nil
}

// Expire drops the session after an irrecoverable authorization failure
// (access token rejected and refresh failed). Surfaced exactly once.
func (m *Manager) Expire(ctx context.Context) {
	if m.Status() != model.StatusAuthenticated {
		return
	}
	m.dropSession(ctx)
	m.notifier.Error("Session expired", "Please log in again.")
	m.log.Info("session expired")
}

// Run watches the credential store for changes this manager did not
// make itself (logout in another process, external token rotation) and
// resyncs session state. Blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for creds := range m.store.Watch(ctx) {
		m.mu.Lock()
		own := creds.AccessToken == m.lastToken
		m.mu.Unlock()
		if own {
			continue
		}
		m.log.Info("external credential change observed")
		if creds.Complete() {
			m.Restore(ctx)
			continue
		}
		m.dropSession(ctx)
		m.notifier.Info("Signed out", "Your session ended in another window.")
	}
}

// adopt persists a fresh authentication result and publishes the new
// session.
func (m *Manager) adopt(ctx context.Context, auth gateway.Auth, title string) (model.UserProfile, error) {
	user := auth.User
	creds := credstore.Credentials{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Profile:      &user,
	}
	if err := m.store.Save(ctx, creds); err != nil {
		m.notifier.Error("Login failed", "Could not persist your session.")
		return model.UserProfile{}, err
	}
	m.setAuthenticated(creds)
	m.notifier.Info(title, "Welcome, "+user.Name+".")
	m.log.Info("authenticated",
		zap.String("user", user.ID),
		zap.String("role", string(user.Role)),
		zap.Time("token_exp", tokenExpiry(auth.AccessToken)),
	)
	return user, nil
}

func (m *Manager) setAuthenticated(creds credstore.Credentials) {
	m.mu.Lock()
	u := *creds.Profile
	m.session = model.Session{
		Status:       model.StatusAuthenticated,
		User:         &u,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	m.lastToken = creds.AccessToken
	snap := m.session
	m.mu.Unlock()
	m.publish(snap)
}

// dropSession clears stored credentials and settles on anonymous.
func (m *Manager) dropSession(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("clear credentials", zap.Error(err))
	}
	m.mu.Lock()
	m.session = model.Session{Status: model.StatusAnonymous}
	m.lastToken = ""
	snap := m.session
	m.mu.Unlock()
	m.publish(snap)
}

func (m *Manager) publish(snap model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// asAuthError converts gateway failures into the user-facing auth error,
// preserving server-provided messages.
func asAuthError(err error) *errs.AuthError {
	var se *errs.ServerError
	if errors.As(err, &se) {
		return &errs.AuthError{Message: se.Message}
	}
	if errors.Is(err, errs.ErrAuthExpired) {
		return &errs.AuthError{Message: "Your session has expired. Please log in again."}
	}
	return &errs.AuthError{Message: "The store is unreachable right now. Please try again."}
}

// tokenExpiry extracts the expiry claim without verifying the signature;
// verification is the server's job, the client only logs the horizon.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Time{}
}
