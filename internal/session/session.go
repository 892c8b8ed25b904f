package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/shared"
	"golang.org/x/oauth2"
)

// Landing routes per role.
const (
	LoginRoute               = "/login"
	SuperAdminDashboardRoute = "/super-admin/dashboard"
	DealerDashboardRoute     = "/dealer/dashboard"
	NewAnalysisRoute         = "/dealer/new"
)

// LandingRoute returns the view a user of role r lands on after login.
func LandingRoute(r models.Role) string {
	switch r {
	case models.RoleSuperAdmin:
		return SuperAdminDashboardRoute
	case models.RoleDealerAdmin, models.RoleBranchAdmin:
		return DealerDashboardRoute
	case models.RoleDealerUser:
		return NewAnalysisRoute
	default:
		return LoginRoute
	}
}

// Backend is the subset of the API client the manager needs.
type Backend interface {
	PasswordToken(ctx context.Context, username, password string) (*oauth2.Token, error)
	Me(ctx context.Context) (*models.User, error)
	UpdateMe(ctx context.Context, update models.ProfileUpdate) (models.ProfilePatch, error)
}

// State is a read-only copy of the session.
type State struct {
	Authenticated bool
	Role          models.Role
	Loading       bool
	User          *models.User
}

// Manager owns the token and user of the current session.
type Manager struct {
	backend Backend
	store   Store
	logger  *log.Logger
	now     func() time.Time

	mu       sync.RWMutex
	token    *oauth2.Token
	user     *models.User
	inflight int
	// generation increments on every commit or clear so slow operations can detect
	// that the session they started against is gone.
	generation uint64
}

// NewManager creates a manager. A nil store disables persistence.
func NewManager(backend Backend, store Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		backend: backend,
		store:   store,
		logger:  logger.With("component", "session"),
		now:     time.Now,
	}
}

// SetBackend replaces the backend. The API client and the manager reference each other, so the
// client is usually attached after both are built.
func (m *Manager) SetBackend(b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend = b
}

func (m *Manager) begin() {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()
}

func (m *Manager) end() {
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
}

func (m *Manager) api() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// Restore loads a persisted session. Expired or incomplete sessions are cleared from the store.
// Returns true when a session was restored.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.store == nil {
		return false, nil
	}

	p, err := m.store.LoadSession(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	if p == nil {
		return false, nil
	}

	if p.Token == nil || p.Token.AccessToken == "" || p.User.ID == "" || !p.User.Role.Valid() {
		m.logger.Warn("discarding incomplete stored session")
		return false, m.store.ClearSession(ctx)
	}
	if Expired(p.Token, m.now()) {
		m.logger.Info("stored session expired", "user", p.User.Username, "expired_at", ExpiresAt(p.Token))
		return false, m.store.ClearSession(ctx)
	}

	user := p.User
	m.mu.Lock()
	m.token, m.user = p.Token, &user
	m.generation++
	m.mu.Unlock()

	m.logger.Debug("session restored", "user", user.Username, "role", user.Role)
	return true, nil
}

// Login exchanges credentials for a token, fetches the profile with it and commits both.
//
// On any failure the session is left exactly as it was.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return &AuthError{Message: "username and password are required", Err: shared.ErrMissingArgument}
	}

	m.begin()
	defer m.end()

	backend := m.api()
	tok, err := backend.PasswordToken(ctx, username, password)
	if err != nil {
		var apiErr *services.APIError
		if errors.As(err, &apiErr) || errors.Is(err, shared.ErrAuthFailed) {
			return newAuthError(err)
		}
		return fmt.Errorf("login: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return &AuthError{Message: "token response did not contain an access token"}
	}

	user, err := backend.Me(services.WithToken(ctx, tok))
	if err != nil {
		if services.StatusCode(err) != 0 {
			return &AuthError{Message: "failed to load profile", Err: err}
		}
		return fmt.Errorf("login: fetch profile: %w", err)
	}
	if !user.Role.Valid() {
		return &AuthError{Message: fmt.Sprintf("account has unknown role %q", user.Role)}
	}

	m.mu.Lock()
	m.token, m.user = tok, user
	m.generation++
	m.mu.Unlock()

	m.logger.Info("logged in", "user", user.Username, "role", user.Role)
	m.persist(ctx, tok, *user)
	return nil
}

// Logout clears the token and user. The next outbound request carries no credential.
func (m *Manager) Logout(ctx context.Context) {
	m.clear()
	if m.store != nil {
		if err := m.store.ClearSession(ctx); err != nil {
			m.logger.Error("failed to clear stored session", "error", err)
		}
	}
}

func (m *Manager) clear() {
	m.mu.Lock()
	wasSet := m.token != nil
	m.token, m.user = nil, nil
	m.generation++
	m.mu.Unlock()

	if wasSet {
		m.logger.Info("logged out")
	}
}

// HandleUnauthorized destroys the session when err is a 401 from the server.
// Returns true when the session was cleared.
func (m *Manager) HandleUnauthorized(ctx context.Context, err error) bool {
	if !services.IsUnauthorized(err) || !m.IsAuthenticated() {
		return false
	}
	m.logger.Warn("server rejected credential, ending session")
	m.Logout(ctx)
	return true
}

// UpdateProfile sends a partial update and merges the confirmed fields into the user.
// The user is not changed until the server accepts the update.
func (m *Manager) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	if update.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", shared.ErrInvalidInput)
	}

	m.mu.RLock()
	authenticated, gen := m.token != nil, m.generation
	m.mu.RUnlock()
	if !authenticated {
		return nil, shared.ErrNotAuthenticated
	}

	m.begin()
	defer m.end()

	patch, err := m.api().UpdateMe(ctx, update)
	if err != nil {
		return nil, newProfileUpdateError(err)
	}

	m.mu.Lock()
	if m.generation != gen || m.user == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session changed during profile update", shared.ErrNotAuthenticated)
	}
	merged := m.user.Merge(patch)
	m.user = &merged
	tok := m.token
	m.mu.Unlock()

	m.logger.Info("profile updated", "user", merged.Username)
	m.persist(ctx, tok, merged)
	return &merged, nil
}

func (m *Manager) persist(ctx context.Context, tok *oauth2.Token, user models.User) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(ctx, Persisted{Token: tok, User: user}); err != nil {
		m.logger.Error("failed to persist session", "error", err)
	}
}

// Token implements services.CredentialSource.
func (m *Manager) Token() *oauth2.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return nil
	}
	tok := *m.token
	return &tok
}

// ExpiresAt returns the expiry of the current token, or the zero time.
func (m *Manager) ExpiresAt() time.Time {
	return ExpiresAt(m.Token())
}

// Snapshot returns a copy of the session projection.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{Authenticated: m.token != nil, Loading: m.inflight > 0}
	if m.user != nil {
		u := *m.user
		st.User = &u
		st.Role = u.Role
	}
	return st
}

// IsAuthenticated reports whether a token is held.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().Authenticated
}

// Role returns the role of the current user, or "" when logged out.
func (m *Manager) Role() models.Role {
	return m.Snapshot().Role
}

// Loading reports whether a login or profile update is in flight.
func (m *Manager) Loading() bool {
	return m.Snapshot().Loading
}

// User returns a copy of the current user, or nil.
func (m *Manager) User() *models.User {
	return m.Snapshot().User
}
