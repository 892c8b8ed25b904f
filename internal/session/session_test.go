package session

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeBackend struct {
	mu sync.Mutex

	token    *oauth2.Token
	tokenErr error
	user     *models.User
	meErr    error
	patch    models.ProfilePatch
	patchErr error

	// meGate blocks Me until closed when set.
	meGate chan struct{}
}

func (f *fakeBackend) PasswordToken(context.Context, string, string) (*oauth2.Token, error) {
	return f.token, f.tokenErr
}

func (f *fakeBackend) Me(ctx context.Context) (*models.User, error) {
	if f.meGate != nil {
		<-f.meGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	u := *f.user
	return &u, nil
}

func (f *fakeBackend) UpdateMe(context.Context, models.ProfileUpdate) (models.ProfilePatch, error) {
	return f.patch, f.patchErr
}

func newTestManager(b Backend, store Store) *Manager {
	return NewManager(b, store, shared.NewLogger(&bytes.Buffer{}))
}

func alice() *models.User {
	return &models.User{ID: "u1", Username: "alice", Email: "alice@example.com", Role: models.RoleDealerAdmin, DealerID: "d1"}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(exp)}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login commits token and user", func(t *testing.T) {
		b := &fakeBackend{token: &oauth2.Token{AccessToken: "tok"}, user: alice()}
		m := newTestManager(b, nil)

		require.NoError(t, m.Login(ctx, "alice", "secret"))

		st := m.Snapshot()
		assert.True(t, st.Authenticated)
		assert.Equal(t, models.RoleDealerAdmin, st.Role)
		assert.False(t, st.Loading)
		require.NotNil(t, st.User)
		assert.Equal(t, "alice", st.User.Username)
		assert.Equal(t, "tok", m.Token().AccessToken)
	})

	t.Run("missing token is an AuthError", func(t *testing.T) {
		b := &fakeBackend{token: &oauth2.Token{}, user: alice()}
		m := newTestManager(b, nil)

		err := m.Login(ctx, "alice", "secret")

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.ErrorIs(t, err, shared.ErrAuthFailed)
		assert.False(t, m.IsAuthenticated())
		assert.Nil(t, m.Token())
	})

	t.Run("server rejection carries detail", func(t *testing.T) {
		rejected := &services.APIError{StatusCode: http.StatusUnauthorized, Detail: "Incorrect username or password"}
		m := newTestManager(&fakeBackend{tokenErr: rejected}, nil)

		err := m.Login(ctx, "alice", "wrong")

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "Incorrect username or password", authErr.Message)
		assert.False(t, m.IsAuthenticated())
	})

	t.Run("network failure is not an AuthError and changes nothing", func(t *testing.T) {
		m := newTestManager(&fakeBackend{tokenErr: errors.New("dial tcp: connection refused")}, nil)

		err := m.Login(ctx, "alice", "secret")

		require.Error(t, err)
		var authErr *AuthError
		assert.False(t, errors.As(err, &authErr))
		assert.False(t, m.IsAuthenticated())
	})

	t.Run("profile fetch failure leaves no partial session", func(t *testing.T) {
		b := &fakeBackend{
			token: &oauth2.Token{AccessToken: "tok"},
			meErr: &services.APIError{StatusCode: http.StatusInternalServerError},
		}
		m := newTestManager(b, nil)

		require.Error(t, m.Login(ctx, "alice", "secret"))
		assert.Nil(t, m.Token())
		assert.Nil(t, m.User())
	})

	t.Run("failed relogin keeps the previous session", func(t *testing.T) {
		b := &fakeBackend{token: &oauth2.Token{AccessToken: "first"}, user: alice()}
		m := newTestManager(b, nil)
		require.NoError(t, m.Login(ctx, "alice", "secret"))

		b.token = &oauth2.Token{AccessToken: "second"}
		b.meErr = &services.APIError{StatusCode: http.StatusBadGateway}
		require.Error(t, m.Login(ctx, "alice", "secret"))

		assert.Equal(t, "first", m.Token().AccessToken)
		assert.Equal(t, "alice", m.User().Username)
	})

	t.Run("candidate token is invisible until the profile arrives", func(t *testing.T) {
		gate := make(chan struct{})
		b := &fakeBackend{token: &oauth2.Token{AccessToken: "tok"}, user: alice(), meGate: gate}
		m := newTestManager(b, nil)

		done := make(chan error, 1)
		go func() { done <- m.Login(ctx, "alice", "secret") }()

		require.Eventually(t, m.Loading, time.Second, time.Millisecond)
		st := m.Snapshot()
		assert.False(t, st.Authenticated)
		assert.Nil(t, st.User)
		assert.Nil(t, m.Token())

		close(gate)
		require.NoError(t, <-done)
		assert.True(t, m.IsAuthenticated())
		assert.False(t, m.Loading())
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		u := alice()
		u.Role = "root"
		m := newTestManager(&fakeBackend{token: &oauth2.Token{AccessToken: "tok"}, user: u}, nil)

		var authErr *AuthError
		require.ErrorAs(t, m.Login(ctx, "alice", "secret"), &authErr)
		assert.False(t, m.IsAuthenticated())
	})

	t.Run("blank credentials", func(t *testing.T) {
		m := newTestManager(&fakeBackend{}, nil)
		err := m.Login(ctx, "  ", "")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	b := &fakeBackend{token: &oauth2.Token{AccessToken: "tok"}, user: alice()}
	m := newTestManager(b, store)
	require.NoError(t, m.Login(ctx, "alice", "secret"))

	stored, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)

	m.Logout(ctx)

	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.Token())
	assert.Nil(t, m.User())
	assert.Equal(t, models.Role(""), m.Role())

	stored, err = store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestHandleUnauthorized(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{token: &oauth2.Token{AccessToken: "tok"}, user: alice()}
	m := newTestManager(b, nil)
	require.NoError(t, m.Login(ctx, "alice", "secret"))

	assert.False(t, m.HandleUnauthorized(ctx, &services.APIError{StatusCode: http.StatusForbidden}))
	assert.True(t, m.IsAuthenticated())

	assert.True(t, m.HandleUnauthorized(ctx, &services.APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, m.IsAuthenticated())

	assert.False(t, m.HandleUnauthorized(ctx, &services.APIError{StatusCode: http.StatusUnauthorized}))
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	loggedIn := func(t *testing.T, b *fakeBackend) *Manager {
		b.token = &oauth2.Token{AccessToken: "tok"}
		b.user = alice()
		m := newTestManager(b, nil)
		require.NoError(t, m.Login(ctx, "alice", "secret"))
		return m
	}

	t.Run("shallow merge keeps absent fields", func(t *testing.T) {
		email := "new@example.com"
		b := &fakeBackend{patch: models.ProfilePatch{Email: &email}}
		m := loggedIn(t, b)

		user, err := m.UpdateProfile(ctx, models.ProfileUpdate{Email: email})
		require.NoError(t, err)

		assert.Equal(t, email, user.Email)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "d1", user.DealerID)
		assert.Equal(t, models.RoleDealerAdmin, m.Role())
		assert.Equal(t, email, m.User().Email)
	})

	t.Run("rejection uses server message and keeps user", func(t *testing.T) {
		b := &fakeBackend{patchErr: &services.APIError{StatusCode: http.StatusBadRequest, Detail: "Email already registered"}}
		m := loggedIn(t, b)

		_, err := m.UpdateProfile(ctx, models.ProfileUpdate{Email: "taken@example.com"})

		var pe *ProfileUpdateError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "Email already registered", pe.Message)
		assert.ErrorIs(t, err, shared.ErrProfileUpdateFailed)
		assert.Equal(t, "alice@example.com", m.User().Email)
	})

	t.Run("rejection without message falls back", func(t *testing.T) {
		b := &fakeBackend{patchErr: errors.New("connection reset")}
		m := loggedIn(t, b)

		_, err := m.UpdateProfile(ctx, models.ProfileUpdate{FullName: "Alice"})

		var pe *ProfileUpdateError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, DefaultProfileUpdateMessage, pe.Message)
	})

	t.Run("requires a session", func(t *testing.T) {
		m := newTestManager(&fakeBackend{}, nil)
		_, err := m.UpdateProfile(ctx, models.ProfileUpdate{Email: "x@y"})
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("empty update", func(t *testing.T) {
		m := loggedIn(t, &fakeBackend{})
		_, err := m.UpdateProfile(ctx, models.ProfileUpdate{})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tc := []struct {
		name     string
		stored   *Persisted
		restored bool
		cleared  bool
	}{
		{name: "nothing stored"},
		{
			name:     "valid token",
			stored:   &Persisted{Token: &oauth2.Token{AccessToken: signedToken(t, now.Add(time.Hour))}, User: *alice()},
			restored: true,
		},
		{
			name:    "expired jwt",
			stored:  &Persisted{Token: &oauth2.Token{AccessToken: signedToken(t, now.Add(-time.Minute))}, User: *alice()},
			cleared: true,
		},
		{
			name:     "opaque token without expiry",
			stored:   &Persisted{Token: &oauth2.Token{AccessToken: "opaque"}, User: *alice()},
			restored: true,
		},
		{
			name:    "missing user",
			stored:  &Persisted{Token: &oauth2.Token{AccessToken: "opaque"}},
			cleared: true,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			store := &MemoryStore{}
			if tt.stored != nil {
				require.NoError(t, store.SaveSession(ctx, *tt.stored))
			}
			m := newTestManager(&fakeBackend{}, store)
			m.now = func() time.Time { return now }

			ok, err := m.Restore(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.restored, ok)
			assert.Equal(t, tt.restored, m.IsAuthenticated())

			if tt.cleared {
				left, _ := store.LoadSession(ctx)
				assert.Nil(t, left)
			}
		})
	}
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("jwt exp claim", func(t *testing.T) {
		got := ExpiresAt(&oauth2.Token{AccessToken: signedToken(t, exp)})
		assert.True(t, got.Equal(exp), "got %s want %s", got, exp)
	})

	t.Run("earlier token expiry wins", func(t *testing.T) {
		earlier := exp.Add(-30 * time.Minute)
		got := ExpiresAt(&oauth2.Token{AccessToken: signedToken(t, exp), Expiry: earlier})
		assert.True(t, got.Equal(earlier))
	})

	t.Run("opaque token", func(t *testing.T) {
		assert.True(t, ExpiresAt(&oauth2.Token{AccessToken: "opaque"}).IsZero())
		assert.True(t, ExpiresAt(nil).IsZero())
	})
}

func TestLandingRoute(t *testing.T) {
	tc := map[models.Role]string{
		models.RoleSuperAdmin:  "/super-admin/dashboard",
		models.RoleDealerAdmin: "/dealer/dashboard",
		models.RoleBranchAdmin: "/dealer/dashboard",
		models.RoleDealerUser:  "/dealer/new",
		"":                     "/login",
	}
	for role, want := range tc {
		assert.Equal(t, want, LandingRoute(role), "role %q", role)
	}
}
