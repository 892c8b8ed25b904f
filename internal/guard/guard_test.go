package guard

import (
	"testing"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authed(r models.Role) session.State {
	return session.State{Authenticated: true, Role: r, User: &models.User{ID: "u1", Role: r}}
}

func TestDecide(t *testing.T) {
	t.Run("Loading Never Redirects", func(t *testing.T) {
		for _, st := range []session.State{
			{Loading: true},
			{Loading: true, Authenticated: true, Role: models.RoleDealerUser},
		} {
			d := Decide(st, []models.Role{models.RoleSuperAdmin}, "/super-admin/users")
			assert.Equal(t, Placeholder, d.Action)
			assert.Empty(t, d.Location)
		}
	})

	t.Run("Unauthenticated Redirects With From", func(t *testing.T) {
		d := Decide(session.State{}, nil, "/dealer/results")

		assert.Equal(t, Redirect, d.Action)
		assert.Equal(t, session.LoginRoute, d.Location)
		assert.Equal(t, "/dealer/results", d.From)
		assert.Equal(t, "/login?from=%2Fdealer%2Fresults", d.LoginURL())
	})

	t.Run("Role Gate", func(t *testing.T) {
		sets := [][]models.Role{
			nil,
			{},
			{models.RoleSuperAdmin},
			{models.RoleDealerAdmin, models.RoleDealerUser, models.RoleBranchAdmin},
			{models.RoleBranchAdmin},
		}

		for _, role := range models.Roles {
			for _, set := range sets {
				d := Decide(authed(role), set, "/x")
				want := len(set) == 0 || role.In(set)

				assert.Equal(t, want, d.Allowed(), "role %s set %v", role, set)
				if !want {
					assert.Equal(t, Forbidden, d.Action)
					assert.Empty(t, d.Location)
				}
			}
		}
	})
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "", Decision{Action: Render}.LoginURL())
	assert.Equal(t, "/login", Decision{Action: Redirect, Location: "/login"}.LoginURL())
	assert.Equal(t, "/login", Decision{Action: Redirect, Location: "/login", From: "/login"}.LoginURL())
}

func TestRoutes(t *testing.T) {
	t.Run("Lookup", func(t *testing.T) {
		r, ok := Lookup("/dealer/new/")
		require.True(t, ok)
		assert.Equal(t, session.NewAnalysisRoute, r.Path)

		_, ok = Lookup("/")
		assert.False(t, ok)
		_, ok = Lookup("/nope")
		assert.False(t, ok)
	})

	t.Run("Resolve Falls Back To Login", func(t *testing.T) {
		assert.Equal(t, session.LoginRoute, Resolve("/"))
		assert.Equal(t, session.LoginRoute, Resolve("/anything/else"))
		assert.Equal(t, ResultsRoute, Resolve("/dealer/results"))
	})

	t.Run("Landing Routes Are Reachable", func(t *testing.T) {
		for _, role := range models.Roles {
			d := Check(authed(role), session.LandingRoute(role))
			assert.True(t, d.Allowed(), "role %s", role)
		}
	})

	t.Run("Super Admin Pages", func(t *testing.T) {
		assert.Equal(t, Forbidden, Check(authed(models.RoleDealerAdmin), SuperAdminUsersRoute).Action)
		assert.Equal(t, Forbidden, Check(authed(models.RoleSuperAdmin), session.DealerDashboardRoute).Action)
		assert.True(t, Check(authed(models.RoleSuperAdmin), SuperAdminDealersRoute).Allowed())
	})

	t.Run("Menu Entries Are Allowed", func(t *testing.T) {
		for _, role := range models.Roles {
			menu := MenuFor(role)
			require.NotEmpty(t, menu, "role %s", role)
			for _, r := range menu {
				assert.True(t, Decide(authed(role), r.Roles, r.Path).Allowed(), "role %s route %s", role, r.Path)
			}
		}
		assert.Empty(t, MenuFor(models.Role("guest")))
	})
}
