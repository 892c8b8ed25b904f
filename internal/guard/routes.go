package guard

import (
	"strings"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/session"
)

// Route is a navigable view and the roles that may open it.
type Route struct {
	Path  string        `json:"path"`
	Title string        `json:"title"`
	Roles []models.Role `json:"roles"`
}

var (
	superAdmins = []models.Role{models.RoleSuperAdmin}
	dealerRoles = []models.Role{models.RoleDealerAdmin, models.RoleDealerUser, models.RoleBranchAdmin}
)

// Dealer-side routes outside the landing set.
const (
	SuperAdminUsersRoute   = "/super-admin/users"
	SuperAdminDealersRoute = "/super-admin/dealers"
	BulkUploadRoute        = "/dealer/bulk"
	ResultsRoute           = "/dealer/results"
	DealerUsersRoute       = "/dealer/users"
)

// Routes is the table of protected views.
var Routes = []Route{
	{Path: session.SuperAdminDashboardRoute, Title: "Dashboard", Roles: superAdmins},
	{Path: SuperAdminUsersRoute, Title: "User Management", Roles: superAdmins},
	{Path: SuperAdminDealersRoute, Title: "Dealer Network", Roles: superAdmins},
	{Path: session.DealerDashboardRoute, Title: "Dashboard", Roles: dealerRoles},
	{Path: session.NewAnalysisRoute, Title: "New Analysis", Roles: dealerRoles},
	{Path: BulkUploadRoute, Title: "Bulk Upload", Roles: dealerRoles},
	{Path: ResultsRoute, Title: "Results", Roles: dealerRoles},
	{Path: DealerUsersRoute, Title: "User Management", Roles: dealerRoles},
}

var menus = map[models.Role][]string{
	models.RoleSuperAdmin: {session.SuperAdminDashboardRoute, SuperAdminUsersRoute, SuperAdminDealersRoute},
	models.RoleDealerAdmin: {
		session.DealerDashboardRoute, session.NewAnalysisRoute, BulkUploadRoute, ResultsRoute, DealerUsersRoute,
	},
	models.RoleBranchAdmin: {session.DealerDashboardRoute, session.NewAnalysisRoute, ResultsRoute, DealerUsersRoute},
	models.RoleDealerUser:  {session.DealerDashboardRoute, session.NewAnalysisRoute, ResultsRoute},
}

// Lookup returns the route registered for path. Trailing slashes are ignored.
func Lookup(path string) (Route, bool) {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve maps any requested path to the location a surface should show.
//
// Unknown paths, including the root, fall back to the login view.
func Resolve(path string) string {
	if r, ok := Lookup(path); ok {
		return r.Path
	}
	return session.LoginRoute
}

// MenuFor lists the routes shown in the navigation menu for role r.
func MenuFor(r models.Role) []Route {
	paths := menus[r]
	out := make([]Route, 0, len(paths))
	for _, p := range paths {
		if route, ok := Lookup(p); ok {
			out = append(out, route)
		}
	}
	return out
}

// Check looks up path and decides access for state.
//
// Unknown paths resolve to a redirect to the login view.
func Check(state session.State, path string) Decision {
	route, ok := Lookup(path)
	if !ok {
		return Decision{Action: Redirect, Location: session.LoginRoute}
	}
	return Decide(state, route.Roles, route.Path)
}
