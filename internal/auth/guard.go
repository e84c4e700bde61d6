package auth

import (
	"strings"

	"github.com/desertthunder/shelf/internal/models"
)

// Access is the requirement a [Route] places on the viewer.
type Access int

const (
	// Public routes are open to everyone.
	Public Access = iota
	// Authenticated routes need a login of any role.
	Authenticated
	// AdminOnly routes need an ADMIN login.
	AdminOnly
	// SubscriberOnly routes need a SUBSCRIBER login.
	SubscriberOnly
)

// Route is one screen of the front end.
type Route struct {
	Path   string
	Title  string
	Access Access
}

// Well-known paths.
const (
	LoginPath  = "/login"
	SignupPath = "/signup"
	HomePath   = "/"
)

// Routes is the route table shared by the web server and the TUI navigator.
var Routes = []Route{
	{Path: LoginPath, Title: "Login", Access: Public},
	{Path: SignupPath, Title: "Sign Up", Access: Public},
	{Path: HomePath, Title: "Catalog", Access: Authenticated},
	{Path: "/admin/books", Title: "Manage Books", Access: AdminOnly},
	{Path: "/admin/subscribers", Title: "Subscribers", Access: AdminOnly},
	{Path: "/admin/remove-subscribers", Title: "Remove Subscribers", Access: AdminOnly},
	{Path: "/admin/fines", Title: "Fine Collections", Access: AdminOnly},
	{Path: "/wallet", Title: "Wallet", Access: SubscriberOnly},
	{Path: "/borrow-history", Title: "Borrow History", Access: SubscriberOnly},
}

// Viewer is the current login as the guards see it. [*Context] implements it.
type Viewer interface {
	IsAuthenticated() bool
	Role() models.Role
}

// Decision is the outcome of [Authorize]. Redirect is set when Allowed is false.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Lookup finds the route for path, ignoring a trailing slash.
func Lookup(path string) (Route, bool) {
	if path != HomePath {
		path = strings.TrimRight(path, "/")
	}
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Authorize decides whether v may see path.
//
// Unknown paths go home. Protected routes send anonymous viewers to the login screen,
// and role-gated routes send everyone else home.
func Authorize(v Viewer, path string) Decision {
	route, ok := Lookup(path)
	if !ok {
		return Decision{Redirect: HomePath}
	}
	if route.Access == Public {
		return Decision{Allowed: true}
	}
	if v == nil || !v.IsAuthenticated() {
		return Decision{Redirect: LoginPath}
	}

	switch route.Access {
	case AdminOnly:
		if v.Role() != models.RoleAdmin {
			return Decision{Redirect: HomePath}
		}
	case SubscriberOnly:
		if v.Role() != models.RoleSubscriber {
			return Decision{Redirect: HomePath}
		}
	}
	return Decision{Allowed: true}
}

// Navigation lists the non-public routes v may visit, in table order.
func Navigation(v Viewer) []Route {
	var out []Route
	for _, r := range Routes {
		if r.Access != Public && Authorize(v, r.Path).Allowed {
			out = append(out, r)
		}
	}
	return out
}
