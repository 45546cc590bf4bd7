package guard

import (
	"deptportal/portal/internal/model"
	"deptportal/portal/internal/session"
)

type Kind int

const (
	// Placeholder means the session is still being checked. Redirecting here
	// would bounce a user who is in fact logged in.
	Placeholder Kind = iota
	Render
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "placeholder"
	}
}

type Decision struct {
	Kind     Kind
	Location string
}

const (
	PathLanding = "/"
	PathStudent = "/student"
	PathFaculty = "/faculty"
	PathAdmin   = "/admin"
)

// HomeFor is the dashboard route for an authoritative role.
func HomeFor(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return PathAdmin
	case model.RoleTeacher:
		return PathFaculty
	case model.RoleStudent:
		return PathStudent
	default:
		return PathLanding
	}
}

// Protected admits an authenticated user whose role is in allowed. With no
// roles given any authenticated user is admitted.
func Protected(snap session.Snapshot, allowed ...model.Role) Decision {
	if snap.Loading {
		return Decision{Kind: Placeholder}
	}
	if snap.User == nil {
		return Decision{Kind: Redirect, Location: PathLanding}
	}
	if len(allowed) > 0 && !hasRole(allowed, snap.User.Role()) {
		return Decision{Kind: Redirect, Location: PathLanding}
	}
	return Decision{Kind: Render}
}

// PublicOnly keeps authenticated users away from pages such as login.
func PublicOnly(snap session.Snapshot) Decision {
	if snap.Loading {
		return Decision{Kind: Placeholder}
	}
	if snap.User != nil {
		return Decision{Kind: Redirect, Location: HomeFor(snap.User.Role())}
	}
	return Decision{Kind: Render}
}

func hasRole(roles []model.Role, target model.Role) bool {
	for _, role := range roles {
		if role == target {
			return true
		}
	}
	return false
}
