// Package navigation decides which screens a role can reach and where a session lands.
package navigation

import (
	"strings"

	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
)

// Public routes, reachable without a session.
const (
	RouteLogin      = "/login"
	RouteRegister   = "/register"
	RouteSelectRole = "/select-role"
)

// Item is one menu entry. Resource names the collection the screen manages, if any.
type Item struct {
	Label    string `json:"label"`
	Route    string `json:"route"`
	Resource string `json:"resource,omitempty"`
}

type entry struct {
	slug     string
	label    string
	resource string
	roles    []string
}

var entries = []entry{
	{slug: "dashboard", label: "Dashboard", roles: user.AllRoles},
	{slug: "schools", label: "Schools", resource: "schools", roles: []string{user.RoleAdmin}},
	{slug: "academic-years", label: "Academic Years", resource: "academic-years", roles: []string{user.RoleAdmin}},
	{slug: "classes", label: "Classes", resource: "classes", roles: []string{user.RoleAdmin, user.RoleTeacher}},
	{slug: "subjects", label: "Subjects", resource: "subjects", roles: []string{user.RoleAdmin}},
	{slug: "teachers", label: "Teachers", resource: "teachers", roles: []string{user.RoleAdmin}},
	{slug: "students", label: "Students", resource: "students", roles: []string{user.RoleAdmin}},
	{slug: "attendance", label: "Attendance", resource: "attendance", roles: user.AllRoles},
	{slug: "exams", label: "Exams", resource: "exams", roles: []string{user.RoleAdmin, user.RoleTeacher}},
	{slug: "results", label: "Results", resource: "exam-results", roles: user.AllRoles},
	{slug: "announcements", label: "Announcements", resource: "announcements", roles: user.AllRoles},
	{slug: "timetable", label: "Timetable", roles: []string{user.RoleTeacher}},
}

// Menu returns the entries of role, in display order. Unknown roles get no menu.
func Menu(role string) []Item {
	if !user.IsRole(role) {
		return nil
	}
	var items []Item
	for _, e := range entries {
		if hasRole(e.roles, role) {
			items = append(items, Item{Label: e.label, Route: "/" + role + "/" + e.slug, Resource: e.resource})
		}
	}
	return items
}

// InitialRoute is where a session lands on startup.
func InitialRoute(st session.State) string {
	role := st.Role
	if st.Identity != nil && st.Identity.Role != "" {
		role = st.Identity.Role
	}
	switch {
	case st.Authenticated && user.IsRole(role):
		return "/" + role + "/dashboard"
	case !user.IsRole(st.Role):
		return RouteSelectRole
	default:
		return RouteLogin
	}
}

// Allowed reports whether role may open route. Public routes are always allowed.
func Allowed(role, route string) bool {
	route = strings.TrimSuffix(route, "/")
	switch route {
	case RouteLogin, RouteRegister, RouteSelectRole:
		return true
	}
	for _, item := range Menu(role) {
		if route == item.Route || strings.HasPrefix(route, item.Route+"/") {
			return true
		}
	}
	return false
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
