package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-portal/core/endpoint"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
)

func routes(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Route)
	}
	return out
}

func TestMenu(t *testing.T) {
	assert.Len(t, Menu(user.RoleAdmin), 11)
	assert.Equal(t, []string{
		"/teacher/dashboard", "/teacher/classes", "/teacher/attendance", "/teacher/exams",
		"/teacher/results", "/teacher/announcements", "/teacher/timetable",
	}, routes(Menu(user.RoleTeacher)))
	assert.Equal(t, []string{
		"/student/dashboard", "/student/attendance", "/student/results", "/student/announcements",
	}, routes(Menu(user.RoleStudent)))
	assert.Nil(t, Menu("janitor"))
	assert.Nil(t, Menu(""))

	for _, item := range Menu(user.RoleAdmin) {
		if item.Resource != "" {
			_, ok := endpoint.Lookup(item.Resource)
			assert.True(t, ok, item.Resource)
		}
	}
}

func TestInitialRoute(t *testing.T) {
	tests := []struct {
		name  string
		state session.State
		want  string
	}{
		{name: "fresh install", state: session.State{}, want: RouteSelectRole},
		{name: "role picked", state: session.State{Role: user.RoleTeacher}, want: RouteLogin},
		{name: "bogus role", state: session.State{Role: "janitor"}, want: RouteSelectRole},
		{
			name:  "authenticated",
			state: session.State{Authenticated: true, Role: user.RoleTeacher, Identity: &user.Identity{Role: user.RoleTeacher}},
			want:  "/teacher/dashboard",
		},
		{
			name:  "identity role wins",
			state: session.State{Authenticated: true, Role: user.RoleStudent, Identity: &user.Identity{Role: user.RoleAdmin}},
			want:  "/admin/dashboard",
		},
		{
			name:  "expired session keeps role",
			state: session.State{Role: user.RoleStudent, Err: map[string][]string{"non_field_errors": {"expired"}}},
			want:  RouteLogin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InitialRoute(tt.state))
		})
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		role, route string
		want        bool
	}{
		{"", RouteLogin, true},
		{"", RouteSelectRole + "/", true},
		{"", "/admin/dashboard", false},
		{user.RoleAdmin, "/admin/students", true},
		{user.RoleAdmin, "/admin/students/12", true},
		{user.RoleAdmin, "/admin/studentsx", false},
		{user.RoleTeacher, "/teacher/students", false},
		{user.RoleTeacher, "/teacher/timetable", true},
		{user.RoleTeacher, "/admin/classes", false},
		{user.RoleStudent, "/student/results", true},
		{user.RoleStudent, "/student/exams", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.role, tt.route))
		})
	}
}
