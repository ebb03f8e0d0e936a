package user

import (
	"strings"

	"github.com/trezcool/masomo-portal/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// IsRole reports whether role is one of AllRoles.
func IsRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Identity is the authenticated user, as returned by the identity endpoint.
type Identity struct {
	ID        core.ID `json:"id"`
	Name      string  `json:"name,omitempty"`
	FirstName string  `json:"first_name,omitempty"`
	LastName  string  `json:"last_name,omitempty"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	School    core.ID `json:"school,omitempty"`
}

// DisplayName prefers Name and falls back to "<first> <last>", then the email.
func (i Identity) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(i.FirstName + " " + i.LastName); name != "" {
		return name
	}
	return i.Email
}

func (i Identity) IsAdmin() bool   { return i.Role == RoleAdmin }
func (i Identity) IsTeacher() bool { return i.Role == RoleTeacher }
func (i Identity) IsStudent() bool { return i.Role == RoleStudent }

// Credentials are exchanged for an access/refresh credential pair.
type Credentials struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	Role     string  `json:"role,omitempty" validate:"omitempty,role"`
	School   core.ID `json:"school,omitempty"`
}

// Clean normalizes the credentials before validation.
func (c *Credentials) Clean() {
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.Role = core.CleanString(c.Role, true /* lower */)
}

// Candidate contains information needed to register a new user.
type Candidate struct {
	Role            string  `json:"role" validate:"required,role"`
	Name            string  `json:"name" validate:"required,notblank"`
	Email           string  `json:"email" validate:"required,email"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
	School          core.ID `json:"school,omitempty"`
}

// Clean normalizes the candidate before validation.
func (c *Candidate) Clean() {
	c.Name = core.CleanString(c.Name)
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.Role = core.CleanString(c.Role, true /* lower */)
}

// Tokens is the credential pair handed out by the backend.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}
