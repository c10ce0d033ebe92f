package identity

import (
	"sort"
	"time"

	"github.com/rayenfassatoui/amen-bank/internal/authz"
)

// User is a staff member of an agency or department.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Phone        string
	Role         authz.Role
	AgencyID     string
	IsActive     bool
	TokenVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// FullName joins first and last name.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Principal is the authorization view of the user.
func (u User) Principal() authz.Principal {
	return authz.Principal{ID: u.ID, Name: u.FullName(), Email: u.Email, Role: u.Role, AgencyID: u.AgencyID}
}

// Profile is the user as returned to API callers.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Phone     string     `json:"phone,omitempty"`
	Role      authz.Role `json:"role"`
	AgencyID  string     `json:"agencyId"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin"`
}

// Profile strips credentials from u.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Role:      u.Role,
		AgencyID:  u.AgencyID,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// RoleInfo describes a role for the role catalogue.
type RoleInfo struct {
	Name        authz.Role `json:"name"`
	Description string     `json:"description"`
}

// RoleCatalogue lists every role ordered by name.
func RoleCatalogue() []RoleInfo {
	out := make([]RoleInfo, 0, len(authz.Roles))
	for _, r := range authz.Roles {
		out = append(out, RoleInfo{Name: r, Description: r.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateUserInput carries the fields of a new user.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      authz.Role
	AgencyID  string
}

// UpdateUserInput carries optional changes; nil fields are left untouched.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Role      *authz.Role
	AgencyID  *string
	IsActive  *bool
	Password  *string
}
