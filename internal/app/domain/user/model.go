package user

import "time"

// Role is the platform-wide role of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User mirrors an identity from the auth provider. ID is the token subject.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Identity is what a verified auth token says about its holder.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Phone   string
}
