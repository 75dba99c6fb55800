package model

import "time"

// Role is the access level a backend account holds.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleViewer     Role = "viewer"
)

// IsAdmin reports whether r grants create, edit and delete actions.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin
}

// User is the account profile returned by the auth endpoints.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user holds the administrative role.
func (u User) IsAdmin() bool {
	return u.Role.IsAdmin()
}

// Session is the authenticated state of the running client.
type Session struct {
	// UserID mirrors User.ID so callers do not need the full profile.
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`

	// Token is the bearer token attached to every API request.
	Token string `json:"token"`

	User User `json:"user"`
}

// NewSession builds a Session from a login/registration response.
func NewSession(token string, u User) Session {
	return Session{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Token:  token,
		User:   u,
	}
}

// IsAdmin reports whether the session belongs to a super admin.
func (s Session) IsAdmin() bool {
	return s.Role.IsAdmin()
}

// AuthResponse is the body returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// OTPChallenge is returned when a one-time code has been emailed.
type OTPChallenge struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}
