package user

import "time"

// Roles form a closed set. Admin accounts are seeded at startup, never
// self-registered.
const (
	RoleClient  = "client"
	RoleStore   = "store"
	RoleCourier = "courier"
	RoleAdmin   = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public is the projection returned to clients. The password hash has no
// field here at all, so it cannot leak through serialization.
type Public struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Public() Public {
	return Public{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// RefreshToken is one entry of a user's active session list. Only the HMAC
// of the opaque token value is ever stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func ValidRegistrationRole(role string) bool {
	switch role {
	case RoleClient, RoleStore, RoleCourier:
		return true
	}
	return false
}
