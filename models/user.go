package models

// User is the read-only projection returned by GET /auth/v1/user.
// It is always re-derived from a valid session, never persisted on its own.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	LastSignInAt string `json:"last_sign_in_at,omitempty"`
}
