package models

// Session mirrors the token endpoint response
// (POST /auth/v1/token) field for field.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// Valid reports whether the session carries both tokens. A session is
// either fully populated or absent, never partial.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// Clone returns an independent copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.User != nil {
		user := *s.User
		clone.User = &user
	}
	return &clone
}
