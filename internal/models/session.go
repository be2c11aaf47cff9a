package models

// Session holds the credential pair and identity of the signed-in user
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
}

// IsAuthenticated returns true when an access token is present
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.AccessToken != ""
}

// Clone returns a copy safe to hand to callers
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return &c
}
