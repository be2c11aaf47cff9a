package models

import (
	"encoding/json"
	"strings"
	"time"
)

// User represents a teamchat member
type User struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email,omitempty"`
	IsOnline bool       `json:"isOnline,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// userDoc is the wire shape of a user; servers may send either _id or id.
type userDoc struct {
	MongoID  string     `json:"_id"`
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// UnmarshalJSON accepts both the server document shape and the persisted shape.
func (u *User) UnmarshalJSON(data []byte) error {
	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*u = User{
		ID:       firstNonEmpty(doc.MongoID, doc.ID),
		Username: doc.Username,
		Email:    doc.Email,
		IsOnline: doc.IsOnline,
		LastSeen: doc.LastSeen,
	}
	return nil
}

// DisplayEmail returns the email, or a placeholder derived from the username
// when the server omitted it.
func (u *User) DisplayEmail() string {
	if u.Email != "" {
		return u.Email
	}
	name := strings.ToLower(u.Username)
	if name == "" {
		name = "user"
	}
	return name + "@example.com"
}

// Presence returns a short presence label
func (u *User) Presence() string {
	if u.IsOnline {
		return "online"
	}
	return "offline"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
