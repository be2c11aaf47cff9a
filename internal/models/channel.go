package models

import (
	"encoding/json"
)

// Channel represents a named, joinable conversation scope
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
	Members     []User `json:"members,omitempty"`
	CreatedBy   *User  `json:"createdBy,omitempty"`
}

type channelDoc struct {
	MongoID     string          `json:"_id"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IsPrivate   bool            `json:"isPrivate"`
	Members     []User          `json:"members"`
	CreatedBy   json.RawMessage `json:"createdBy"`
}

// UnmarshalJSON maps a channel document. createdBy may be a populated user
// document or a bare user id.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var doc channelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*c = Channel{
		ID:          firstNonEmpty(doc.MongoID, doc.ID),
		Name:        doc.Name,
		Description: doc.Description,
		IsPrivate:   doc.IsPrivate,
		Members:     doc.Members,
	}

	for i := range c.Members {
		if c.Members[i].Email == "" {
			c.Members[i].Email = c.Members[i].DisplayEmail()
		}
	}

	creator, err := decodeUserRef(doc.CreatedBy)
	if err != nil {
		return err
	}
	c.CreatedBy = creator
	return nil
}

// HasMember reports whether the user is in the channel's member set.
// The creator is always implicitly a member.
func (c *Channel) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	if c.IsCreator(userID) {
		return true
	}
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// IsCreator reports whether the user created the channel
func (c *Channel) IsCreator(userID string) bool {
	return userID != "" && c.CreatedBy != nil && c.CreatedBy.ID == userID
}

// MemberCount returns the number of listed members
func (c *Channel) MemberCount() int {
	return len(c.Members)
}

// Visibility returns "Private" or "Public"
func (c *Channel) Visibility() string {
	if c.IsPrivate {
		return "Private"
	}
	return "Public"
}

// decodeUserRef decodes a user reference that is either an object or an id string.
func decodeUserRef(raw json.RawMessage) (*User, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, err
		}
		return &User{ID: id}, nil
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
