package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Sender is the author reference carried by a message
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message represents a chat message
type Message struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId"`
	Sender    Sender     `json:"sender"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

type messageDoc struct {
	MongoID   string          `json:"_id"`
	ID        string          `json:"id"`
	ChannelID string          `json:"channelId"`
	Channel   json.RawMessage `json:"channel"`
	Sender    *senderDoc      `json:"sender"`
	Content   string          `json:"content"`
	Timestamp *time.Time      `json:"timestamp"`
	EditedAt  *time.Time      `json:"editedAt"`
}

type senderDoc struct {
	MongoID  string `json:"_id"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type refDoc struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
}

// UnmarshalJSON maps a message document. The channel may arrive as channelId,
// as a bare channel id or as an embedded channel object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var doc messageDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	channelID, err := decodeRefID(doc.Channel)
	if err != nil {
		return err
	}

	*m = Message{
		ID:        firstNonEmpty(doc.MongoID, doc.ID),
		ChannelID: firstNonEmpty(channelID, doc.ChannelID),
		Content:   doc.Content,
		EditedAt:  doc.EditedAt,
		Sender:    Sender{Username: "Unknown"},
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if doc.Sender != nil {
		m.Sender.ID = firstNonEmpty(doc.Sender.MongoID, doc.Sender.ID)
		if doc.Sender.Username != "" {
			m.Sender.Username = doc.Sender.Username
		}
	}
	if doc.Timestamp != nil {
		m.Timestamp = *doc.Timestamp
	} else {
		m.Timestamp = time.Now()
	}
	return nil
}

// IsEdited returns true if the message has been edited
func (m *Message) IsEdited() bool {
	return m.EditedAt != nil
}

// IsFrom reports whether the message was sent by the given user
func (m *Message) IsFrom(userID string) bool {
	return userID != "" && m.Sender.ID == userID
}

func decodeRefID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		err := json.Unmarshal(raw, &id)
		return id, err
	}
	var ref refDoc
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", err
	}
	return firstNonEmpty(ref.MongoID, ref.ID), nil
}
