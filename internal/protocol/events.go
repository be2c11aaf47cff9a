package protocol

import (
	"encoding/json"
)

// Event names a frame on the realtime stream
type Event string

const (
	// Client -> Server events
	EventChannelJoin   Event = "channel:join"  // data: channel id string
	EventChannelLeave  Event = "channel:leave" // data: channel id string
	EventMessageSend   Event = "message:send"
	EventMessageEdit   Event = "message:edit"
	EventMessageDelete Event = "message:delete"

	// Server -> Client events
	EventMessageNew     Event = "message:new"
	EventMessageUpdated Event = "message:updated"
	EventMessageDeleted Event = "message:deleted"
)

// Frame is the envelope for every event on the stream
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame creates a frame, encoding data as its payload
func NewFrame(event Event, data interface{}) (*Frame, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Frame{
		Event: event,
		Data:  rawData,
	}, nil
}

// Decode unmarshals the frame payload into v
func (f *Frame) Decode(v interface{}) error {
	return json.Unmarshal(f.Data, v)
}

// --- Client -> Server Payloads ---

// SendPayload is sent when a user sends a message
type SendPayload struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
	Nonce     string `json:"nonce,omitempty"` // Client-generated correlation id
}

// EditPayload is sent when a user edits a message
type EditPayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// DeletePayload is sent when a user deletes a message
type DeletePayload struct {
	MessageID string `json:"messageId"`
}

// --- Server -> Client Payloads ---

// message:new and message:updated carry a models.Message document.

// DeletedPayload is dispatched when a message is removed
type DeletedPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}
