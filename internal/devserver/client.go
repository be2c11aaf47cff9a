package devserver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

// Client is one authenticated websocket connection
type Client struct {
	conn  *websocket.Conn
	hub   *Hub
	store *Store
	send  chan *protocol.Frame
	user  models.User
	log   zerolog.Logger
}

func newClient(conn *websocket.Conn, hub *Hub, store *Store, user models.User, log zerolog.Logger) *Client {
	return &Client{
		conn:  conn,
		hub:   hub,
		store: store,
		send:  make(chan *protocol.Frame, sendBufferSize),
		user:  user,
		log:   log.With().Str("user_id", user.ID).Logger(),
	}
}

// ReadPump reads frames from the connection until it fails
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("failed to parse frame")
			continue
		}
		c.handleFrame(&frame)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.log.Warn().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame applies one client event
func (c *Client) handleFrame(frame *protocol.Frame) {
	switch frame.Event {
	case protocol.EventChannelJoin:
		var id string
		if frame.Decode(&id) != nil {
			return
		}
		ch, ok := c.store.Channel(id)
		if !ok || (ch.IsPrivate && !ch.HasMember(c.user.ID)) {
			c.log.Debug().Str("channel_id", id).Msg("join refused")
			return
		}
		c.hub.Join(c, id)

	case protocol.EventChannelLeave:
		var id string
		if frame.Decode(&id) == nil {
			c.hub.Leave(c, id)
		}

	case protocol.EventMessageSend:
		var p protocol.SendPayload
		if frame.Decode(&p) != nil || strings.TrimSpace(p.Content) == "" {
			return
		}
		m, err := c.store.AddMessage(c.user, p.ChannelID, p.Content)
		if err != nil {
			c.log.Debug().Err(err).Str("channel_id", p.ChannelID).Msg("send refused")
			return
		}
		c.broadcast(m.ChannelID, protocol.EventMessageNew, m)

	case protocol.EventMessageEdit:
		var p protocol.EditPayload
		if frame.Decode(&p) != nil || strings.TrimSpace(p.Content) == "" {
			return
		}
		m, err := c.store.EditMessage(c.user, p.MessageID, p.Content)
		if err != nil {
			c.log.Debug().Err(err).Str("message_id", p.MessageID).Msg("edit refused")
			return
		}
		c.broadcast(m.ChannelID, protocol.EventMessageUpdated, m)

	case protocol.EventMessageDelete:
		var p protocol.DeletePayload
		if frame.Decode(&p) != nil {
			return
		}
		channelID, err := c.store.DeleteMessage(c.user, p.MessageID)
		if err != nil {
			c.log.Debug().Err(err).Str("message_id", p.MessageID).Msg("delete refused")
			return
		}
		c.broadcast(channelID, protocol.EventMessageDeleted, protocol.DeletedPayload{
			ChannelID: channelID,
			MessageID: p.MessageID,
		})

	default:
		c.log.Debug().Str("event", string(frame.Event)).Msg("unknown event")
	}
}

func (c *Client) broadcast(channelID string, event protocol.Event, data interface{}) {
	if err := c.hub.Broadcast(channelID, event, data); err != nil {
		c.log.Warn().Err(err).Str("event", string(event)).Msg("broadcast failed")
	}
}
