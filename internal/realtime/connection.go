package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/teamchat/internal/apperr"
	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
	flushWait      = 2 * time.Second
)

// Conn is one live event-stream connection
type Conn interface {
	// Emit queues an event. It never blocks on the network.
	Emit(event protocol.Event, data interface{}) error
	// Done is closed once the connection has stopped reading.
	Done() <-chan struct{}
	// Close flushes queued events and closes the connection. It returns once
	// the queue is written or a bounded wait runs out.
	Close()
}

// Dialer opens connections whose inbound events go to subs
type Dialer interface {
	Dial(ctx context.Context, token string, subs *Subscriptions) (Conn, error)
}

// WebSocketDialer dials the server's websocket endpoint
type WebSocketDialer struct {
	URL              string
	HandshakeTimeout time.Duration
}

// NewWebSocketDialer creates a dialer for the endpoint at rawURL
func NewWebSocketDialer(rawURL string) *WebSocketDialer {
	return &WebSocketDialer{URL: rawURL, HandshakeTimeout: 10 * time.Second}
}

// Dial connects and presents token both as a bearer header and as the token
// query parameter.
func (d *WebSocketDialer) Dial(ctx context.Context, token string, subs *Subscriptions) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	// Configure dialer with timeout
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, apperr.FromStatus("realtime.dial", resp.StatusCode, "")
		}
		return nil, apperr.Wrap(apperr.KindTransport, "realtime.dial", err)
	}

	c := newConnection(ws, subs)
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Connection is a websocket-backed Conn
type Connection struct {
	id   string
	conn *websocket.Conn
	subs *Subscriptions
	log  zerolog.Logger

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, subs *Subscriptions) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:         id,
		conn:       ws,
		subs:       subs,
		log:        logx.Component("realtime").With().Str("conn_id", id).Logger(),
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Emit queues an event frame
func (c *Connection) Emit(event protocol.Event, data interface{}) error {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperr.New(apperr.KindTransport, "realtime.emit", "Not connected to the server.")
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return apperr.New(apperr.KindTransport, "realtime.emit", "Send buffer full, try again.")
	}
}

// Done is closed when the read side ends
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stops accepting events and waits, at most flushWait, for queued
// frames and the close handshake to be written.
func (c *Connection) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()

	select {
	case <-c.writerDone:
	case <-time.After(flushWait):
		c.log.Warn().Dur("wait", flushWait).Msg("gave up waiting for queued frames")
	}
}

func (c *Connection) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads frames from the WebSocket and dispatches them in order
func (c *Connection) readPump() {
	defer func() {
		c.markDone()
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
				c.log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("failed to parse frame")
			continue
		}

		if !c.subs.Dispatch(&frame) {
			c.log.Debug().Str("event", string(frame.Event)).Msg("no handler for event")
		}
	}
}

// writePump writes queued frames and keeps the connection alive
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Warn().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
