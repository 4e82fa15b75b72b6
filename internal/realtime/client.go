package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/apperr"
	"github.com/classpulse/backend/internal/polls"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Client is a single WebSocket connection. It implements Session; intents
// read off the socket are dispatched to the coordinator, and rejected
// intents are answered with a targeted error event.
type Client struct {
	id     string
	coord  *Coordinator
	conn   *websocket.Conn
	send   chan Envelope
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// ID returns the ephemeral connection id.
func (c *Client) ID() string { return c.id }

// Enqueue queues an envelope for the write pump; returns false when the
// buffer is full or the session is closing.
func (c *Client) Enqueue(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Terminate stops the write pump after draining queued envelopes, which
// closes the connection. Safe to call more than once.
func (c *Client) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(coord *Coordinator, logger *zap.Logger) gin.HandlerFunc {
	return func(g *gin.Context) {
		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:     uuid.New().String(),
			coord:  coord,
			conn:   conn,
			send:   make(chan Envelope, sendBuffer),
			logger: logger,
		}
		coord.Connect(g.Request.Context(), client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.coord.Disconnect(context.Background(), c.id)
		c.Terminate()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(env)
	}
}

// dispatch routes one inbound intent to the coordinator and answers the
// caller with an ack or a targeted error. Fan-outs happen inside the
// coordinator; errors never reach other connections.
func (c *Client) dispatch(env Envelope) {
	ctx := context.Background()
	var err error

	switch env.Event {
	case EventJoin:
		var payload JoinPayload
		if err = decode(env.Data, &payload); err == nil {
			err = c.coord.Join(ctx, c.id, payload)
		}
	case EventCreatePoll:
		var input polls.CreateInput
		if err = decode(env.Data, &input); err == nil {
			err = c.coord.CreatePoll(ctx, input)
		}
	case EventEndPoll:
		err = c.coord.EndPoll(ctx)
	case EventVote:
		var input polls.VoteInput
		if err = decode(env.Data, &input); err == nil {
			err = c.coord.Vote(ctx, input)
		}
	case EventKick:
		var payload KickPayload
		if err = decode(env.Data, &payload); err == nil {
			err = c.coord.Kick(ctx, payload)
		}
	case EventSendChat:
		var payload ChatPayload
		if err = decode(env.Data, &payload); err == nil {
			err = c.coord.SendChat(ctx, c.id, payload)
		}
	default:
		// unknown events are ignored
		return
	}

	if err != nil {
		appErr := apperr.FromError(err)
		c.Enqueue(mustEnvelope(EventError, ErrorNotice{
			Op:      env.Event,
			Code:    appErr.Code,
			Message: appErr.Error(),
		}))
		return
	}
	c.Enqueue(mustEnvelope(EventAck, AckNotice{Op: env.Event}))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperr.Validation("payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("malformed payload")
	}
	return nil
}

func mustEnvelope(event string, payload interface{}) Envelope {
	env, _ := envelope(event, payload)
	return env
}
