// Package chat connects to a chat gateway channel over websocket and
// classifies inbound messages into votes, super votes, and moderator
// commands.
package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the connection lifecycle of a Client.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

const (
	defaultBackoff = 3 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8 * 1024
)

// Handler receives classified events in gateway delivery order.
type Handler func(Event)

// gateway wire frames
type joinFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type chatFrame struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
}

// Client maintains one connection per (channel, tournament-active) pair.
// The owner tears it down and constructs a new one whenever either part
// of that identity changes. A supervising goroutine drives the
// Disconnected -> Connecting -> Connected -> Reconnecting state machine
// with a fixed backoff between attempts.
type Client struct {
	url      string
	channel  string
	operator string
	handler  Handler
	backoff  time.Duration
	dialer   *websocket.Dialer

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.RWMutex
	state ConnState
}

func NewClient(url, channel, operator string, handler Handler) *Client {
	return &Client{
		url:      url,
		channel:  channel,
		operator: operator,
		handler:  handler,
		backoff:  defaultBackoff,
		dialer:   websocket.DefaultDialer,
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
}

// Start launches the supervising goroutine. The client stops when ctx is
// cancelled or Close is called.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Close tears the connection down and waits for the supervisor to exit.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			c.setState(StateConnecting)
			first = false
		} else {
			c.setState(StateReconnecting)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			}
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Printf("ERROR [chat.Client] dial %s failed: %v", c.url, err)
			continue
		}

		if err := c.session(ctx, conn); err != nil && ctx.Err() == nil {
			log.Printf("ERROR [chat.Client] connection to channel %s lost: %v", c.channel, err)
		}
	}
}

// session joins the channel and reads frames until the connection fails
// or the context is cancelled.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(joinFrame{Type: "join", Channel: c.channel}); err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)
	c.setState(StateConnected)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame chatFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("ERROR [chat.Client] failed to unmarshal frame: %v", err)
			continue
		}
		if frame.Channel != "" && frame.Channel != c.channel {
			continue
		}

		if ev, ok := Parse(frame.User, frame.Text, c.operator); ok {
			c.handler(ev)
		}
	}
}
