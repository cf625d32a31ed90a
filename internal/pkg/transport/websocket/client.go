// Package websocket provides a JSON-RPC 2.0 client over a WebSocket
// connection, supporting both request/response calls and server-push
// subscriptions. It is suitable for blockchain nodes that expose
// subscription methods over WebSocket.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrProviderReturnedError indicates that the remote JSON-RPC server returned an error response.
	ErrProviderReturnedError = errors.New("provider error")

	// ErrConnectionClosed indicates the underlying WebSocket connection was
	// closed while a call or subscription was outstanding.
	ErrConnectionClosed = errors.New("websocket connection closed")
)

// notificationChannelBufferSize bounds each subscription's delivery channel.
// The read loop drops notifications for subscriptions whose consumer lags
// this far behind rather than stalling every other subscriber on the
// connection.
const notificationChannelBufferSize = 64

// message is the superset of a JSON-RPC 2.0 response and a subscription
// notification received over the socket.
type message struct {
	JsonRPC string `json:"jsonrpc"` // JSON-RPC protocol version (usually "2.0")
	ID      string `json:"id,omitempty"`
	Method  string `json:"method,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`    // Error code defined by the JSON-RPC spec or custom server logic
		Message string `json:"message"` // Human-readable error message
	} `json:"error"`
	Result json.RawMessage `json:"result"` // Raw result payload returned by the server
	Params *struct {
		SubscriptionID json.Number     `json:"subscription_id"`
		Result         json.RawMessage `json:"result"`
	} `json:"params"`
}

// err returns an error if the message includes a JSON-RPC error object.
func (m message) err() error {
	if m.Error == nil {
		return nil
	}

	return fmt.Errorf("%w: [%d] - %s", ErrProviderReturnedError, m.Error.Code, m.Error.Message)
}

// Notification is a single server-push message delivered to a subscription.
type Notification struct {
	Method string          // notification method reported by the server
	Result json.RawMessage // raw notification payload
}

// Subscription represents an active server-push subscription. Notifications
// are delivered on Notifications until the subscription is unsubscribed or
// the connection closes, at which point the channel is closed.
type Subscription struct {
	id     json.Number
	client *Client
	ch     chan Notification
}

// Notifications returns the subscription's delivery channel.
func (s *Subscription) Notifications() <-chan Notification {
	return s.ch
}

// Unsubscribe tells the server to stop the subscription and releases its
// delivery channel. It is safe to call when the connection is already gone;
// the registration is dropped regardless.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.client.dropSubscription(string(s.id))

	_, err := s.client.Call(ctx, s.client.unsubscribeMethod, s.id)
	return err
}

// Client is a JSON-RPC 2.0 client bound to a single WebSocket connection.
// It is safe for concurrent use; calls are matched to responses by request
// id and notifications are routed to subscriptions by subscription id.
type Client struct {
	conn              *websocket.Conn
	unsubscribeMethod string

	writeMu sync.Mutex // serializes writes to the socket

	mu       sync.Mutex // guards pending, subs and closed
	pending  map[string]chan message
	subs     map[string]*Subscription
	isClosed bool
}

// config holds settings applied by Options.
type config struct {
	unsubscribeMethod string
}

// Option defines a functional option for configuring the client.
type Option func(*config)

// WithUnsubscribeMethod sets the JSON-RPC method used by
// Subscription.Unsubscribe. Default: "starknet_unsubscribe".
func WithUnsubscribeMethod(method string) Option {
	return func(c *config) {
		c.unsubscribeMethod = method
	}
}

// Connect dials the WebSocket endpoint and starts the read loop. The
// returned client must be released with Close.
func Connect(ctx context.Context, url string, opts ...Option) (*Client, error) {
	cfg := config{
		unsubscribeMethod: "starknet_unsubscribe",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	client := &Client{
		conn:              conn,
		unsubscribeMethod: cfg.unsubscribeMethod,
		pending:           make(map[string]chan message),
		subs:              make(map[string]*Subscription),
	}

	go client.readLoop()
	return client, nil
}

// Close tears down the connection. Outstanding calls fail with
// ErrConnectionClosed and every subscription channel is closed.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.failAll()
	return err
}

// Call sends a JSON-RPC request and waits for the matching response or ctx
// expiry. The `id` field in the request is generated as a UUID string.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := uuid.NewString()

	responseCh := make(chan message, 1)
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = responseCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(request)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-responseCh:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return res.Result, res.err()
	}
}

// Subscribe issues a subscription call and registers the returned
// subscription id for notification routing.
func (c *Client) Subscribe(ctx context.Context, method string, params ...any) (*Subscription, error) {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	var id json.Number
	if err := json.Unmarshal(result, &id); err != nil {
		return nil, fmt.Errorf("decode subscription id: %w", err)
	}

	sub := &Subscription{
		id:     id,
		client: c,
		ch:     make(chan Notification, notificationChannelBufferSize),
	}

	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.subs[string(id)] = sub
	c.mu.Unlock()

	return sub, nil
}

// readLoop reads messages off the socket until it fails, routing responses
// to pending calls and notifications to their subscriptions.
func (c *Client) readLoop() {
	defer c.failAll()

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch {
		case msg.ID != "":
			c.mu.Lock()
			responseCh, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				responseCh <- msg
			}

		case msg.Params != nil:
			c.mu.Lock()
			sub, ok := c.subs[string(msg.Params.SubscriptionID)]
			c.mu.Unlock()
			if !ok {
				continue
			}

			notification := Notification{
				Method: msg.Method,
				Result: msg.Params.Result,
			}
			select {
			case sub.ch <- notification:
			default: // consumer lagging, drop rather than stall the socket
			}
		}
	}
}

// dropSubscription removes the registration and closes its channel.
func (c *Client) dropSubscription(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(sub.ch)
	}
}

// failAll marks the client closed, fails every pending call, and closes
// every subscription channel.
func (c *Client) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return
	}
	c.isClosed = true

	for id, responseCh := range c.pending {
		close(responseCh)
		delete(c.pending, id)
	}

	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
}
