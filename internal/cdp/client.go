// Package cdp attaches to a DevTools-protocol debug endpoint over
// WebSocket. The launch orchestration treats this as an opaque capability:
// it hands over a normalized endpoint and receives a live session; protocol
// frames are never interpreted elsewhere.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/webviewtools/wvd/internal/launcher"
)

// Conn is an attached debug session over the DevTools WebSocket.
type Conn struct {
	ws *websocket.Conn

	// mu serializes writes; gorilla allows one concurrent writer.
	mu     sync.Mutex
	nextID int
}

// command is a DevTools protocol request frame.
type command struct {
	ID     int         `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Send issues a protocol command without waiting for its response.
func (c *Conn) Send(method string, params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	payload, err := json.Marshal(command{ID: c.nextID, Method: method, Params: params})
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Close detaches from the target.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// Client discovers the debuggable page behind an endpoint and dials its
// DevTools WebSocket.
type Client struct {
	HTTP launcher.Getter
}

// NewClient creates a Client using the given HTTP capability for target
// discovery.
func NewClient(http launcher.Getter) *Client {
	return &Client{HTTP: http}
}

// Attach lists the debug targets on the endpoint's port, picks the one
// matching the endpoint's URL (or the first debuggable one when no URL is
// given), and dials its WebSocket.
func (c *Client) Attach(ctx context.Context, endpoint *launcher.Endpoint) (*Conn, error) {
	body, err := c.HTTP.Get(ctx, fmt.Sprintf("http://localhost:%d/json", endpoint.Port))
	if err != nil {
		return nil, fmt.Errorf("debug target discovery failed: %w", err)
	}

	wsURL := pickTarget(body, endpoint.URL)
	if wsURL == "" {
		return nil, fmt.Errorf("no debuggable target found on port %d", endpoint.Port)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	log.Debug("debugger attached", "target", wsURL)

	conn := &Conn{ws: ws}
	if err := conn.Send("Runtime.enable", nil); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// pickTarget selects a target's webSocketDebuggerUrl from a /json listing.
func pickTarget(body, wantURL string) string {
	var fallback string
	for _, entry := range gjson.Parse(body).Array() {
		wsURL := entry.Get("webSocketDebuggerUrl").String()
		if wsURL == "" {
			continue
		}
		if wantURL != "" && strings.Contains(entry.Get("url").String(), wantURL) {
			return wsURL
		}
		if fallback == "" {
			fallback = wsURL
		}
	}
	if wantURL != "" && fallback != "" {
		// The exact page URL may have redirected; fall back to the first
		// debuggable target rather than failing the attach.
		return fallback
	}
	return fallback
}
