// Package vmservice talks to the Dart VM service exposed by instrumented
// test processes.
package vmservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const getVMRequestID = "1"

// IsolateRef identifies an isolate in a getVM response.
type IsolateRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VM is the subset of the getVM result dcov uses.
type VM struct {
	Name     string       `json:"name"`
	Isolates []IsolateRef `json:"isolates"`
}

type request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result *VM             `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client opens one short-lived connection per query.
type Client struct {
	Host    string
	Timeout time.Duration
}

// NewClient creates a client for VM services on the loopback interface.
func NewClient() *Client {
	return &Client{Host: "127.0.0.1", Timeout: 5 * time.Second}
}

// URL returns the WebSocket endpoint of the VM service on port.
func (c *Client) URL(port int) string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/ws"}
	return u.String()
}

// GetVM issues a getVM query against the VM service on port.
func (c *Client) GetVM(ctx context.Context, port int) (VM, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, c.URL(port), nil)
	if err != nil {
		return VM{}, fmt.Errorf("dial vm service on %d: %w", port, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	req := request{JSONRPC: "2.0", ID: getVMRequestID, Method: "getVM", Params: map[string]any{}}
	if err := conn.WriteJSON(req); err != nil {
		return VM{}, fmt.Errorf("send getVM: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return VM{}, fmt.Errorf("read getVM: %w", err)
		}
		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			return VM{}, fmt.Errorf("decode getVM: %w", err)
		}
		// Stream notifications carry no id.
		if !matchesID(resp.ID) {
			continue
		}
		if resp.Error != nil {
			return VM{}, fmt.Errorf("getVM: %s (%d)", resp.Error.Message, resp.Error.Code)
		}
		if resp.Result == nil {
			return VM{}, errors.New("getVM: empty result")
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return *resp.Result, nil
	}
}

// HasIsolates reports whether the VM on port runs at least one isolate.
func (c *Client) HasIsolates(ctx context.Context, port int) (bool, error) {
	vm, err := c.GetVM(ctx, port)
	if err != nil {
		return false, err
	}
	return len(vm.Isolates) > 0, nil
}

// matchesID accepts the request id as a JSON string or number.
func matchesID(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == getVMRequestID
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(n) == getVMRequestID
	}
	return false
}
