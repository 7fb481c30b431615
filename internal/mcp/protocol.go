package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Wire format: one JSON object per line, newline-terminated.

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// notification is a request without an id; no response is expected.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ProtocolError is raised for a malformed or error-bearing RPC exchange.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// ErrServerClosed reports that the child process closed its output before
// delivering a response.
var ErrServerClosed = errors.New("mcp server closed unexpectedly")

// ErrNotRunning reports a request against a client that is not Running.
var ErrNotRunning = errors.New("mcp server is not running")

// ErrReadTimeout reports that no response line arrived within the request
// timeout.
var ErrReadTimeout = errors.New("mcp response read timed out")

// Resource describes a server-exposed resource such as a table schema.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Tool describes a server-exposed tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListResources lists the resources the server exposes.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	raw, err := c.call(ctx, "resources/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Resources []Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("malformed resources/list result: %v", err)}
	}
	return result.Resources, nil
}

// ListTools lists the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("malformed tools/list result: %v", err)}
	}
	return result.Tools, nil
}

// CallTool invokes a named tool with arguments and returns its raw result.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	return c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
}

// ReadResource reads a resource by its locator.
func (c *Client) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	return c.call(ctx, "resources/read", map[string]any{"uri": uri})
}
