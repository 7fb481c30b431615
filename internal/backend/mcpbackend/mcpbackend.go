// Package mcpbackend adapts a Model Context Protocol server process to the
// query backend interface. The server owns the database credentials; queries
// travel over JSON-RPC as tool calls.
package mcpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/mcp"
)

const queryTool = "query"

// rpcClient is the slice of the protocol client the backend needs.
type rpcClient interface {
	Start(ctx context.Context) error
	Stop() error
	CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (json.RawMessage, error)
}

type Backend struct {
	client rpcClient
	logger *slog.Logger
}

func New(client *mcp.Client, logger *slog.Logger) *Backend {
	return &Backend{client: client, logger: logger}
}

// Connect starts the server process. The authentication mode is ignored; the
// server is configured with its own connection string.
func (b *Backend) Connect(ctx context.Context, _ backend.AuthMode) error {
	if err := b.client.Start(ctx); err != nil {
		return &backend.ConnectError{Addr: "mcp", Message: err.Error()}
	}
	return nil
}

func (b *Backend) Disconnect(_ context.Context) error {
	return b.client.Stop()
}

// toolResult is the envelope a tool call comes back in. The payload rides in
// the first text content block.
type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// Execute runs a query through the server's query tool. Parameter binding is
// not part of the tool contract, so placeholder arguments are rejected.
func (b *Backend) Execute(ctx context.Context, query string, args ...any) (*backend.Result, error) {
	if len(args) > 0 {
		return nil, &backend.QueryError{Query: query, Message: "parameterized queries are not supported over mcp"}
	}
	raw, err := b.client.CallTool(ctx, queryTool, map[string]any{"sql": query})
	if err != nil {
		return nil, &backend.QueryError{Query: query, Message: err.Error()}
	}

	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &backend.QueryError{Query: query, Message: fmt.Sprintf("malformed tool result: %v", err)}
	}
	if len(result.Content) == 0 {
		return &backend.Result{}, nil
	}
	text := result.Content[0].Text
	if result.IsError {
		return nil, &backend.QueryError{Query: query, Message: text}
	}
	return decodeRows(query, text)
}

// decodeRows turns the tool's JSON row array into a result, preserving the
// column order the server emitted.
func decodeRows(query, text string) (*backend.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "[]" {
		return &backend.Result{}, nil
	}
	var rows []backend.Row
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		return nil, &backend.QueryError{Query: query, Message: fmt.Sprintf("malformed row payload: %v", err)}
	}
	columns, err := keyOrder(text)
	if err != nil {
		return nil, &backend.QueryError{Query: query, Message: err.Error()}
	}
	return &backend.Result{Columns: columns, Rows: rows}, nil
}

// keyOrder reads the keys of the first object in a JSON array in the order
// they appear on the wire. Unmarshalling into a map loses that order.
func keyOrder(text string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if _, err := dec.Token(); err != nil { // [
		return nil, fmt.Errorf("reading row payload: %w", err)
	}
	tok, err := dec.Token() // { of the first object, or ]
	if err != nil {
		return nil, fmt.Errorf("reading first row: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}

	var columns []string
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading first row: %w", err)
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				if depth == 0 {
					return columns, nil
				}
				depth--
			}
			continue
		}
		if depth == 0 {
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v in first row", tok)
			}
			columns = append(columns, key)
			// Skip the value, whatever shape it takes.
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("reading first row: %w", err)
			}
		}
	}
}

// columnDef mirrors the schema resource payload.
type columnDef struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// resourceContents is the envelope resources/read comes back in.
type resourceContents struct {
	Contents []struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
	} `json:"contents"`
}

// Schema assembles the database layout from the server's schema resources.
// Each table is exposed as a resource whose locator ends in /schema.
func (b *Backend) Schema(ctx context.Context) (backend.Schema, error) {
	resources, err := b.client.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing schema resources: %w", err)
	}

	tables := map[string]backend.Table{}
	for _, res := range resources {
		if !strings.HasSuffix(res.URI, "/schema") {
			continue
		}
		name := res.Name
		if name == "" {
			name = tableFromURI(res.URI)
		}
		columns, err := b.readTableSchema(ctx, res.URI)
		if err != nil {
			b.logger.Warn("skipping unreadable schema resource", "uri", res.URI, "error", err)
			continue
		}
		tables[name] = backend.Table{Type: "BASE TABLE", Columns: columns}
	}
	if len(tables) == 0 {
		return backend.Schema{}, nil
	}
	return backend.Schema{"public": tables}, nil
}

func (b *Backend) readTableSchema(ctx context.Context, uri string) (map[string]backend.Column, error) {
	raw, err := b.client.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	var contents resourceContents
	if err := json.Unmarshal(raw, &contents); err != nil {
		return nil, fmt.Errorf("malformed resource contents: %w", err)
	}
	if len(contents.Contents) == 0 {
		return nil, fmt.Errorf("resource %s has no contents", uri)
	}
	var defs []columnDef
	if err := json.Unmarshal([]byte(contents.Contents[0].Text), &defs); err != nil {
		return nil, fmt.Errorf("malformed column list: %w", err)
	}
	columns := make(map[string]backend.Column, len(defs))
	for _, def := range defs {
		columns[def.ColumnName] = backend.Column{DataType: def.DataType, IsNullable: "YES"}
	}
	return columns, nil
}

// tableFromURI pulls the table name out of a locator shaped like
// postgres://host/db/<table>/schema.
func tableFromURI(uri string) string {
	trimmed := strings.TrimSuffix(uri, "/schema")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
