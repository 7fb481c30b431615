// Package backend defines the query-execution capability shared by the
// direct PostgreSQL connection and the MCP subprocess path. The orchestrator
// only sees this interface and stays agnostic to which variant is wired in.
package backend

import "context"

// AuthMode selects how Connect authenticates.
type AuthMode int

const (
	// AuthPassword uses the configured username/password pair.
	AuthPassword AuthMode = iota
	// AuthAmbient uses ambient Kerberos/GSSAPI credentials.
	AuthAmbient
)

func (m AuthMode) String() string {
	if m == AuthAmbient {
		return "ambient"
	}
	return "password"
}

// Row is one decoded result row keyed by column name.
type Row map[string]any

// Result carries decoded rows along with the declared column order. Go maps
// are unordered, so the column sequence travels separately.
type Result struct {
	Columns []string
	Rows    []Row
}

// Column describes one table column in a schema snapshot.
type Column struct {
	DataType   string `json:"data_type"`
	IsNullable string `json:"is_nullable"`
	Default    string `json:"default"`
}

// Table describes one table or view.
type Table struct {
	Type    string            `json:"type"`
	Columns map[string]Column `json:"columns"`
}

// Schema is the nested snapshot: schema name -> table name -> table info.
// Fetched fresh per turn; no caching guarantee.
type Schema map[string]map[string]Table

// Backend executes statements against the relational store.
type Backend interface {
	Connect(ctx context.Context, mode AuthMode) error
	Execute(ctx context.Context, query string, args ...any) (*Result, error)
	Schema(ctx context.Context) (Schema, error)
	Disconnect(ctx context.Context) error
}
