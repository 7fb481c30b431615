// Package direct implements the query backend over a native PostgreSQL
// connection pool.
package direct

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/config"
)

const connectTimeout = 10 * time.Second

type Backend struct {
	host     string
	port     int
	database string
	user     string
	password string
	logger   *slog.Logger

	pool *pgxpool.Pool
}

// New parses the JDBC-style URL and prepares a disconnected backend.
func New(jdbcURL, user, password string, logger *slog.Logger) (*Backend, error) {
	host, port, database, err := config.ParseJDBC(jdbcURL)
	if err != nil {
		return nil, err
	}
	return &Backend{
		host:     host,
		port:     port,
		database: database,
		user:     user,
		password: password,
		logger:   logger,
	}, nil
}

// Connect opens a pool using the requested authentication mode and verifies
// it with a ping. A failed attempt never leaves a half-open pool behind.
func (b *Backend) Connect(ctx context.Context, mode backend.AuthMode) error {
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}

	dsn, err := b.dsn(mode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return b.classify(mode, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return b.classify(mode, err)
	}

	b.pool = pool
	b.logger.Info("database connected", "host", b.host, "database", b.database, "auth", mode.String())
	return nil
}

func (b *Backend) dsn(mode backend.AuthMode) (string, error) {
	params := url.Values{}
	params.Set("connect_timeout", "10")

	switch mode {
	case backend.AuthPassword:
		if b.password == "" {
			return "", &backend.AuthError{Mode: mode, Message: "password authentication requested but no password provided"}
		}
	case backend.AuthAmbient:
		params.Set("krbsrvname", "postgres")
		params.Set("gsslib", "gssapi")
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", b.host, b.port),
		Path:     "/" + b.database,
		RawQuery: params.Encode(),
	}
	if mode == backend.AuthPassword {
		u.User = url.UserPassword(b.user, b.password)
	} else {
		u.User = url.User(b.user)
	}
	return u.String(), nil
}

func (b *Backend) classify(mode backend.AuthMode, err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "password authentication failed") ||
		strings.Contains(lower, "gssapi") ||
		strings.Contains(lower, "authentication") {
		return &backend.AuthError{Mode: mode, Message: msg}
	}
	return &backend.ConnectError{
		Addr:    fmt.Sprintf("%s:%d/%s", b.host, b.port, b.database),
		Message: msg,
	}
}

// TestConnection tries password authentication first, then ambient
// credentials, and reports the outcome as a human-readable message.
func (b *Backend) TestConnection(ctx context.Context) (bool, string) {
	if err := b.Connect(ctx, backend.AuthPassword); err == nil {
		return true, "Connected successfully using password authentication."
	} else {
		b.logger.Warn("password authentication failed", "error", err)
	}

	if err := b.Connect(ctx, backend.AuthAmbient); err == nil {
		return true, "Connected successfully using ambient (Kerberos) authentication."
	} else {
		b.logger.Warn("ambient authentication failed", "error", err)
	}

	return false, "Failed to connect using both password and ambient authentication."
}

// IsRead reports whether a statement returns rows: it begins with SELECT or
// carries a RETURNING clause.
func IsRead(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(upper, "SELECT") || strings.Contains(upper, "RETURNING")
}

// Execute runs one statement. Read statements return decoded rows in
// declared column order; writes return one synthetic affected_rows row.
// Execution failures come back as *backend.QueryError.
func (b *Backend) Execute(ctx context.Context, query string, args ...any) (*backend.Result, error) {
	if b.pool == nil {
		return nil, fmt.Errorf("not connected to database")
	}

	if !IsRead(query) {
		tag, err := b.pool.Exec(ctx, query, args...)
		if err != nil {
			return nil, &backend.QueryError{Query: query, Message: err.Error()}
		}
		return &backend.Result{
			Columns: []string{"affected_rows"},
			Rows:    []backend.Row{{"affected_rows": tag.RowsAffected()}},
		}, nil
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &backend.QueryError{Query: query, Message: err.Error()}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	res := &backend.Result{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &backend.QueryError{Query: query, Message: err.Error()}
		}
		row := make(backend.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &backend.QueryError{Query: query, Message: err.Error()}
	}
	return res, nil
}

// Schema walks information_schema into a fresh snapshot, skipping the
// system schemas.
func (b *Backend) Schema(ctx context.Context) (backend.Schema, error) {
	schemas, err := b.Execute(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}

	snapshot := make(backend.Schema)
	for _, schemaRow := range schemas.Rows {
		schemaName, _ := schemaRow["schema_name"].(string)
		snapshot[schemaName] = make(map[string]backend.Table)

		tables, err := b.Execute(ctx, `
			SELECT table_name, table_type
			FROM information_schema.tables
			WHERE table_schema = $1
			ORDER BY table_name`, schemaName)
		if err != nil {
			return nil, fmt.Errorf("list tables in %s: %w", schemaName, err)
		}

		for _, tableRow := range tables.Rows {
			tableName, _ := tableRow["table_name"].(string)
			tableType, _ := tableRow["table_type"].(string)

			columns, err := b.Execute(ctx, `
				SELECT column_name, data_type, is_nullable, column_default
				FROM information_schema.columns
				WHERE table_schema = $1 AND table_name = $2
				ORDER BY ordinal_position`, schemaName, tableName)
			if err != nil {
				return nil, fmt.Errorf("list columns of %s.%s: %w", schemaName, tableName, err)
			}

			tbl := backend.Table{Type: tableType, Columns: make(map[string]backend.Column)}
			for _, colRow := range columns.Rows {
				name, _ := colRow["column_name"].(string)
				dataType, _ := colRow["data_type"].(string)
				nullable, _ := colRow["is_nullable"].(string)
				def, _ := colRow["column_default"].(string)
				tbl.Columns[name] = backend.Column{DataType: dataType, IsNullable: nullable, Default: def}
			}
			snapshot[schemaName][tableName] = tbl
		}
	}
	return snapshot, nil
}

func (b *Backend) Disconnect(ctx context.Context) error {
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
		b.logger.Info("database disconnected")
	}
	return nil
}
