package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port            int
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	Backend         string // "direct" or "mcp"
	DBJDBCURL       string
	DBUser          string
	DBPassword      string
	MCPServerPath   string
	NatsURL         string
	NatsToken       string
}

func Load() Config {
	return Config{
		Port:            envInt("SQLCHAT_PORT", 8900),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("SQLCHAT_MODEL", "claude-3-5-haiku-latest"),
		Backend:         envStr("SQLCHAT_BACKEND", "direct"),
		DBJDBCURL:       envStr("DB_JDBC_URL", ""),
		DBUser:          envStr("DB_USER", ""),
		DBPassword:      envStr("DB_PASSWORD", ""),
		MCPServerPath:   envStr("MCP_PG_SERVER_PATH", "npx"),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
	}
}

// ParseJDBC splits a jdbc:postgresql://host:port/database URL into its
// components, defaulting to localhost:5432 when parts are missing.
func ParseJDBC(jdbcURL string) (host string, port int, database string, err error) {
	raw := strings.TrimPrefix(jdbcURL, "jdbc:")
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, "", fmt.Errorf("parse jdbc url: %w", err)
	}

	host = u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port = 5432
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, "", fmt.Errorf("parse jdbc port %q: %w", p, err)
		}
	}
	database = strings.TrimPrefix(u.Path, "/")
	return host, port, database, nil
}

// ConnectionString assembles a postgres:// URL for subprocess servers that
// take a single connection-string argument. The password is URL-escaped.
func (c Config) ConnectionString() (string, error) {
	host, port, database, err := ParseJDBC(c.DBJDBCURL)
	if err != nil {
		return "", err
	}
	cred := c.DBUser
	if c.DBPassword != "" {
		cred += ":" + url.QueryEscape(c.DBPassword)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cred, host, port, database), nil
}

// MCPServerArgs builds the command and arguments for the MCP PostgreSQL
// server child process. The default "npx" path fetches the reference server.
func (c Config) MCPServerArgs() (command string, args []string, err error) {
	connString, err := c.ConnectionString()
	if err != nil {
		return "", nil, err
	}
	if c.MCPServerPath == "npx" {
		return "npx", []string{"-y", "@modelcontextprotocol/server-postgres", connString}, nil
	}
	return c.MCPServerPath, []string{connString}, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
