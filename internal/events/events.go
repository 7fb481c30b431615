// Package events publishes turn lifecycle notifications over NATS so other
// services can observe chat activity without calling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectTurnCompleted carries one message per resolved conversation turn.
const SubjectTurnCompleted = "sqlchat.turn.completed"

// TurnCompleted describes a resolved turn. SQLQuery is empty when the turn
// produced no query.
type TurnCompleted struct {
	SessionID  string    `json:"session_id"`
	Outcome    string    `json:"outcome"`
	SQLQuery   string    `json:"sql_query,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is the narrow capability the API layer depends on. A nil
// *Client satisfies it as a no-op, so event publishing stays optional.
type Publisher interface {
	PublishTurnCompleted(event TurnCompleted)
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc, logger: logger}, nil
}

// PublishTurnCompleted emits the event on a best-effort basis. Publish
// failures are logged, never returned; a turn must not fail because the
// event bus is down.
func (c *Client) PublishTurnCompleted(event TurnCompleted) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal turn event", "error", err)
		return
	}
	if err := c.conn.Publish(SubjectTurnCompleted, payload); err != nil {
		c.logger.Warn("publish turn event", "error", err)
	}
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.conn.Close()
}
