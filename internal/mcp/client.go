package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State is the lifecycle phase of a Client.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	defaultCallTimeout = 30 * time.Second
	stopGracePeriod    = 5 * time.Second
	shutdownTimeout    = 2 * time.Second
)

// procHandle abstracts the running child process for tests.
type procHandle interface {
	Terminate() error
	Kill() error
	Done() <-chan struct{}
}

type execProc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func newExecProc(cmd *exec.Cmd) *execProc {
	p := &execProc{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p
}

func (p *execProc) Terminate() error      { return p.cmd.Process.Signal(syscall.SIGTERM) }
func (p *execProc) Kill() error           { return p.cmd.Process.Kill() }
func (p *execProc) Done() <-chan struct{} { return p.done }

type lineResult struct {
	text string
	err  error
}

// Client speaks line-delimited JSON-RPC 2.0 to a child process over its
// standard streams. Requests are serialized; at most one is outstanding at
// any time. Request ids increase for the lifetime of the Client and are
// never reused, even when a request fails.
type Client struct {
	command string
	args    []string
	logger  *slog.Logger

	callTimeout time.Duration
	stopGrace   time.Duration

	nextID atomic.Int64

	mu         sync.Mutex
	state      State
	stdin      io.WriteCloser
	lines      <-chan lineResult
	readerDone chan struct{}
	proc       procHandle
}

func NewClient(command string, args []string, logger *slog.Logger) *Client {
	return &Client{
		command:     command,
		args:        args,
		logger:      logger,
		callTimeout: defaultCallTimeout,
		stopGrace:   stopGracePeriod,
	}
}

// State reports the client's current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start spawns the server process and performs the initialize handshake.
// Starting an already-running client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStopped {
		c.logger.Warn("mcp server already started", "state", c.state.String())
		return nil
	}
	c.state = StateStarting

	cmd := exec.Command(c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.state = StateStopped
		return fmt.Errorf("open mcp server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.state = StateStopped
		return fmt.Errorf("open mcp server stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.state = StateStopped
		return fmt.Errorf("open mcp server stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		c.state = StateStopped
		return fmt.Errorf("start mcp server %q: %w", c.command, err)
	}

	go c.drainStderr(stderr)
	c.stdin = stdin
	c.readerDone = make(chan struct{})
	c.lines = readLines(stdout, c.readerDone)
	c.proc = newExecProc(cmd)

	if err := c.handshakeLocked(ctx); err != nil {
		c.teardownLocked()
		return fmt.Errorf("initialize mcp server: %w", err)
	}
	c.state = StateRunning
	c.logger.Info("mcp server started", "command", c.command)
	return nil
}

func (c *Client) handshakeLocked(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": "0.1.0",
		"clientInfo": map[string]any{
			"name":    "sqlchat",
			"version": "1.0.0",
		},
		"capabilities": map[string]any{},
	}
	if _, err := c.callLocked(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notifyLocked("initialized", struct{}{})
}

// Stop shuts the server down. It is idempotent, always attempts the graceful
// shutdown exchange first, and escalates to SIGTERM and then SIGKILL when the
// process does not exit within the grace period. The client always ends up
// Stopped.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return nil
	}
	c.state = StateStopping

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := c.callLocked(ctx, "shutdown", struct{}{}); err != nil {
		c.logger.Warn("mcp shutdown request failed", "error", err)
	}
	if err := c.notifyLocked("exit", struct{}{}); err != nil {
		c.logger.Warn("mcp exit notification failed", "error", err)
	}

	c.teardownLocked()
	c.logger.Info("mcp server stopped")
	return nil
}

// teardownLocked closes stdin, signals the process, and resets to Stopped.
func (c *Client) teardownLocked() {
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.proc != nil {
		_ = c.proc.Terminate()
		select {
		case <-c.proc.Done():
		case <-time.After(c.stopGrace):
			c.logger.Warn("mcp server did not exit, killing")
			_ = c.proc.Kill()
			<-c.proc.Done()
		}
	}
	if c.readerDone != nil {
		close(c.readerDone)
		c.readerDone = nil
	}
	c.stdin = nil
	c.lines = nil
	c.proc = nil
	c.state = StateStopped
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return nil, ErrNotRunning
	}
	return c.callLocked(ctx, method, params)
}

func (c *Client) callLocked(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	if err := c.writeLocked(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	// A line abandoned by an earlier timeout carries a lower id; it is
	// discarded here rather than delivered as this call's response.
	timeout := time.After(c.callTimeout)
	for {
		select {
		case res, ok := <-c.lines:
			if !ok || res.err == io.EOF {
				return nil, ErrServerClosed
			}
			if res.err != nil {
				return nil, fmt.Errorf("read %s response: %w", method, res.err)
			}
			var resp response
			if err := json.Unmarshal([]byte(res.text), &resp); err != nil {
				return nil, &ProtocolError{Message: fmt.Sprintf("malformed response line: %v", err)}
			}
			if resp.ID > 0 && resp.ID < id {
				c.logger.Warn("discarding stale response", "id", resp.ID, "want", id)
				continue
			}
			if resp.Error != nil {
				return nil, &ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
			}
			return resp.Result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("%s: %w after %s", method, ErrReadTimeout, c.callTimeout)
		}
	}
}

func (c *Client) notifyLocked(method string, params any) error {
	if err := c.writeLocked(notification{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		return fmt.Errorf("write %s notification: %w", method, err)
	}
	return nil
}

func (c *Client) writeLocked(msg any) error {
	if c.stdin == nil {
		return ErrNotRunning
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.stdin.Write(append(line, '\n'))
	return err
}

func (c *Client) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Error("mcp server stderr", "line", scanner.Text())
	}
}

// readLines feeds stdout to the caller one line at a time. The final element
// carries the read error, io.EOF included, and then the channel closes.
// Closing done releases the goroutine once nobody reads lines anymore.
func readLines(r io.Reader, done <-chan struct{}) <-chan lineResult {
	lines := make(chan lineResult)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			select {
			case lines <- lineResult{text: scanner.Text()}:
			case <-done:
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case lines <- lineResult{err: err}:
		case <-done:
		}
	}()
	return lines
}
