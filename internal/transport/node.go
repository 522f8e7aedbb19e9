package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BridgeEnv overrides the location of the Node bridge script.
const BridgeEnv = "ROSTER_BRIDGE_PATH"

// maxFrame bounds one line from the bridge. Downloaded spreadsheets arrive
// base64-encoded in a single frame.
const maxFrame = 64 << 20

// NodeConfig configures a NodeClient.
type NodeConfig struct {
	Node       string // node executable, default "node"
	BridgePath string // path to cli.js; located automatically when empty
	SessionDir string // LocalAuth data directory
	ClientID   string // LocalAuth client id
	Headless   bool
	Stderr     io.Writer // bridge diagnostics, default os.Stderr
}

// NodeClient drives a whatsapp-web.js session running in a Node.js child
// process. Requests and events travel as JSON lines over stdin/stdout.
type NodeClient struct {
	cfg    NodeConfig
	script string

	cmd *exec.Cmd

	writeMu sync.Mutex
	enc     *json.Encoder
	stdin   io.Closer

	mu      sync.Mutex
	pending map[string]chan frame
	closed  bool

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewNodeClient locates the bridge script. The child process is started by
// Initialize.
func NewNodeClient(cfg NodeConfig) (*NodeClient, error) {
	if cfg.Node == "" {
		cfg.Node = "node"
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	script, err := FindBridge(cfg.BridgePath)
	if err != nil {
		return nil, err
	}
	return &NodeClient{
		cfg:     cfg,
		script:  script,
		pending: make(map[string]chan frame),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}, nil
}

// Script returns the resolved bridge script path.
func (c *NodeClient) Script() string { return c.script }

// Events implements Client.
func (c *NodeClient) Events() <-chan Event { return c.events }

// Initialize starts the bridge process and asks it to launch the session.
// The call returns once the bridge acknowledges; QR and ready notifications
// follow on Events.
func (c *NodeClient) Initialize(ctx context.Context) error {
	if err := c.start(); err != nil {
		return err
	}
	headless := c.cfg.Headless
	_, err := c.call(ctx, request{
		Op:         opInitialize,
		SessionDir: c.cfg.SessionDir,
		ClientID:   c.cfg.ClientID,
		Headless:   &headless,
	})
	return err
}

func (c *NodeClient) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.cmd != nil || c.enc != nil {
		return nil
	}

	cmd := exec.Command(c.cfg.Node, c.script)
	cmd.Stderr = c.cfg.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bridge stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting node bridge: %w", err)
	}
	c.cmd = cmd
	c.attach(stdin, stdout)
	slog.Debug("node bridge started", "pid", cmd.Process.Pid, "script", c.script)
	return nil
}

// attach wires the request writer and starts the frame reader. Callers hold
// c.mu.
func (c *NodeClient) attach(w io.WriteCloser, r io.Reader) {
	c.enc = json.NewEncoder(w)
	c.stdin = w
	go c.readLoop(r)
}

func (c *NodeClient) readLoop(r io.Reader) {
	defer c.shutdown(ErrClosed)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrame)
	for sc.Scan() {
		var f frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			slog.Warn("ignoring malformed bridge frame", "error", err)
			continue
		}
		switch f.Kind {
		case frameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case frameEvent:
			if ev, ok := f.toEvent(); ok {
				c.events <- ev
			} else {
				slog.Debug("ignoring bridge event", "event", f.Event)
			}
		}
	}
	if err := sc.Err(); err != nil {
		slog.Error("bridge stream failed", "error", err)
	}
}

// shutdown fails outstanding calls and closes the event stream once.
func (c *NodeClient) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			ch <- frame{ID: id, err: err}
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.events)
		close(c.done)
	})
}

func (c *NodeClient) call(ctx context.Context, req request) (frame, error) {
	req.ID = uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.closed || c.enc == nil {
		c.mu.Unlock()
		return frame{}, ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.enc.Encode(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return frame{}, fmt.Errorf("bridge %s: %w", req.Op, err)
	}

	select {
	case f := <-ch:
		if f.err != nil {
			return f, f.err
		}
		if f.Error != "" || !f.OK {
			msg := f.Error
			if msg == "" {
				msg = "request failed"
			}
			return f, fmt.Errorf("bridge %s: %s", req.Op, msg)
		}
		return f, nil
	case <-ctx.Done():
		c.forget(req.ID)
		return frame{}, ctx.Err()
	}
}

func (c *NodeClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// SendMessage implements Client.
func (c *NodeClient) SendMessage(ctx context.Context, to, text string) error {
	_, err := c.call(ctx, request{Op: opSend, To: to, Text: text})
	return err
}

// Reply implements Client.
func (c *NodeClient) Reply(ctx context.Context, msg Message, text string) error {
	_, err := c.call(ctx, request{Op: opReply, MessageID: msg.ID, Text: text})
	return err
}

// DownloadMedia implements Client.
func (c *NodeClient) DownloadMedia(ctx context.Context, msg Message) ([]byte, error) {
	f, err := c.call(ctx, request{Op: opDownload, MessageID: msg.ID})
	if err != nil {
		return nil, err
	}
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("bridge download: message %s has no media", msg.ID)
	}
	return f.Data, nil
}

// Destroy asks the bridge to close the browser session, then stops the child
// process. It is safe to call more than once.
func (c *NodeClient) Destroy(ctx context.Context) error {
	c.mu.Lock()
	started := c.enc != nil
	c.mu.Unlock()
	if !started {
		c.shutdown(ErrClosed)
		return nil
	}

	var callErr error
	if _, err := c.call(ctx, request{Op: opDestroy}); err != nil && !errors.Is(err, ErrClosed) {
		callErr = err
	}

	c.mu.Lock()
	stdin := c.stdin
	cmd := c.cmd
	c.mu.Unlock()
	stdin.Close()

	if cmd == nil || cmd.Process == nil {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
		return callErr
	}

	// Wait closes stdout, so the reader has to see EOF first or trailing
	// frames are lost.
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		c.kill(cmd)
	case <-ctx.Done():
		c.kill(cmd)
	}
	if err := cmd.Wait(); err != nil {
		slog.Debug("node bridge exited", "error", err)
	}
	return callErr
}

// kill stops the bridge and gives the reader a moment to drain. A browser
// holding the inherited stdout can keep the pipe open, so the wait is bounded.
func (c *NodeClient) kill(cmd *exec.Cmd) {
	cmd.Process.Kill()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
}

// Done is closed once the bridge stream has ended.
func (c *NodeClient) Done() <-chan struct{} { return c.done }

// FindBridge locates the bridge script (packages/wa-bridge/cli.js).
// It searches in order:
//  1. explicit, when non-empty
//  2. ROSTER_BRIDGE_PATH
//  3. relative to the running binary
//  4. relative to the current working directory
func FindBridge(explicit string) (string, error) {
	for _, p := range []struct{ value, source string }{
		{explicit, "bridge.path"},
		{os.Getenv(BridgeEnv), BridgeEnv},
	} {
		if p.value == "" {
			continue
		}
		if _, err := os.Stat(p.value); err != nil {
			return "", fmt.Errorf("%s=%q does not exist", p.source, p.value)
		}
		return filepath.Abs(p.value)
	}

	var candidates []string
	rel := filepath.Join("packages", "wa-bridge", "cli.js")
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "..", rel),
			filepath.Join(dir, rel),
		)
		if runtime.GOOS == "darwin" {
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				candidates = append(candidates, filepath.Join(filepath.Dir(resolved), "..", rel))
			}
		}
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, rel))
	}

	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
	}
	return "", fmt.Errorf("could not find the WhatsApp bridge; run 'cd packages/wa-bridge && npm install' first")
}
