package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Console identities used when none are configured.
const (
	DefaultConsoleUser = "console@c.us"
	DefaultConsoleSelf = "rosterbot@c.us"
)

// ConsoleConfig configures a ConsoleClient.
type ConsoleConfig struct {
	Prompt      string
	HistoryFile string
	User        string    // sender id attached to typed lines
	Self        string    // id reported in the ready event
	Out         io.Writer // default os.Stdout
	// Headless skips the readline prompt; lines are supplied through Feed.
	Headless bool
}

// ConsoleClient is a chat session backed by the terminal. Every typed line
// becomes a chat message from the configured user; "/upload <path>" sends a
// local file as a document.
type ConsoleClient struct {
	cfg ConsoleConfig
	rl  *readline.Instance

	mu     sync.Mutex
	media  map[string]string
	closed bool

	events chan Event
	done   chan struct{}
}

// NewConsoleClient returns an uninitialized console session.
func NewConsoleClient(cfg ConsoleConfig) *ConsoleClient {
	if cfg.Prompt == "" {
		cfg.Prompt = "you> "
	}
	if cfg.User == "" {
		cfg.User = DefaultConsoleUser
	}
	if cfg.Self == "" {
		cfg.Self = DefaultConsoleSelf
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &ConsoleClient{
		cfg:    cfg,
		media:  make(map[string]string),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Events implements Client.
func (c *ConsoleClient) Events() <-chan Event { return c.events }

// Done is closed when the user leaves the console.
func (c *ConsoleClient) Done() <-chan struct{} { return c.done }

// Initialize reports the session ready and starts reading lines.
func (c *ConsoleClient) Initialize(ctx context.Context) error {
	if !c.cfg.Headless {
		if c.cfg.HistoryFile != "" {
			os.MkdirAll(filepath.Dir(c.cfg.HistoryFile), 0755)
		}
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          c.cfg.Prompt,
			HistoryFile:     c.cfg.HistoryFile,
			AutoComplete:    readline.NewPrefixCompleter(readline.PcItem("/upload"), readline.PcItem("/help"), readline.PcItem("/quit")),
			InterruptPrompt: "^C",
			EOFPrompt:       "/quit",
		})
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		c.mu.Lock()
		c.rl = rl
		c.mu.Unlock()
	}

	if !c.emit(Event{Kind: EventReady, Self: c.cfg.Self}) {
		return ErrClosed
	}

	if c.rl != nil {
		go c.readLoop()
	}
	return nil
}

func (c *ConsoleClient) readLoop() {
	defer c.close()
	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return
		}
		if !c.Feed(line) {
			return
		}
	}
}

// Feed handles one typed line. It returns false once the user asked to quit.
func (c *ConsoleClient) Feed(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true
	case line == "/quit" || line == "/exit":
		c.close()
		return false
	case line == "/help":
		fmt.Fprintln(c.out(), "Type a bot command (e.g. !help) or:")
		fmt.Fprintln(c.out(), "  /upload <path>  send a spreadsheet as a document")
		fmt.Fprintln(c.out(), "  /quit           leave the console")
		return true
	case strings.HasPrefix(line, "/upload"):
		msg, err := c.upload(strings.TrimSpace(strings.TrimPrefix(line, "/upload")))
		if err != nil {
			color.New(color.FgRed).Fprintf(c.out(), "%s\n", err)
			return true
		}
		c.emit(Event{Kind: EventMessage, Message: msg})
		return true
	default:
		c.emit(Event{Kind: EventMessage, Message: c.message(TypeChat, line)})
		return true
	}
}

func (c *ConsoleClient) upload(path string) (*Message, error) {
	if path == "" {
		return nil, fmt.Errorf("usage: /upload <path>")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot upload %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot upload %s: is a directory", path)
	}

	msg := c.message(TypeDocument, "")
	msg.HasMedia = true
	msg.Filename = filepath.Base(path)

	c.mu.Lock()
	c.media[msg.ID] = path
	c.mu.Unlock()
	return msg, nil
}

func (c *ConsoleClient) message(kind, body string) *Message {
	return &Message{
		ID:     uuid.NewString(),
		From:   c.cfg.User,
		To:     c.cfg.Self,
		FromMe: true,
		Type:   kind,
		Body:   body,
	}
}

func (c *ConsoleClient) emit(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events <- ev
	return true
}

func (c *ConsoleClient) out() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return c.cfg.Out
}

// SendMessage implements Client.
func (c *ConsoleClient) SendMessage(_ context.Context, to, text string) error {
	return c.print(fmt.Sprintf("bot → %s", to), text)
}

// Reply implements Client.
func (c *ConsoleClient) Reply(_ context.Context, _ Message, text string) error {
	return c.print("bot", text)
}

func (c *ConsoleClient) print(label, text string) error {
	w := c.out()
	if _, err := color.New(color.FgGreen, color.Bold).Fprintf(w, "%s> ", label); err != nil {
		return err
	}
	text = strings.TrimRight(text, "\n")
	_, err := fmt.Fprintln(w, text)
	return err
}

// DownloadMedia implements Client.
func (c *ConsoleClient) DownloadMedia(_ context.Context, msg Message) ([]byte, error) {
	c.mu.Lock()
	path, ok := c.media[msg.ID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("console: no media for message %s", msg.ID)
	}
	return os.ReadFile(path)
}

// Destroy implements Client.
func (c *ConsoleClient) Destroy(context.Context) error {
	c.close()
	return nil
}

func (c *ConsoleClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
	close(c.done)
	if c.rl != nil {
		c.rl.Close()
	}
}
