// Package bot is the session controller: it reacts to chat session events,
// answers commands from the roster, runs the dataset replacement workflow and
// rebuilds the session when it is lost.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klytics/rosterbot/internal/audit"
	"github.com/klytics/rosterbot/internal/commands"
	"github.com/klytics/rosterbot/internal/transport"
)

// State is the controller's view of the session.
type State string

const (
	StateStarting     State = "starting"
	StatePairing      State = "pairing"
	StateReady        State = "ready"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
	StateStopped      State = "stopped"
)

// Dispatcher answers one command line.
type Dispatcher interface {
	Handle(text string, meta commands.Meta) (string, error)
}

// Counter reports the loaded table's shape for status snapshots.
type Counter interface {
	Len() int
	Columns() []string
}

// Publisher shows pairing codes to the operator.
type Publisher interface {
	Publish(code string) (string, error)
	Published() bool
	Clear() error
}

// Options configures a Controller. Factory, Dispatcher and Replacer are
// required.
type Options struct {
	Factory        transport.Factory
	Dispatcher     Dispatcher
	Replacer       *Replacer
	Store          Counter
	Pairing        Publisher
	Audit          *audit.Logger
	ConfirmCommand string
	Welcome        bool
	// RebuildOnExit rebuilds the session when the client's event stream
	// ends without a disconnect notification.
	RebuildOnExit bool
	ReplyTimeout  time.Duration
	// MaxRebuilds caps consecutive rebuilds that do not reach ready. Once
	// exceeded the session stays disconnected until restarted.
	MaxRebuilds int
	// RebuildBackoff is the wait before the second consecutive rebuild; it
	// doubles for each further attempt, up to a minute.
	RebuildBackoff time.Duration
}

const (
	defaultMaxRebuilds    = 5
	defaultRebuildBackoff = 2 * time.Second
	maxRebuildBackoff     = time.Minute
)

// Snapshot is the counts-only status view.
type Snapshot struct {
	State      State  `json:"state"`
	Self       string `json:"self,omitempty"`
	Records    int    `json:"records"`
	Columns    int    `json:"columns"`
	Pending    bool   `json:"pending"`
	QRReady    bool   `json:"qr_ready"`
	Rebuilding bool   `json:"rebuilding"`
}

// Controller owns the session client and routes its events.
type Controller struct {
	opts Options

	mu     sync.Mutex
	ctx    context.Context
	client transport.Client
	gen    uint64
	state  State
	self   string
	// attempts counts rebuilds since the session was last ready.
	attempts int
	stopped  bool

	rebuilding atomic.Bool
	handlers   sync.WaitGroup
}

// New validates opts and returns an idle Controller.
func New(opts Options) (*Controller, error) {
	if opts.Factory == nil {
		return nil, errors.New("bot: transport factory is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("bot: dispatcher is required")
	}
	if opts.Replacer == nil {
		return nil, errors.New("bot: replacer is required")
	}
	if opts.ConfirmCommand == "" {
		opts.ConfirmCommand = commands.DefaultConfirmCommand
	}
	opts.ConfirmCommand = strings.ToLower(strings.TrimSpace(opts.ConfirmCommand))
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	if opts.MaxRebuilds <= 0 {
		opts.MaxRebuilds = defaultMaxRebuilds
	}
	if opts.RebuildBackoff <= 0 {
		opts.RebuildBackoff = defaultRebuildBackoff
	}
	return &Controller{opts: opts, ctx: context.Background(), state: StateStarting}, nil
}

func logger() *slog.Logger {
	return slog.Default().With("component", "bot")
}

// Run creates and initializes the first client, then serves events until ctx
// is cancelled. The current client is destroyed on the way out.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	client, err := c.opts.Factory()
	if err != nil {
		return fmt.Errorf("could not create session client: %w", err)
	}
	c.install(client)

	logger().Info("initializing session")
	if err := client.Initialize(ctx); err != nil {
		c.stop()
		return fmt.Errorf("could not initialize session: %w", err)
	}

	<-ctx.Done()
	c.stop()
	return nil
}

func (c *Controller) stop() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.gen++
	c.state = StateStopped
	c.stopped = true
	c.mu.Unlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.Destroy(ctx); err != nil {
			logger().Warn("destroying session", "error", err)
		}
	}
	c.handlers.Wait()
	logger().Info("session stopped")
}

// install swaps client in and starts consuming its events. It returns the
// client it replaced, if any, and false when the controller has stopped.
func (c *Controller) install(client transport.Client) (transport.Client, bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, false
	}
	old := c.client
	c.gen++
	gen := c.gen
	c.client = client
	c.mu.Unlock()

	go c.pump(gen, client)
	return old, true
}

// spawn runs fn as a tracked handler unless gen has been superseded. The
// check and Add share the lock that stop takes to bump gen, so no handler is
// added once stop is waiting.
func (c *Controller) spawn(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.handlers.Add(1)
	go func() {
		defer c.handlers.Done()
		fn()
	}()
	return true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) pump(gen uint64, client transport.Client) {
	for ev := range client.Events() {
		c.onEvent(gen, client, ev)
	}

	if !c.current(gen) || c.context().Err() != nil {
		return
	}
	logger().Warn("session event stream ended")
	c.setState(StateDisconnected)
	if c.opts.RebuildOnExit {
		go c.Rebuild()
	}
}

func (c *Controller) onEvent(gen uint64, client transport.Client, ev transport.Event) {
	if !c.current(gen) {
		logger().Debug("ignoring event from superseded session", "event", ev.Kind)
		return
	}

	switch ev.Kind {
	case transport.EventQR:
		c.setState(StatePairing)
		logger().Info("pairing code received, scan it with WhatsApp")
		if c.opts.Pairing == nil {
			return
		}
		url, err := c.opts.Pairing.Publish(ev.Code)
		if err != nil {
			logger().Error("publishing pairing code", "error", err)
			return
		}
		logger().Info("pairing code published", "url", url)

	case transport.EventReady:
		c.mu.Lock()
		c.state = StateReady
		c.self = ev.Self
		c.attempts = 0
		c.mu.Unlock()
		logger().Info("session ready", "self", ev.Self)
		if c.opts.Pairing != nil {
			if err := c.opts.Pairing.Clear(); err != nil {
				logger().Warn("removing pairing code", "error", err)
			}
		}
		if c.opts.Welcome && ev.Self != "" {
			c.spawn(gen, func() { c.sendWelcome(client, ev.Self) })
		}

	case transport.EventMessage:
		if ev.Message == nil {
			return
		}
		msg := *ev.Message
		c.spawn(gen, func() { c.handleMessage(client, msg) })

	case transport.EventAuthFailure:
		logger().Error("authentication failed", "reason", ev.Reason)
		go c.Rebuild()

	case transport.EventDisconnected:
		logger().Warn("session disconnected", "reason", ev.Reason)
		c.setState(StateDisconnected)
		if transport.ShouldReconnect(ev.Reason) {
			go c.Rebuild()
		}
	}
}

func (c *Controller) sendWelcome(client transport.Client, self string) {
	ctx, cancel := context.WithTimeout(c.context(), c.opts.ReplyTimeout)
	defer cancel()
	if err := client.SendMessage(ctx, self, WelcomeMessage); err != nil {
		logger().Error("sending welcome message", "error", err)
		return
	}
	logger().Info("welcome message sent", "to", self)
}

// Rebuild replaces the session client with a fresh one. It returns false
// without doing anything when a rebuild is already in flight, the controller
// is shutting down, or MaxRebuilds consecutive attempts failed to reach
// ready. Consecutive attempts after the first wait with exponential backoff.
func (c *Controller) Rebuild() bool {
	ctx := c.context()
	if ctx.Err() != nil {
		return false
	}
	if !c.rebuilding.CompareAndSwap(false, true) {
		logger().Info("session rebuild already in progress")
		return false
	}
	defer c.rebuilding.Store(false)

	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if attempt > c.opts.MaxRebuilds {
		logger().Error("giving up on session rebuilds; restart to try again",
			"attempts", attempt-1)
		c.setState(StateDisconnected)
		return false
	}

	c.setState(StateReconnecting)
	if delay := c.backoff(attempt); delay > 0 {
		logger().Info("waiting before rebuilding session", "attempt", attempt, "delay", delay)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		}
	}
	logger().Info("rebuilding session", "attempt", attempt)

	next, err := c.opts.Factory()
	if err != nil {
		logger().Error("creating session client", "error", err)
		c.setState(StateDisconnected)
		return true
	}
	old, ok := c.install(next)
	if !ok {
		dctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		next.Destroy(dctx)
		cancel()
		return false
	}

	if old != nil {
		dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := old.Destroy(dctx); err != nil {
			logger().Warn("destroying previous session", "error", err)
		}
		cancel()
	}

	if err := next.Initialize(ctx); err != nil {
		logger().Error("initializing session", "error", err)
		c.setState(StateDisconnected)
	}
	return true
}

// backoff is the wait before the given consecutive rebuild attempt.
func (c *Controller) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := c.opts.RebuildBackoff
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= maxRebuildBackoff {
			return maxRebuildBackoff
		}
	}
	return d
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{State: c.state, Self: c.self}
	c.mu.Unlock()

	s.Pending = c.opts.Replacer.Pending() != ""
	s.Rebuilding = c.rebuilding.Load()
	if c.opts.Store != nil {
		s.Records = c.opts.Store.Len()
		s.Columns = len(c.opts.Store.Columns())
	}
	if c.opts.Pairing != nil {
		s.QRReady = c.opts.Pairing.Published()
	}
	return s
}

func (c *Controller) handleMessage(client transport.Client, msg transport.Message) {
	ctx, cancel := context.WithTimeout(c.context(), c.opts.ReplyTimeout)
	defer cancel()
	log := logger().With("from", msg.From, "type", msg.Type, "from_me", msg.FromMe)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling message", "panic", r)
			if err := client.Reply(ctx, msg, MsgGenericError); err != nil {
				log.Error("sending error reply", "error", err)
			}
		}
	}()

	switch {
	case msg.Type == transport.TypeDocument && msg.HasMedia:
		c.handleUpload(ctx, log, client, msg)
	case msg.Type == transport.TypeChat && strings.HasPrefix(msg.Body, "!"):
		c.handleCommand(ctx, log, client, msg)
	default:
		log.Debug("ignoring message")
	}
}

func (c *Controller) handleCommand(ctx context.Context, log *slog.Logger, client transport.Client, msg transport.Message) {
	start := time.Now()
	text := strings.TrimSpace(msg.Body)
	name, args, _ := strings.Cut(text, " ")
	name = strings.ToLower(name)
	log = log.With("command", name)
	log.Info("command received")

	var (
		reply string
		err   error
	)
	if strings.ToLower(text) == c.opts.ConfirmCommand {
		reply, err = c.confirm()
	} else {
		reply, err = c.opts.Dispatcher.Handle(text, commands.Meta{From: msg.From, To: msg.To, FromMe: msg.FromMe})
	}
	if err != nil {
		log.Error("command failed", "error", err)
	}

	replyErr := client.Reply(ctx, msg, reply)
	if replyErr != nil {
		log.Error("sending reply", "error", replyErr)
	}

	c.record(ctx, msg, name, strings.TrimSpace(args), start, errors.Join(err, replyErr))
}

func (c *Controller) confirm() (string, error) {
	n, err := c.opts.Replacer.Confirm()
	switch {
	case errors.Is(err, ErrNoPending):
		return fmt.Sprintf(MsgNoPending, c.opts.Replacer.Filename()), nil
	case err != nil:
		return MsgConfirmFailed, err
	default:
		logger().Info("dataset replaced", "records", n)
		return fmt.Sprintf(MsgConfirmed, n), nil
	}
}

func (c *Controller) handleUpload(ctx context.Context, log *slog.Logger, client transport.Client, msg transport.Message) {
	if msg.Filename != c.opts.Replacer.Filename() {
		log.Info("ignoring document", "filename", msg.Filename)
		return
	}
	start := time.Now()
	log.Info("dataset upload received", "filename", msg.Filename)

	reply := fmt.Sprintf(MsgStaged, c.opts.ConfirmCommand)
	data, err := client.DownloadMedia(ctx, msg)
	if err == nil {
		err = c.opts.Replacer.Stage(data)
	}
	switch {
	case errors.Is(err, ErrInvalidUpload):
		log.Warn("rejecting upload", "error", err)
		reply = fmt.Sprintf(MsgUploadInvalid, c.opts.Replacer.Sheet())
	case err != nil:
		log.Error("staging upload", "error", err)
		reply = MsgDownloadFailed
	}

	replyErr := client.Reply(ctx, msg, reply)
	if replyErr != nil {
		log.Error("sending reply", "error", replyErr)
	}
	c.record(ctx, msg, "upload", msg.Filename, start, errors.Join(err, replyErr))
}

func (c *Controller) record(ctx context.Context, msg transport.Message, command, args string, start time.Time, err error) {
	entry := audit.Entry{
		Sender:     msg.From,
		Chat:       msg.To,
		Command:    command,
		Args:       args,
		Status:     audit.StatusOK,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = audit.StatusError
		entry.Error = err.Error()
	}
	c.opts.Audit.Log(ctx, entry)
}
