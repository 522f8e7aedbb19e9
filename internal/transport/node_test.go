package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeBridge plays the Node side of the protocol over in-memory pipes.
type fakeBridge struct {
	dec    *json.Decoder
	frames *io.PipeWriter
}

func newPipedClient(t *testing.T) (*NodeClient, *fakeBridge) {
	t.Helper()
	reqR, reqW := io.Pipe()
	frameR, frameW := io.Pipe()

	c := &NodeClient{
		pending: make(map[string]chan frame),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	c.attach(reqW, frameR)
	c.mu.Unlock()

	t.Cleanup(func() {
		frameW.Close()
		reqR.Close()
	})
	return c, &fakeBridge{dec: json.NewDecoder(reqR), frames: frameW}
}

func (b *fakeBridge) next(t *testing.T) request {
	t.Helper()
	var req request
	if err := b.dec.Decode(&req); err != nil {
		t.Fatalf("decoding request: %v", err)
	}
	return req
}

func (b *fakeBridge) send(t *testing.T, f frame) {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.frames.Write(append(data, '\n')); err != nil {
		t.Fatal(err)
	}
}

func TestNodeClientSendMessage(t *testing.T) {
	c, b := newPipedClient(t)

	errc := make(chan error, 1)
	go func() { errc <- c.SendMessage(context.Background(), "123@c.us", "hello") }()

	req := b.next(t)
	if req.Op != opSend || req.To != "123@c.us" || req.Text != "hello" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.ID == "" {
		t.Error("request id not set")
	}
	b.send(t, frame{Kind: frameResponse, ID: req.ID, OK: true})

	if err := <-errc; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}

func TestNodeClientRequestIDsAreUnique(t *testing.T) {
	c, b := newPipedClient(t)

	errc := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errc <- c.Reply(context.Background(), Message{ID: "m1"}, "ok") }()
	}
	first, second := b.next(t), b.next(t)
	if first.ID == second.ID {
		t.Fatalf("duplicate request id %q", first.ID)
	}
	// Answer out of order.
	b.send(t, frame{Kind: frameResponse, ID: second.ID, OK: true})
	b.send(t, frame{Kind: frameResponse, ID: first.ID, OK: true})
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			t.Errorf("Reply: %v", err)
		}
	}
}

func TestNodeClientDownloadMedia(t *testing.T) {
	c, b := newPipedClient(t)
	payload := []byte("PK\x03\x04 workbook bytes")

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := c.DownloadMedia(context.Background(), Message{ID: "media-1"})
		done <- result{data, err}
	}()

	req := b.next(t)
	if req.Op != opDownload || req.MessageID != "media-1" {
		t.Errorf("unexpected request %+v", req)
	}
	b.send(t, frame{Kind: frameResponse, ID: req.ID, OK: true, Data: payload})

	r := <-done
	if r.err != nil {
		t.Fatal(r.err)
	}
	if string(r.data) != string(payload) {
		t.Errorf("data = %q, want %q", r.data, payload)
	}
}

func TestNodeClientErrorResponse(t *testing.T) {
	c, b := newPipedClient(t)

	errc := make(chan error, 1)
	go func() { errc <- c.SendMessage(context.Background(), "x", "y") }()

	req := b.next(t)
	b.send(t, frame{Kind: frameResponse, ID: req.ID, Error: "chat not found"})

	err := <-errc
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected bridge error, got %v", err)
	}
}

func TestNodeClientEvents(t *testing.T) {
	c, b := newPipedClient(t)

	b.send(t, frame{Kind: frameEvent, Event: "qr", Code: "2@abc"})
	b.frames.Write([]byte("not json\n"))
	b.send(t, frame{Kind: frameEvent, Event: "loading_screen"})
	b.send(t, frame{Kind: frameEvent, Event: "message_create"}) // no message payload
	b.send(t, frame{Kind: frameEvent, Event: "message_create", Message: &Message{ID: "m", From: "1@c.us", Type: TypeChat, Body: "!help"}})
	b.send(t, frame{Kind: frameEvent, Event: "disconnected", Reason: ReasonLogout})

	want := []EventKind{EventQR, EventMessage, EventDisconnected}
	for i, kind := range want {
		select {
		case ev := <-c.Events():
			if ev.Kind != kind {
				t.Fatalf("event %d: kind %q, want %q", i, ev.Kind, kind)
			}
			switch kind {
			case EventQR:
				if ev.Code != "2@abc" {
					t.Errorf("qr code = %q", ev.Code)
				}
			case EventMessage:
				if ev.Message.Body != "!help" || ev.Message.From != "1@c.us" {
					t.Errorf("message = %+v", ev.Message)
				}
			case EventDisconnected:
				if !ShouldReconnect(ev.Reason) {
					t.Errorf("reason %q should reconnect", ev.Reason)
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestNodeClientStreamEndFailsPending(t *testing.T) {
	c, b := newPipedClient(t)

	errc := make(chan error, 1)
	go func() { errc <- c.SendMessage(context.Background(), "x", "y") }()
	b.next(t)
	b.frames.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released")
	}

	if _, ok := <-c.Events(); ok {
		t.Error("events channel should be closed")
	}
	if err := c.SendMessage(context.Background(), "x", "y"); !errors.Is(err, ErrClosed) {
		t.Errorf("call after close = %v", err)
	}
}

func TestNodeClientCallHonoursContext(t *testing.T) {
	c, b := newPipedClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.SendMessage(ctx, "x", "y") }()
	b.next(t)
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNodeClientDestroyBeforeStart(t *testing.T) {
	c := &NodeClient{
		pending: make(map[string]chan frame),
		events:  make(chan Event, 1),
		done:    make(chan struct{}),
	}
	if err := c.Destroy(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-c.Events(); ok {
		t.Error("events channel should be closed")
	}
	if err := c.Initialize(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Initialize after Destroy = %v", err)
	}
}

// shellBridge answers every request with ok and, once stdin closes, writes a
// last event before exiting.
const shellBridge = `while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  printf '{"kind":"response","id":"%s","ok":true}\n' "$id"
done
printf '{"kind":"event","event":"disconnected","reason":"LOGOUT"}\n'
`

func TestNodeClientDestroyDrainsTrailingFrames(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "bridge.sh")
	if err := os.WriteFile(script, []byte(shellBridge), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := NewNodeClient(NodeConfig{Node: sh, BridgePath: script, Stderr: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Destroy returned before the stream was drained")
	}
	var kinds []EventKind
	for ev := range c.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 1 || kinds[0] != EventDisconnected {
		t.Errorf("events after Destroy = %v, want the trailing disconnect", kinds)
	}
}

func TestFindBridge(t *testing.T) {
	script := filepath.Join(t.TempDir(), "cli.js")
	if err := os.WriteFile(script, []byte("// bridge\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FindBridge(script)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q", got)
	}

	t.Setenv(BridgeEnv, script)
	if got, err := FindBridge(""); err != nil || got != script {
		t.Errorf("FindBridge via env = %q, %v", got, err)
	}
}

func TestFindBridgeWithMissingOverride(t *testing.T) {
	t.Setenv(BridgeEnv, "/nonexistent/path/cli.js")
	if _, err := FindBridge(""); err == nil {
		t.Fatal("expected error for nonexistent " + BridgeEnv)
	}
	if _, err := FindBridge("/nonexistent/explicit.js"); err == nil {
		t.Fatal("expected error for nonexistent explicit path")
	}
}

func TestShouldReconnect(t *testing.T) {
	for reason, want := range map[string]bool{
		ReasonLogout:         true,
		ReasonConnectionLost: true,
		"NAVIGATION":         false,
		"":                   false,
	} {
		if got := ShouldReconnect(reason); got != want {
			t.Errorf("ShouldReconnect(%q) = %v", reason, got)
		}
	}
}
