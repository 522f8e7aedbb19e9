// Package transport defines the chat session client the bot reacts to and
// provides two implementations: NodeClient, which drives whatsapp-web.js in a
// Node.js sidecar, and ConsoleClient, an interactive terminal session.
package transport

import (
	"context"
	"errors"
)

// EventKind identifies a session event.
type EventKind string

const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventMessage      EventKind = "message_create"
	EventAuthFailure  EventKind = "auth_failure"
	EventDisconnected EventKind = "disconnected"
)

// Message types the bot distinguishes.
const (
	TypeChat     = "chat"
	TypeDocument = "document"
)

// Disconnect reasons that warrant rebuilding the session.
const (
	ReasonLogout         = "LOGOUT"
	ReasonConnectionLost = "CONNECTION_LOST"
)

// ErrClosed is returned by calls made after the client was destroyed or its
// process exited.
var ErrClosed = errors.New("transport: client closed")

// Message is an inbound or outbound chat message as reported by the session.
type Message struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	FromMe   bool   `json:"fromMe"`
	Type     string `json:"type"`
	Body     string `json:"body"`
	HasMedia bool   `json:"hasMedia"`
	Filename string `json:"filename,omitempty"`
}

// Event is one notification from the session. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind    EventKind
	Code    string   // qr
	Self    string   // ready: the bot account's own id
	Message *Message // message_create
	Reason  string   // auth_failure, disconnected
}

// Client is a chat session. Events are delivered on the channel returned by
// Events, which is closed once the client is destroyed or dies.
type Client interface {
	Initialize(ctx context.Context) error
	Events() <-chan Event
	SendMessage(ctx context.Context, to, text string) error
	Reply(ctx context.Context, msg Message, text string) error
	DownloadMedia(ctx context.Context, msg Message) ([]byte, error)
	Destroy(ctx context.Context) error
}

// Factory builds a fresh, uninitialized Client.
type Factory func() (Client, error)

// ShouldReconnect reports whether a disconnect reason calls for a new session.
func ShouldReconnect(reason string) bool {
	return reason == ReasonLogout || reason == ReasonConnectionLost
}
