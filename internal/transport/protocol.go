package transport

// Wire format spoken with the Node bridge: one JSON object per line in each
// direction. Requests carry a unique id that the matching response echoes.

const (
	opInitialize = "initialize"
	opSend       = "send"
	opReply      = "reply"
	opDownload   = "download"
	opDestroy    = "destroy"
)

const (
	frameResponse = "response"
	frameEvent    = "event"
)

type request struct {
	ID         string `json:"id"`
	Op         string `json:"op"`
	To         string `json:"to,omitempty"`
	Text       string `json:"text,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	SessionDir string `json:"session_dir,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	Headless   *bool  `json:"headless,omitempty"`
}

type frame struct {
	Kind string `json:"kind"`

	// response
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
	Data  []byte `json:"data,omitempty"` // base64 on the wire

	// event
	Event   string   `json:"event,omitempty"`
	Code    string   `json:"code,omitempty"`
	Self    string   `json:"self,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Message *Message `json:"message,omitempty"`

	err error // set locally when the stream ends with the call outstanding
}

func (f frame) toEvent() (Event, bool) {
	ev := Event{
		Kind:    EventKind(f.Event),
		Code:    f.Code,
		Self:    f.Self,
		Reason:  f.Reason,
		Message: f.Message,
	}
	switch ev.Kind {
	case EventQR, EventReady, EventAuthFailure, EventDisconnected:
		return ev, true
	case EventMessage:
		return ev, ev.Message != nil
	default:
		return Event{}, false
	}
}
