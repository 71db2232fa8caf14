package network

import "sync"

// EventKind enumerates everything a Session reports to its subscribers.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventReconnecting
	EventAuthenticated
	EventAuthRequired
	EventMessage
	// EventOtherConversation carries a chat frame for a conversation other
	// than the session's own. The server may already count it as read.
	EventOtherConversation
	EventMessageFailed
	EventTyping
	EventStopTyping
	EventOnlineStatus
	EventServerError
)

var eventNames = map[EventKind]string{
	EventConnected:         "connected",
	EventDisconnected:      "disconnected",
	EventReconnecting:      "reconnecting",
	EventAuthenticated:     "authenticated",
	EventAuthRequired:      "auth_required",
	EventMessage:           "message",
	EventOtherConversation: "other_conversation",
	EventMessageFailed:     "message_failed",
	EventTyping:            "typing",
	EventStopTyping:        "stop_typing",
	EventOnlineStatus:      "online_status",
	EventServerError:       "server_error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Message *LocalMessage
	Frame   *ServerFrame
	// Attempt is the reconnect attempt number for EventReconnecting.
	Attempt int
	Err     error
}

// EventBus fans events out to subscribers synchronously, in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
	order  []int
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *EventBus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}
