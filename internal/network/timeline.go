package network

import (
	"errors"
	"sort"
	"sync"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

var (
	ErrUnknownTempID = errors.New("no local message with that clientTempId")
	ErrNotFailed     = errors.New("message is not in failed state")
)

// ApplyResult says what Timeline.Apply did with a chat frame.
type ApplyResult int

const (
	// Inserted means the frame was new and was added.
	Inserted ApplyResult = iota
	// Reconciled means a local optimistic entry was confirmed.
	Reconciled
	// Duplicate means the server id was already present and the frame was dropped.
	Duplicate
)

// Timeline is the ordered message list of one conversation as the client sees
// it: confirmed messages plus optimistic ones still waiting for the server.
type Timeline struct {
	mu   sync.Mutex
	msgs []LocalMessage
}

// NewTimeline creates an empty Timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// AddOptimistic inserts m as Pending under its clientTempId.
func (t *Timeline) AddOptimistic(m LocalMessage) LocalMessage {
	m.ID = m.ClientTempID
	m.Status = Pending{ClientTempID: m.ClientTempID}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, m)
	t.sortLocked()
	return m
}

// Apply merges a chat frame from the server. A frame carrying the clientTempId
// of a local entry confirms that entry; a frame whose messageId is already in
// the list is dropped.
func (t *Timeline) Apply(f ServerFrame) ApplyResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.ClientTempID != "" {
		if i := t.indexByTempLocked(f.ClientTempID); i >= 0 {
			return t.reconcileLocked(i, f.MessageID, f.Timestamp)
		}
	}
	if t.indexByIDLocked(f.MessageID) >= 0 {
		return Duplicate
	}
	t.msgs = append(t.msgs, f.sentMessage())
	t.sortLocked()
	return Inserted
}

// ConfirmHTTP confirms the entry for clientTempID with the id and timestamp
// returned by the HTTP send endpoint.
func (t *Timeline) ConfirmHTTP(clientTempID, serverID string, timestamp int64) (ApplyResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexByTempLocked(clientTempID)
	if i < 0 {
		return Duplicate, ErrUnknownTempID
	}
	return t.reconcileLocked(i, serverID, timestamp), nil
}

// MarkFailed moves a Pending entry to Failed. Confirmed entries are left alone.
func (t *Timeline) MarkFailed(clientTempID, reason string) (LocalMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexByTempLocked(clientTempID)
	if i < 0 {
		return LocalMessage{}, ErrUnknownTempID
	}
	if _, sent := t.msgs[i].Status.(Sent); !sent {
		t.msgs[i].Status = Failed{ClientTempID: clientTempID, Reason: reason}
	}
	return t.msgs[i], nil
}

// MarkPending moves a Failed entry back to Pending for a retry.
func (t *Timeline) MarkPending(clientTempID string) (LocalMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexByTempLocked(clientTempID)
	if i < 0 {
		return LocalMessage{}, ErrUnknownTempID
	}
	if !t.msgs[i].IsFailed() {
		return t.msgs[i], ErrNotFailed
	}
	t.msgs[i].Status = Pending{ClientTempID: clientTempID}
	return t.msgs[i], nil
}

// Merge adds confirmed history, skipping ids already present.
func (t *Timeline) Merge(history []LocalMessage) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, m := range history {
		if t.indexByIDLocked(m.ID) >= 0 {
			continue
		}
		if m.Status == nil {
			m.Status = Sent{ServerID: m.ID, Timestamp: m.Timestamp}
		}
		t.msgs = append(t.msgs, m)
		added++
	}
	t.sortLocked()
	return added
}

// Get returns the entry with clientTempID.
func (t *Timeline) Get(clientTempID string) (LocalMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexByTempLocked(clientTempID)
	if i < 0 {
		return LocalMessage{}, false
	}
	return t.msgs[i], true
}

// Messages returns a snapshot in display order.
func (t *Timeline) Messages() []LocalMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LocalMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

func (t *Timeline) reconcileLocked(i int, serverID string, timestamp int64) ApplyResult {
	if s, ok := t.msgs[i].Status.(Sent); ok && s.ServerID == serverID {
		return Duplicate
	}
	// History may already hold the confirmed row; keep that one.
	if j := t.indexByIDLocked(serverID); j >= 0 && j != i {
		t.msgs[j].ClientTempID = t.msgs[i].ClientTempID
		t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
		return Reconciled
	}
	t.msgs[i].ID = serverID
	t.msgs[i].Timestamp = timestamp
	t.msgs[i].Status = Sent{ServerID: serverID, Timestamp: timestamp}
	t.sortLocked()
	return Reconciled
}

func (t *Timeline) indexByTempLocked(clientTempID string) int {
	if clientTempID == "" {
		return -1
	}
	for i := range t.msgs {
		if t.msgs[i].ClientTempID == clientTempID {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexByIDLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.msgs {
		if _, sent := t.msgs[i].Status.(Sent); sent && t.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// sortLocked orders by timestamp then id. Entries still pending keep their
// local send time.
func (t *Timeline) sortLocked() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		if t.msgs[i].Timestamp != t.msgs[j].Timestamp {
			return t.msgs[i].Timestamp < t.msgs[j].Timestamp
		}
		return domain.CompareIDs(t.msgs[i].ID, t.msgs[j].ID) < 0
	})
}
