package chat

import (
	"sort"
	"sync"
	"time"

	"social-chat-core/models"
)

// DefaultCorrelationWindow bounds how far apart an optimistic message and
// its server confirmation may be timestamped while still being treated as
// the same send.
const DefaultCorrelationWindow = 5 * time.Second

// Timeline owns the ordered message list for one conversation and
// reconciles the producers that race over it: local optimistic sends,
// history batches and push events.
type Timeline struct {
	mu     sync.Mutex
	window time.Duration
	msgs   []*models.Message
	byID   map[string]*models.Message
}

func NewTimeline(window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	return &Timeline{
		window: window,
		byID:   make(map[string]*models.Message),
	}
}

// Seed replaces the timeline with a history batch. Batches arrive newest
// first; the stored order is oldest first for rendering.
func (t *Timeline) Seed(msgs []*models.Message) {
	ordered := make([]*models.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil {
			ordered = append(ordered, msgs[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = make([]*models.Message, 0, len(ordered))
	t.byID = make(map[string]*models.Message, len(ordered))
	for _, m := range ordered {
		if _, dup := t.byID[m.ID]; dup {
			continue
		}
		t.msgs = append(t.msgs, m)
		t.byID[m.ID] = m
	}
}

// InsertOptimistic appends a locally created pending message.
func (t *Timeline) InsertOptimistic(m *models.Message) {
	if m == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m.Pending = true
	t.msgs = append(t.msgs, m)
	t.byID[m.ID] = m
}

// MergeIncoming folds a confirmed message into the timeline and reports
// whether anything changed. A message whose id is already present is a
// duplicate delivery and is dropped. A message matching a pending entry's
// correlation key, same sender and content with timestamps inside the
// window, is that entry's confirmation and replaces it in place, keeping its
// position. Everything else appends in arrival order; the live list is never
// re-sorted.
//
// Two identical texts from the same sender inside one window collapse into a
// single confirmed entry. Known tradeoff of content correlation.
func (t *Timeline) MergeIncoming(m *models.Message) bool {
	if m == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.byID[m.ID]; dup {
		return false
	}
	for i, existing := range t.msgs {
		if !existing.Pending || existing.SenderID != m.SenderID || existing.Content != m.Content {
			continue
		}
		if !withinWindow(existing.Timestamp, m.Timestamp, t.window) {
			continue
		}
		delete(t.byID, existing.ID)
		t.msgs[i] = m
		t.byID[m.ID] = m
		return true
	}
	t.msgs = append(t.msgs, m)
	t.byID[m.ID] = m
	return true
}

// Remove drops a message by id, usually a failed optimistic send, and
// reports whether it was present.
func (t *Timeline) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; !ok {
		return false
	}
	delete(t.byID, id)
	for i, m := range t.msgs {
		if m.ID == id {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			break
		}
	}
	return true
}

// Messages returns a render-ready copy of the timeline. Sender profiles stay
// shared so placeholder upgrades reach already-copied snapshots.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

// Len reports how many messages the timeline holds.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
