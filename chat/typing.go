package chat

import (
	"sort"
	"sync"
	"time"
)

// DefaultQuietPeriod is how long after the last keystroke, or the last
// remote signal, a typing state falls back to idle.
const DefaultQuietPeriod = 3 * time.Second

// TypingTracker is the per-conversation typing state machine. The local side
// debounces keystroke-driven changes so the wire only carries transitions;
// the remote side guards every peer with its own expiry timer so a lost stop
// signal cannot wedge the indicator. Timer callbacks are generation-guarded:
// a stale or post-close fire is a no-op.
type TypingTracker struct {
	mu    sync.Mutex
	quiet time.Duration
	self  string

	emit   func(isTyping bool)
	notify func()

	localTyping bool
	localTimer  *time.Timer
	localGen    int

	remote    map[string]*remoteTyping
	remoteGen int
	closed    bool
}

type remoteTyping struct {
	timer *time.Timer
	gen   int
}

// NewTypingTracker wires the machine for one conversation. emit publishes
// local transitions, notify reports remote set changes; both may be nil.
// quiet <= 0 selects DefaultQuietPeriod.
func NewTypingTracker(self string, quiet time.Duration, emit func(bool), notify func()) *TypingTracker {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &TypingTracker{
		quiet:  quiet,
		self:   self,
		emit:   emit,
		notify: notify,
		remote: make(map[string]*remoteTyping),
	}
}

// SetInput feeds the current compose box contents into the machine. Only
// transitions emit: keystrokes while already typing just re-arm the quiet
// timer.
func (t *TypingTracker) SetInput(text string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	var fire func(bool)
	var typing bool
	switch {
	case text != "" && !t.localTyping:
		t.localTyping = true
		t.armLocalLocked()
		fire, typing = t.emit, true
	case text != "" && t.localTyping:
		t.armLocalLocked()
	case text == "" && t.localTyping:
		t.localTyping = false
		t.stopLocalLocked()
		fire, typing = t.emit, false
	}
	t.mu.Unlock()
	if fire != nil {
		fire(typing)
	}
}

func (t *TypingTracker) armLocalLocked() {
	t.localGen++
	gen := t.localGen
	if t.localTimer != nil {
		t.localTimer.Stop()
	}
	t.localTimer = time.AfterFunc(t.quiet, func() { t.localExpire(gen) })
}

func (t *TypingTracker) stopLocalLocked() {
	t.localGen++
	if t.localTimer != nil {
		t.localTimer.Stop()
		t.localTimer = nil
	}
}

func (t *TypingTracker) localExpire(gen int) {
	t.mu.Lock()
	if t.closed || gen != t.localGen || !t.localTyping {
		t.mu.Unlock()
		return
	}
	t.localTyping = false
	t.localTimer = nil
	fire := t.emit
	t.mu.Unlock()
	if fire != nil {
		fire(false)
	}
}

// ApplyRemote folds a peer's typing signal into the indicator set. Every
// active peer holds exactly one expiry timer; a newer signal cancels and
// replaces it. Signals about the local user are ignored.
func (t *TypingTracker) ApplyRemote(username string, isTyping bool) {
	if username == "" || username == t.self {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	changed := false
	state, active := t.remote[username]
	switch {
	case isTyping && active:
		t.remoteGen++
		gen := t.remoteGen
		state.gen = gen
		state.timer.Stop()
		state.timer = time.AfterFunc(t.quiet, func() { t.remoteExpire(username, gen) })
	case isTyping && !active:
		t.remoteGen++
		gen := t.remoteGen
		state = &remoteTyping{gen: gen}
		state.timer = time.AfterFunc(t.quiet, func() { t.remoteExpire(username, gen) })
		t.remote[username] = state
		changed = true
	case !isTyping && active:
		state.timer.Stop()
		delete(t.remote, username)
		changed = true
	}
	notify := t.notify
	t.mu.Unlock()
	if changed && notify != nil {
		notify()
	}
}

// remoteExpire downgrades a peer whose stop signal never arrived.
func (t *TypingTracker) remoteExpire(username string, gen int) {
	t.mu.Lock()
	state, ok := t.remote[username]
	if t.closed || !ok || gen != state.gen {
		t.mu.Unlock()
		return
	}
	delete(t.remote, username)
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Typing returns the peers currently typing, sorted for stable display.
func (t *TypingTracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.remote))
	for username := range t.remote {
		out = append(out, username)
	}
	sort.Strings(out)
	return out
}

// Close stops every timer. Fires already in flight become no-ops.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.localTyping = false
	t.stopLocalLocked()
	for username, state := range t.remote {
		state.timer.Stop()
		delete(t.remote, username)
	}
}
