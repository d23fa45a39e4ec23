// Package scroll signals "load the next page" when a sentinel placed after the
// last rendered result becomes visible.
package scroll

import "sync"

// Sentinel marks a position in the rendered output, usually right after the
// last item. Identity matters: a re-render that moves the sentinel creates a
// new one.
type Sentinel struct {
	Line   int
	Height int // lines; values below 1 count as 1
}

// Entry reports the visibility of one observed sentinel.
type Entry struct {
	Target       *Sentinel
	Intersecting bool
	Ratio        float64
}

// Options configures a Trigger and the observer it creates.
type Options struct {
	// Threshold is the minimal visible ratio, 0..1, that counts as visible.
	Threshold float64
	// Enabled gates the callback. Callers pass "has more and not loading".
	Enabled bool
	// RootMargin grows the viewport by this many lines on each side.
	RootMargin int
}

// Observer watches sentinels and delivers batches of entries to the handler
// it was created with.
type Observer interface {
	Observe(target *Sentinel)
	Disconnect()
}

// ObserverFactory creates an observer that reports to handle.
type ObserverFactory func(handle func([]Entry), opts Options) Observer

// Trigger owns one observer bound to the current sentinel and calls onTrigger
// at most once per delivered batch.
type Trigger struct {
	onTrigger func()
	factory   ObserverFactory

	mu     sync.Mutex
	opts   Options
	node   *Sentinel
	obs    Observer
	gen    uint64
	closed bool
}

// New returns a detached trigger. Nothing is observed until Attach.
func New(onTrigger func(), factory ObserverFactory, opts Options) *Trigger {
	return &Trigger{onTrigger: onTrigger, factory: factory, opts: opts}
}

// Attach observes node. Attaching the current node again is a no-op; any other
// node disconnects the previous observer first. A nil node only detaches.
func (t *Trigger) Attach(node *Sentinel) {
	t.mu.Lock()
	if t.closed || (node == t.node && (t.obs != nil || node == nil)) {
		t.mu.Unlock()
		return
	}
	old := t.obs
	t.obs = nil
	t.node = node
	t.gen++
	gen := t.gen
	opts := t.opts
	t.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	if node == nil {
		return
	}
	obs := t.factory(func(entries []Entry) { t.handle(gen, entries) }, opts)

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		obs.Disconnect()
		return
	}
	t.obs = obs
	t.mu.Unlock()
	// Observe may deliver synchronously, so it runs without the lock held.
	obs.Observe(node)
}

// SetEnabled toggles the callback without touching the observer.
func (t *Trigger) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.opts.Enabled = enabled
	t.mu.Unlock()
}

// Enabled reports the current gate.
func (t *Trigger) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts.Enabled
}

// Close disconnects the observer. The trigger cannot be reattached.
func (t *Trigger) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.gen++
	old := t.obs
	t.obs = nil
	t.node = nil
	t.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}
}

func (t *Trigger) handle(gen uint64, entries []Entry) {
	t.mu.Lock()
	live := gen == t.gen && !t.closed && t.opts.Enabled
	node := t.node
	threshold := t.opts.Threshold
	t.mu.Unlock()
	if !live {
		return
	}
	for _, e := range entries {
		if e.Target == node && e.Intersecting && e.Ratio >= threshold {
			t.onTrigger()
			return
		}
	}
}
