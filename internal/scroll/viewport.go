package scroll

import "sync"

// Viewport is a line-based visible window over rendered output. It hands out
// observers (see Observer) that report sentinel visibility whenever the
// window moves.
type Viewport struct {
	mu        sync.Mutex
	top       int
	height    int
	observers map[*lineObserver]struct{}
}

// NewViewport returns a viewport showing lines [0, height).
func NewViewport(height int) *Viewport {
	return &Viewport{height: height, observers: map[*lineObserver]struct{}{}}
}

// Observer satisfies ObserverFactory.
func (v *Viewport) Observer(handle func([]Entry), opts Options) Observer {
	return &lineObserver{v: v, handle: handle, margin: opts.RootMargin, last: map[*Sentinel]Entry{}}
}

// Window returns the first visible line and the height.
func (v *Viewport) Window() (top, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top, v.height
}

// Scroll moves the window and delivers an entry batch to every observer whose
// targets changed visibility.
func (v *Viewport) Scroll(top, height int) {
	if top < 0 {
		top = 0
	}
	type delivery struct {
		handle  func([]Entry)
		entries []Entry
	}
	v.mu.Lock()
	v.top, v.height = top, height
	var out []delivery
	for o := range v.observers {
		var changed []Entry
		for s, prev := range o.last {
			e := v.entryLocked(s, o.margin)
			if e != prev {
				o.last[s] = e
				changed = append(changed, e)
			}
		}
		if len(changed) > 0 {
			out = append(out, delivery{o.handle, changed})
		}
	}
	v.mu.Unlock()
	for _, d := range out {
		d.handle(d.entries)
	}
}

func (v *Viewport) entryLocked(s *Sentinel, margin int) Entry {
	h := max(s.Height, 1)
	lo := max(s.Line, v.top-margin)
	hi := min(s.Line+h, v.top+v.height+margin)
	visible := max(hi-lo, 0)
	return Entry{Target: s, Intersecting: visible > 0, Ratio: float64(visible) / float64(h)}
}

type lineObserver struct {
	v      *Viewport
	handle func([]Entry)
	margin int
	last   map[*Sentinel]Entry // guarded by v.mu
}

// Observe registers target and delivers its initial entry.
func (o *lineObserver) Observe(target *Sentinel) {
	if target == nil {
		return
	}
	o.v.mu.Lock()
	o.v.observers[o] = struct{}{}
	e := o.v.entryLocked(target, o.margin)
	o.last[target] = e
	o.v.mu.Unlock()
	o.handle([]Entry{e})
}

func (o *lineObserver) Disconnect() {
	o.v.mu.Lock()
	delete(o.v.observers, o)
	clear(o.last)
	o.v.mu.Unlock()
}
