// Package fake provides an in-memory window.Platform for tests and for
// running the CLI without a window system.
package fake

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

// ErrQuery is returned by queries configured to fail.
var ErrQuery = errors.New("fake: query failed")

// Window is the scripted state of one fake window.
type Window struct {
	Handle   window.Handle
	Visible  bool
	Rect     window.Rect
	Title    string
	RectErr  bool
	TitleErr bool
	// PanicOnQuery makes rect and title queries panic.
	PanicOnQuery bool
}

type hook struct {
	spec window.HookSpec
	fn   window.HookFunc
	ctx  window.ContextID
}

type item struct {
	ev   window.Event
	done chan struct{}
}

type queue struct {
	items    chan item
	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
}

// Platform is a scripted window.Platform. The zero value is not usable; call
// New.
type Platform struct {
	mu      sync.Mutex
	order   []window.Handle
	windows map[window.Handle]*Window
	hooks   map[window.HookToken]*hook
	queues  map[window.ContextID]*queue

	nextCtx  atomic.Uint64
	nextHook atomic.Uintptr

	// HookErr, when set, makes InstallHook fail with it.
	HookErr error
	// EnumErr, when set, makes EnumerateTopLevelWindows fail with it.
	EnumErr error

	installs   atomic.Int32
	uninstalls atomic.Int32
	lastSpec   window.HookSpec
}

// New returns a platform that reports the given windows in order.
func New(windows ...Window) *Platform {
	p := &Platform{
		windows: make(map[window.Handle]*Window),
		hooks:   make(map[window.HookToken]*hook),
		queues:  make(map[window.ContextID]*queue),
	}
	for _, w := range windows {
		p.Set(w)
	}
	return p
}

// Set adds or replaces a window. New windows are appended to the
// enumeration order.
func (p *Platform) Set(w Window) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.windows[w.Handle]; !ok {
		p.order = append(p.order, w.Handle)
	}
	cp := w
	p.windows[w.Handle] = &cp
}

// Update mutates an existing window in place. It returns false when h is
// unknown.
func (p *Platform) Update(h window.Handle, fn func(*Window)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[h]
	if !ok {
		return false
	}
	fn(w)
	return true
}

// Destroy removes a window entirely.
func (p *Platform) Destroy(h window.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.windows, h)
	for i, o := range p.order {
		if o == h {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Name returns the adapter name
func (p *Platform) Name() string {
	return "fake"
}

func (p *Platform) EnumerateTopLevelWindows() ([]window.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnumErr != nil {
		return nil, p.EnumErr
	}
	out := make([]window.Handle, len(p.order))
	copy(out, p.order)
	return out, nil
}

func (p *Platform) IsVisible(h window.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[h]
	return ok && w.Visible
}

func (p *Platform) WindowRect(h window.Handle) (window.Rect, error) {
	w, err := p.lookup(h)
	if err != nil {
		return window.Rect{}, err
	}
	if w.PanicOnQuery {
		panic(fmt.Sprintf("fake: rect query for %s", h))
	}
	if w.RectErr {
		return window.Rect{}, ErrQuery
	}
	return w.Rect, nil
}

func (p *Platform) WindowTitle(h window.Handle) (string, error) {
	w, err := p.lookup(h)
	if err != nil {
		return "", err
	}
	if w.PanicOnQuery {
		panic(fmt.Sprintf("fake: title query for %s", h))
	}
	if w.TitleErr || w.Title == "" {
		return "", ErrQuery
	}
	return w.Title, nil
}

func (p *Platform) lookup(h window.Handle) (Window, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[h]
	if !ok {
		return Window{}, window.ErrNoWindow
	}
	return *w, nil
}

// CurrentContext allocates a fresh pump queue and returns its id.
func (p *Platform) CurrentContext() (window.ContextID, error) {
	id := window.ContextID(p.nextCtx.Add(1))
	p.mu.Lock()
	p.queues[id] = &queue{
		items:  make(chan item),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	p.mu.Unlock()
	return id, nil
}

// InstallHook binds fn to the pump of spec.Context.
func (p *Platform) InstallHook(spec window.HookSpec, fn window.HookFunc) (window.HookToken, error) {
	if p.HookErr != nil {
		return 0, fmt.Errorf("%w: %w", window.ErrHookFailed, p.HookErr)
	}
	if _, err := p.queue(spec.Context); err != nil {
		return 0, fmt.Errorf("%w: %w", window.ErrHookFailed, err)
	}
	tok := window.HookToken(p.nextHook.Add(1))
	p.mu.Lock()
	p.hooks[tok] = &hook{spec: spec, fn: fn, ctx: spec.Context}
	p.lastSpec = spec
	p.mu.Unlock()
	p.installs.Add(1)
	return tok, nil
}

func (p *Platform) UninstallHook(tok window.HookToken) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.hooks[tok]; !ok {
		return fmt.Errorf("fake: unknown hook %d", tok)
	}
	delete(p.hooks, tok)
	p.uninstalls.Add(1)
	return nil
}

// RunEventPump dispatches injected events until PostQuit(ctx).
func (p *Platform) RunEventPump(ctx window.ContextID) error {
	q, err := p.queue(ctx)
	if err != nil {
		return err
	}
	defer close(q.exited)
	for {
		select {
		case <-q.quit:
			return nil
		case it := <-q.items:
			p.dispatch(ctx, it.ev)
			close(it.done)
		}
	}
}

func (p *Platform) PostQuit(ctx window.ContextID) error {
	q, err := p.queue(ctx)
	if err != nil {
		return err
	}
	q.quitOnce.Do(func() { close(q.quit) })
	return nil
}

func (p *Platform) Close() error {
	return nil
}

func (p *Platform) queue(ctx window.ContextID) (*queue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[ctx]
	if !ok {
		return nil, fmt.Errorf("fake: unknown context %d", ctx)
	}
	return q, nil
}

func (p *Platform) dispatch(ctx window.ContextID, ev window.Event) {
	p.mu.Lock()
	var fns []window.HookFunc
	for _, h := range p.hooks {
		if h.ctx == ctx {
			fns = append(fns, h.fn)
		}
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Inject delivers ev to every installed hook through its pump and waits for
// the callbacks to return. Events outside a hook's range are delivered too, so
// callers can exercise their own filtering. It reports false when no pump
// accepted the event.
func (p *Platform) Inject(ev window.Event) bool {
	p.mu.Lock()
	seen := make(map[window.ContextID]bool)
	var targets []*queue
	for _, h := range p.hooks {
		if seen[h.ctx] {
			continue
		}
		seen[h.ctx] = true
		if q, ok := p.queues[h.ctx]; ok {
			targets = append(targets, q)
		}
	}
	p.mu.Unlock()

	delivered := false
	for _, q := range targets {
		it := item{ev: ev, done: make(chan struct{})}
		select {
		case q.items <- it:
			select {
			case <-it.done:
				delivered = true
			case <-q.exited:
			}
		case <-q.exited:
		case <-q.quit:
		}
	}
	return delivered
}

// Installs returns how many hooks have been installed.
func (p *Platform) Installs() int { return int(p.installs.Load()) }

// Uninstalls returns how many hooks have been released.
func (p *Platform) Uninstalls() int { return int(p.uninstalls.Load()) }

// ActiveHooks returns the number of hooks currently installed.
func (p *Platform) ActiveHooks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hooks)
}

// LastHookSpec returns the spec passed to the most recent InstallHook.
func (p *Platform) LastHookSpec() window.HookSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSpec
}

var _ window.Platform = (*Platform)(nil)
