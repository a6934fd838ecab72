// Package x11 adapts an X11 display to window.Platform.
//
// There is no global window-event hook in X11, so the adapter builds one:
// it selects StructureNotify and PropertyChange on every managed client and
// PropertyChange on the root window, and translates the resulting events
// into window.EventLocationChange and window.EventNameChange. The pump is
// xevent.Main; quit is a ClientMessage sent to a private, never-mapped window
// owned by the pump's connection.
package x11

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/window"
)

// Platform implements window.Platform for one X11 connection. Each Platform
// supports a single installed hook.
type Platform struct {
	X    *xgbutil.XUtil
	root xproto.Window
	pid  uint
	log  *zerolog.Logger

	// wake is the private window PostQuit targets.
	wake     *xwindow.Window
	wakeAtom xproto.Atom

	netWmName  xproto.Atom
	wmName     xproto.Atom
	netWmState xproto.Atom
	clientList xproto.Atom

	mu      sync.Mutex
	hook    *binding
	hookSeq window.HookToken
}

type binding struct {
	token   window.HookToken
	spec    window.HookSpec
	fn      window.HookFunc
	watched map[xproto.Window]bool
}

// New connects to the display named by $DISPLAY.
func New() (window.Platform, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	p := &Platform{
		X:    X,
		root: X.RootWin(),
		pid:  uint(os.Getpid()),
		log:  logger.WithComponent("x11"),
	}

	atoms := map[string]*xproto.Atom{
		"_NET_WM_NAME":        &p.netWmName,
		"WM_NAME":             &p.wmName,
		"_NET_WM_STATE":       &p.netWmState,
		"_NET_CLIENT_LIST":    &p.clientList,
		"_WINTRACKER_WAKE_UP": &p.wakeAtom,
	}
	for name, dst := range atoms {
		atom, err := xprop.Atm(X, name)
		if err != nil {
			X.Conn().Close()
			return nil, fmt.Errorf("failed to intern %s: %w", name, err)
		}
		*dst = atom
	}

	wake, err := xwindow.Generate(X)
	if err != nil {
		X.Conn().Close()
		return nil, fmt.Errorf("failed to allocate wake window: %w", err)
	}
	if err := wake.CreateChecked(p.root, -1, -1, 1, 1, 0); err != nil {
		X.Conn().Close()
		return nil, fmt.Errorf("failed to create wake window: %w", err)
	}
	p.wake = wake

	return p, nil
}

// Name returns the backend name
func (p *Platform) Name() string {
	return "x11"
}

// EnumerateTopLevelWindows returns managed clients from _NET_CLIENT_LIST,
// falling back to the root window's children.
func (p *Platform) EnumerateTopLevelWindows() ([]window.Handle, error) {
	clients, err := ewmh.ClientListGet(p.X)
	if err == nil && len(clients) > 0 {
		p.log.Debug().Int("count", len(clients)).Msg("enumerate: using EWMH _NET_CLIENT_LIST")
		return toHandles(clients), nil
	}
	if err != nil {
		p.log.Debug().Err(err).Msg("enumerate: EWMH failed, falling back to QueryTree")
	}

	tree, err := xproto.QueryTree(p.X.Conn(), p.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query root window tree: %w", err)
	}
	p.log.Debug().Int("count", len(tree.Children)).Msg("enumerate: using QueryTree fallback")
	return toHandles(tree.Children), nil
}

func toHandles(wins []xproto.Window) []window.Handle {
	out := make([]window.Handle, 0, len(wins))
	for _, w := range wins {
		out = append(out, window.Handle(w))
	}
	return out
}

// IsVisible reports a viewable map state without _NET_WM_STATE_HIDDEN.
func (p *Platform) IsVisible(h window.Handle) bool {
	win := xproto.Window(h)
	attrs, err := xproto.GetWindowAttributes(p.X.Conn(), win).Reply()
	if err != nil || attrs.MapState != xproto.MapStateViewable {
		return false
	}
	states, err := ewmh.WmStateGet(p.X, win)
	if err != nil {
		return true
	}
	for _, s := range states {
		if s == "_NET_WM_STATE_HIDDEN" {
			return false
		}
	}
	return true
}

// WindowRect returns the frame geometry including decorations.
func (p *Platform) WindowRect(h window.Handle) (window.Rect, error) {
	geom, err := xwindow.New(p.X, xproto.Window(h)).DecorGeometry()
	if err != nil {
		return window.Rect{}, fmt.Errorf("failed to get geometry of %s: %w", h, err)
	}
	return window.Rect{
		Left:   geom.X(),
		Top:    geom.Y(),
		Right:  geom.X() + geom.Width(),
		Bottom: geom.Y() + geom.Height(),
	}, nil
}

// WindowTitle reads _NET_WM_NAME, then WM_NAME.
func (p *Platform) WindowTitle(h window.Handle) (string, error) {
	win := xproto.Window(h)
	if title, err := ewmh.WmNameGet(p.X, win); err == nil && title != "" {
		return title, nil
	}
	title, err := icccm.WmNameGet(p.X, win)
	if err != nil {
		return "", fmt.Errorf("failed to get title of %s: %w", h, err)
	}
	if title == "" {
		return "", fmt.Errorf("window %s has no title", h)
	}
	return title, nil
}

// CurrentContext identifies the pump by its wake window. X11 events are
// per connection, so any goroutine may run the pump.
func (p *Platform) CurrentContext() (window.ContextID, error) {
	return window.ContextID(p.wake.Id), nil
}

// InstallHook starts listening on the root window and every current client.
func (p *Platform) InstallHook(spec window.HookSpec, fn window.HookFunc) (window.HookToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hook != nil {
		return 0, fmt.Errorf("%w: x11 platform already has a hook", window.ErrHookFailed)
	}
	if spec.Context != window.ContextID(p.wake.Id) {
		return 0, fmt.Errorf("%w: unknown context %d", window.ErrHookFailed, spec.Context)
	}

	root := xwindow.New(p.X, p.root)
	if err := root.Listen(xproto.EventMaskPropertyChange); err != nil {
		return 0, fmt.Errorf("%w: failed to select root events: %v", window.ErrHookFailed, err)
	}

	p.hookSeq++
	b := &binding{
		token:   p.hookSeq,
		spec:    spec,
		fn:      fn,
		watched: make(map[xproto.Window]bool),
	}
	p.hook = b

	xevent.PropertyNotifyFun(func(X *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if ev.Atom == p.clientList {
			p.syncClients(b)
		}
	}).Connect(p.X, p.root)

	xevent.ClientMessageFun(func(X *xgbutil.XUtil, ev xevent.ClientMessageEvent) {
		if ev.Type == p.wakeAtom {
			p.log.Debug().Msg("wake message received, leaving event loop")
			xevent.Quit(X)
		}
	}).Connect(p.X, p.wake.Id)

	clients, err := p.EnumerateTopLevelWindows()
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to list clients while installing hook")
	}
	for _, h := range clients {
		p.watch(b, xproto.Window(h))
	}

	p.log.Debug().Int("clients", len(b.watched)).Msg("x11 hook installed")
	return b.token, nil
}

// syncClients watches windows that joined _NET_CLIENT_LIST and reports them
// as location changes so they enter the registry.
func (p *Platform) syncClients(b *binding) {
	clients, err := ewmh.ClientListGet(p.X)
	if err != nil {
		p.log.Debug().Err(err).Msg("failed to refresh client list")
		return
	}
	for _, win := range clients {
		if b.watched[win] {
			continue
		}
		if p.watch(b, win) {
			p.emit(b, window.EventLocationChange, win)
		}
	}
}

// watch subscribes to structure and property events of win. Windows owned by
// this process are skipped when the hook asks for it.
func (p *Platform) watch(b *binding, win xproto.Window) bool {
	if b.spec.Flags&window.HookSkipOwnProcess != 0 {
		if pid, err := ewmh.WmPidGet(p.X, win); err == nil && pid == p.pid {
			return false
		}
	}

	xw := xwindow.New(p.X, win)
	if err := xw.Listen(xproto.EventMaskStructureNotify, xproto.EventMaskPropertyChange); err != nil {
		p.log.Debug().Err(err).Uint32("window", uint32(win)).Msg("failed to select window events")
		return false
	}
	b.watched[win] = true

	xevent.ConfigureNotifyFun(func(X *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
		p.emit(b, window.EventLocationChange, ev.Window)
	}).Connect(p.X, win)
	xevent.MapNotifyFun(func(X *xgbutil.XUtil, ev xevent.MapNotifyEvent) {
		p.emit(b, window.EventLocationChange, ev.Window)
	}).Connect(p.X, win)
	xevent.UnmapNotifyFun(func(X *xgbutil.XUtil, ev xevent.UnmapNotifyEvent) {
		p.emit(b, window.EventLocationChange, ev.Window)
	}).Connect(p.X, win)
	xevent.DestroyNotifyFun(func(X *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
		p.emit(b, window.EventLocationChange, ev.Window)
		xevent.Detach(X, ev.Window)
		delete(b.watched, ev.Window)
	}).Connect(p.X, win)
	xevent.PropertyNotifyFun(func(X *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		switch ev.Atom {
		case p.netWmName, p.wmName:
			p.emit(b, window.EventNameChange, ev.Window)
		case p.netWmState:
			p.emit(b, window.EventLocationChange, ev.Window)
		}
	}).Connect(p.X, win)
	return true
}

func (p *Platform) emit(b *binding, class window.EventClass, win xproto.Window) {
	if !b.spec.Covers(class) {
		return
	}
	b.fn(window.Event{Class: class, Handle: window.Handle(win)})
}

func (p *Platform) UninstallHook(tok window.HookToken) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hook == nil || p.hook.token != tok {
		return fmt.Errorf("unknown x11 hook %d", tok)
	}
	for win := range p.hook.watched {
		xevent.Detach(p.X, win)
	}
	xevent.Detach(p.X, p.root)
	xevent.Detach(p.X, p.wake.Id)
	p.hook = nil
	return nil
}

// RunEventPump runs xevent.Main until the wake message arrives. The quit
// flag left by a previous pump is cleared first, so a Platform can serve one
// tracker after another.
func (p *Platform) RunEventPump(ctx window.ContextID) error {
	if ctx != window.ContextID(p.wake.Id) {
		return fmt.Errorf("unknown x11 context %d", ctx)
	}
	p.X.Quit = false
	xevent.Main(p.X)
	return nil
}

// PostQuit sends the wake ClientMessage. Setting the quit flag alone would
// not interrupt the blocking wait inside xevent.Main.
func (p *Platform) PostQuit(ctx window.ContextID) error {
	if ctx != window.ContextID(p.wake.Id) {
		return fmt.Errorf("unknown x11 context %d", ctx)
	}
	cm, err := xevent.NewClientMessage(32, p.wake.Id, p.wakeAtom)
	if err != nil {
		return fmt.Errorf("failed to build wake message: %w", err)
	}
	// Empty event mask: delivered to the client that created the window.
	if err := xproto.SendEventChecked(p.X.Conn(), false, p.wake.Id, 0, string(cm.Bytes())).Check(); err != nil {
		return fmt.Errorf("failed to send wake message: %w", err)
	}
	return nil
}

// Close destroys the wake window and closes the connection.
func (p *Platform) Close() error {
	if p.wake != nil {
		p.wake.Destroy()
	}
	p.X.Conn().Close()
	return nil
}

var _ window.Platform = (*Platform)(nil)
