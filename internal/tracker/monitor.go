package tracker

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

// monitorHook is the subscription every monitor installs: location and name
// changes, delivered on the monitor's own pump, ignoring our own windows.
var monitorHook = window.HookSpec{
	Min:   window.EventLocationChange,
	Max:   window.EventNameChange,
	Flags: window.HookOutOfContext | window.HookSkipOwnProcess,
}

// monitor owns the dedicated OS thread that seeds the registry, holds the
// platform hook and runs the event pump. It is the registry's only writer.
type monitor struct {
	platform window.Platform
	reg      *Registry
	clock    func() time.Time
	log      *zerolog.Logger
	subs     *broadcaster

	// ready receives exactly one value: nil once seeded and hooked, or the
	// startup failure.
	ready chan error
	// done is closed when run returns.
	done chan struct{}

	// Written by run before ready/done fire.
	ctx     window.ContextID
	exitErr error

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func newMonitor(p window.Platform, reg *Registry, clock func() time.Time, log *zerolog.Logger) *monitor {
	return &monitor{
		platform: p,
		reg:      reg,
		clock:    clock,
		log:      log,
		subs:     &broadcaster{},
		ready:    make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// run is the monitor goroutine. Startup order is fixed: seed, hook, signal
// ready, pump. The hook is released on every exit path, panics included.
func (m *monitor) run() {
	defer close(m.done)
	defer m.subs.close()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	readied := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := &MonitorPanicError{Value: r, Stack: debug.Stack()}
		m.log.Error().
			Interface("panic", r).
			Str("stack", string(err.Stack)).
			Msg("window monitor panicked")
		m.exitErr = err
		if !readied {
			m.ready <- &StartupError{Stage: "monitor", Err: err}
		}
	}()

	ctx, err := m.platform.CurrentContext()
	if err != nil {
		m.ready <- &StartupError{Stage: "context", Err: err}
		return
	}
	m.ctx = ctx

	seeded, err := enumerate(m.platform, m.reg, m.clock, m.log)
	if err != nil {
		m.ready <- &StartupError{Stage: "enumerate", Err: err}
		return
	}

	spec := monitorHook
	spec.Context = ctx
	tok, err := m.platform.InstallHook(spec, m.handle)
	if err != nil {
		m.ready <- &StartupError{Stage: "hook", Err: err}
		return
	}
	defer func() {
		if err := m.platform.UninstallHook(tok); err != nil {
			m.log.Warn().Err(err).Msg("failed to uninstall window event hook")
			return
		}
		m.log.Debug().Msg("window event hook released")
	}()

	m.log.Info().
		Str("platform", m.platform.Name()).
		Int("windows", seeded).
		Uint64("context", uint64(ctx)).
		Msg("window monitor ready")

	readied = true
	m.ready <- nil

	if err := m.platform.RunEventPump(ctx); err != nil {
		m.exitErr = fmt.Errorf("event pump failed: %w", err)
		m.log.Error().Err(err).Msg("event pump exited with error")
		return
	}
	m.log.Debug().Msg("event pump exited")
}

// handle is the hook callback. It runs on the monitor thread, one event at a
// time, so updates for a handle apply in delivery order.
func (m *monitor) handle(ev window.Event) {
	m.log.Trace().
		Stringer("hwnd", ev.Handle).
		Stringer("event", ev.Class).
		Int32("object", ev.ObjectID).
		Int32("child", ev.ChildID).
		Msg("window event")

	if m.stopping.Load() {
		return
	}
	// Sub-element events describe a control or caret, not the window.
	if !ev.Handle.Valid() || ev.ObjectID != 0 || ev.ChildID != 0 {
		return
	}
	if ev.Class != window.EventLocationChange && ev.Class != window.EventNameChange {
		return
	}

	if !m.platform.IsVisible(ev.Handle) {
		if m.reg.Remove(ev.Handle) {
			m.log.Debug().Stringer("hwnd", ev.Handle).Msg("window hidden")
			m.subs.notify()
		}
		return
	}

	info := queryInfo(m.platform, ev.Handle, m.clock(), m.log)
	m.reg.Upsert(ev.Handle, info)
	m.subs.notify()

	m.log.Info().
		Stringer("hwnd", ev.Handle).
		Stringer("event", ev.Class).
		Interface("rect", rectField(info)).
		Str("title", info.Title).
		Msg("window changed")
}

// stop posts a quit to the monitor's own pump and waits for run to return.
// Only the first call does any work.
func (m *monitor) stop() error {
	m.stopOnce.Do(func() {
		m.stopping.Store(true)
		select {
		case <-m.done:
		default:
			if err := m.platform.PostQuit(m.ctx); err != nil {
				m.log.Error().Err(err).Msg("failed to post quit to window monitor")
			}
			<-m.done
		}
		m.stopErr = m.exitErr
	})
	return m.stopErr
}

func rectField(info window.Info) any {
	if !info.HasRect {
		return nil
	}
	return info.Rect
}
