// Package tracker keeps a live registry of the visible top-level windows on a
// desktop. Start seeds the registry with a full scan, then a dedicated
// monitor thread applies hook events until the tracker is stopped.
//
// The seed scan and hook installation are not atomic: a window that changes
// between the two may be missed until its next event.
package tracker

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/window"
)

// Option configures Start.
type Option func(*options)

type options struct {
	log   *zerolog.Logger
	clock func() time.Time
}

// WithLogger sets the logger used by the tracker and its monitor.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = &l }
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// Tracker is a running window tracker. Stop it when done; a Tracker that is
// dropped without Stop is stopped by the garbage collector.
type Tracker struct {
	m        *monitor
	platform string
	cleanup  runtime.Cleanup
}

// Start launches the monitor and blocks until the registry is seeded and the
// hook is installed. On failure the returned error is a *StartupError and no
// tracker exists.
func Start(p window.Platform, opts ...Option) (*Tracker, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("tracker")
	}

	m := newMonitor(p, NewRegistry(), o.clock, o.log)
	go m.run()

	if err := <-m.ready; err != nil {
		<-m.done
		return nil, err
	}

	t := &Tracker{m: m, platform: p.Name()}
	t.cleanup = runtime.AddCleanup(t, func(m *monitor) {
		if err := m.stop(); err != nil {
			m.log.Error().Err(err).Msg("window tracker stopped by cleanup")
			return
		}
		m.log.Debug().Msg("window tracker stopped by cleanup")
	}, m)
	return t, nil
}

// Snapshot returns a point-in-time copy of the tracked windows.
func (t *Tracker) Snapshot() Snapshot {
	return t.m.reg.Snapshot()
}

// Len returns the number of tracked windows.
func (t *Tracker) Len() int {
	return t.m.reg.Len()
}

// Platform returns the name of the platform adapter in use.
func (t *Tracker) Platform() string {
	return t.platform
}

// Subscribe returns a channel that receives a signal after registry changes.
// Signals coalesce; read a fresh Snapshot on each. The channel is closed by
// Unsubscribe or when the monitor exits.
func (t *Tracker) Subscribe() <-chan struct{} {
	return t.m.subs.subscribe()
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (t *Tracker) Unsubscribe(ch <-chan struct{}) {
	t.m.subs.unsubscribe(ch)
}

// Done is closed once the monitor thread has exited, whether through Stop or
// a pump failure.
func (t *Tracker) Done() <-chan struct{} {
	return t.m.done
}

// Stop signals the monitor's pump, waits for the hook to be released and the
// thread to exit, and reports an abnormal monitor exit. Further calls are
// no-ops returning the same result.
//
// Stop has no timeout: if the platform never delivers the quit, it blocks.
func (t *Tracker) Stop() error {
	t.cleanup.Stop()
	return t.m.stop()
}

// Close implements io.Closer.
func (t *Tracker) Close() error {
	return t.Stop()
}
