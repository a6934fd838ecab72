package tracker

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/wintracker/internal/window"
	"github.com/bryanchriswhite/wintracker/internal/window/fake"
)

const (
	hwndA window.Handle = 0xA
	hwndB window.Handle = 0xB
)

// stepClock returns a clock that advances 1ms per reading.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Unix(1700000000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func startTracker(t *testing.T, p *fake.Platform) *Tracker {
	t.Helper()
	tr, err := Start(p, WithLogger(zerolog.Nop()), WithClock(stepClock()))
	if err != nil {
		t.Fatalf("start tracker: %v", err)
	}
	t.Cleanup(func() { _ = tr.Stop() })
	return tr
}

func alphaPlatform() *fake.Platform {
	return fake.New(
		fake.Window{Handle: hwndA, Visible: true, Rect: window.Rect{Left: 0, Top: 0, Right: 100, Bottom: 50}, Title: "Alpha"},
		fake.Window{Handle: hwndB, Visible: false, Rect: window.Rect{Right: 10, Bottom: 10}, Title: "Beta"},
	)
}

func inject(t *testing.T, p *fake.Platform, ev window.Event) {
	t.Helper()
	if !p.Inject(ev) {
		t.Fatalf("event %+v was not delivered", ev)
	}
}

func TestStartSeedsBeforeReturning(t *testing.T) {
	p := alphaPlatform()
	tr := startTracker(t, p)

	snap := tr.Snapshot()
	if snap.Len() != 1 {
		t.Fatalf("expected 1 window right after Start, got %d:\n%s", snap.Len(), snap)
	}
	e, ok := snap.Lookup(hwndA)
	if !ok {
		t.Fatalf("window A missing:\n%s", snap)
	}
	if !e.HasRect || e.Rect != (window.Rect{Left: 0, Top: 0, Right: 100, Bottom: 50}) {
		t.Fatalf("unexpected rect %+v", e.Info)
	}
	if !e.HasTitle || e.Title != "Alpha" {
		t.Fatalf("unexpected title %+v", e.Info)
	}
	if _, ok := snap.Lookup(hwndB); ok {
		t.Fatalf("invisible window B must not be tracked")
	}
}

func TestInstallsLocationAndNameHook(t *testing.T) {
	p := alphaPlatform()
	startTracker(t, p)

	spec := p.LastHookSpec()
	if spec.Min != window.EventLocationChange || spec.Max != window.EventNameChange {
		t.Fatalf("unexpected event range %v..%v", spec.Min, spec.Max)
	}
	want := window.HookOutOfContext | window.HookSkipOwnProcess
	if spec.Flags != want {
		t.Fatalf("hook flags = %b, want %b", spec.Flags, want)
	}
	if p.ActiveHooks() != 1 {
		t.Fatalf("expected one active hook, got %d", p.ActiveHooks())
	}
}

func TestLocationChangeThenHide(t *testing.T) {
	p := alphaPlatform()
	tr := startTracker(t, p)

	p.Update(hwndA, func(w *fake.Window) {
		w.Rect = window.Rect{Left: 10, Top: 10, Right: 110, Bottom: 60}
	})
	inject(t, p, window.Event{Class: window.EventLocationChange, Handle: hwndA})

	e, ok := tr.Snapshot().Lookup(hwndA)
	if !ok {
		t.Fatalf("window A vanished after a move")
	}
	if e.Rect != (window.Rect{Left: 10, Top: 10, Right: 110, Bottom: 60}) {
		t.Fatalf("rect not updated: %v", e.Rect)
	}
	if e.Title != "Alpha" {
		t.Fatalf("title changed unexpectedly: %q", e.Title)
	}

	p.Update(hwndA, func(w *fake.Window) { w.Visible = false })
	inject(t, p, window.Event{Class: window.EventLocationChange, Handle: hwndA})

	if snap := tr.Snapshot(); snap.Len() != 0 {
		t.Fatalf("expected empty snapshot after A was hidden, got:\n%s", snap)
	}
}

func TestNameChangeAndNewWindow(t *testing.T) {
	p := alphaPlatform()
	tr := startTracker(t, p)

	p.Update(hwndA, func(w *fake.Window) { w.Title = "Alpha - edited" })
	inject(t, p, window.Event{Class: window.EventNameChange, Handle: hwndA})
	if e, _ := tr.Snapshot().Lookup(hwndA); e.Title != "Alpha - edited" {
		t.Fatalf("title not updated: %q", e.Title)
	}

	// B becomes visible: first event for it creates the entry.
	p.Update(hwndB, func(w *fake.Window) { w.Visible = true })
	inject(t, p, window.Event{Class: window.EventLocationChange, Handle: hwndB})
	if _, ok := tr.Snapshot().Lookup(hwndB); !ok {
		t.Fatalf("window B not tracked after becoming visible")
	}
}

func TestMalformedEventsNeverMutate(t *testing.T) {
	p := alphaPlatform()
	p.Update(hwndB, func(w *fake.Window) { w.Visible = true })
	tr := startTracker(t, p)

	// Make any re-query observable.
	p.Update(hwndA, func(w *fake.Window) { w.Title = "changed"; w.Visible = false })
	p.Update(hwndB, func(w *fake.Window) { w.Title = "changed" })
	before := tr.Snapshot()

	events := []window.Event{
		{Class: window.EventLocationChange, Handle: 0},
		{Class: window.EventNameChange, Handle: 0},
		{Class: window.EventLocationChange, Handle: hwndA, ObjectID: -1},
		{Class: window.EventNameChange, Handle: hwndB, ObjectID: -8},
		{Class: window.EventLocationChange, Handle: hwndA, ChildID: 3},
		{Class: window.EventNameChange, Handle: hwndB, ObjectID: -4, ChildID: 1},
		{Class: window.EventClass(0x8001), Handle: hwndA},
		{Class: window.EventClass(0x800E), Handle: hwndB},
		{Class: window.EventClass(0x0003), Handle: hwndA},
	}
	for _, ev := range events {
		inject(t, p, ev)
	}

	if after := tr.Snapshot(); !after.Equal(before) {
		t.Fatalf("malformed events mutated the registry:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestPerFieldQueryFailures(t *testing.T) {
	p := fake.New(
		fake.Window{Handle: 1, Visible: true, RectErr: true, Title: "no rect"},
		fake.Window{Handle: 2, Visible: true, Rect: window.Rect{Right: 5, Bottom: 5}, TitleErr: true},
		fake.Window{Handle: 3, Visible: true, RectErr: true, TitleErr: true},
	)
	tr := startTracker(t, p)

	snap := tr.Snapshot()
	if snap.Len() != 3 {
		t.Fatalf("a failed query must not drop the window; got:\n%s", snap)
	}
	if e, _ := snap.Lookup(1); e.HasRect || !e.HasTitle || e.Title != "no rect" {
		t.Fatalf("window 1: %+v", e.Info)
	}
	if e, _ := snap.Lookup(2); !e.HasRect || e.HasTitle {
		t.Fatalf("window 2: %+v", e.Info)
	}
	if e, _ := snap.Lookup(3); e.HasRect || e.HasTitle {
		t.Fatalf("window 3: %+v", e.Info)
	}

	// Events re-sample; a recovered field becomes present.
	p.Update(1, func(w *fake.Window) { w.RectErr = false; w.Rect = window.Rect{Right: 7, Bottom: 7} })
	inject(t, p, window.Event{Class: window.EventLocationChange, Handle: 1})
	if e, _ := tr.Snapshot().Lookup(1); !e.HasRect || e.Rect.Right != 7 {
		t.Fatalf("rect not recovered: %+v", e.Info)
	}
}

func TestRepeatedEventIsIdempotent(t *testing.T) {
	p := alphaPlatform()
	tr := startTracker(t, p)

	ev := window.Event{Class: window.EventLocationChange, Handle: hwndA}
	inject(t, p, ev)
	first := tr.Snapshot()
	inject(t, p, ev)
	second := tr.Snapshot()

	if !first.SameWindows(second) {
		t.Fatalf("repeated event changed state:\n%s\n%s", first, second)
	}
	a, _ := first.Lookup(hwndA)
	b, _ := second.Lookup(hwndA)
	if b.Timestamp.Before(a.Timestamp) {
		t.Fatalf("timestamp went backwards: %v -> %v", a.Timestamp, b.Timestamp)
	}
}

func TestRandomEventSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	handles := []window.Handle{1, 2, 3, 4, 5, 6}

	p := fake.New()
	for _, h := range handles {
		p.Set(fake.Window{Handle: h, Title: "w"})
	}
	tr := startTracker(t, p)
	if tr.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", tr.Len())
	}

	lastVisible := make(map[window.Handle]bool)
	for i := 0; i < 300; i++ {
		h := handles[rng.Intn(len(handles))]
		visible := rng.Intn(3) != 0
		p.Update(h, func(w *fake.Window) {
			w.Visible = visible
			w.Rect = window.Rect{Left: i, Right: i + 1}
		})
		class := window.EventLocationChange
		if rng.Intn(2) == 0 {
			class = window.EventNameChange
		}
		inject(t, p, window.Event{Class: class, Handle: h})
		lastVisible[h] = visible
	}

	snap := tr.Snapshot()
	for _, h := range handles {
		seen, ok := lastVisible[h]
		_, tracked := snap.Lookup(h)
		switch {
		case ok && seen && !tracked:
			t.Errorf("handle %v: last event visible but not tracked", h)
		case ok && !seen && tracked:
			t.Errorf("handle %v: last event invisible but still tracked", h)
		case !ok && tracked:
			t.Errorf("handle %v: never observed but tracked", h)
		}
	}
}

func TestStartFailsWhenHookFails(t *testing.T) {
	p := alphaPlatform()
	p.HookErr = errors.New("access denied")

	tr, err := Start(p, WithLogger(zerolog.Nop()))
	if err == nil {
		tr.Stop()
		t.Fatalf("expected startup error")
	}
	var se *StartupError
	if !errors.As(err, &se) || se.Stage != "hook" {
		t.Fatalf("expected hook StartupError, got %v", err)
	}
	if !errors.Is(err, window.ErrHookFailed) {
		t.Fatalf("expected ErrHookFailed in chain, got %v", err)
	}
	if p.ActiveHooks() != 0 {
		t.Fatalf("failed start left %d hooks installed", p.ActiveHooks())
	}
}

func TestStartFailsWhenEnumerationFails(t *testing.T) {
	p := alphaPlatform()
	p.EnumErr = errors.New("desktop locked")

	_, err := Start(p, WithLogger(zerolog.Nop()))
	var se *StartupError
	if !errors.As(err, &se) || se.Stage != "enumerate" {
		t.Fatalf("expected enumerate StartupError, got %v", err)
	}
	if p.Installs() != 0 {
		t.Fatalf("hook must not be installed when seeding fails")
	}
}

func TestPanicDuringSeedFailsStart(t *testing.T) {
	p := fake.New(fake.Window{Handle: 1, Visible: true, PanicOnQuery: true})

	_, err := Start(p, WithLogger(zerolog.Nop()))
	var pe *MonitorPanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected MonitorPanicError, got %v", err)
	}
	var se *StartupError
	if !errors.As(err, &se) || se.Stage != "monitor" {
		t.Fatalf("expected monitor StartupError, got %v", err)
	}
	if p.ActiveHooks() != 0 {
		t.Fatalf("panic left a hook installed")
	}
}

func TestStopIsIdempotentAndReleasesHook(t *testing.T) {
	p := alphaPlatform()
	tr, err := Start(p, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.ActiveHooks() != 0 || p.Uninstalls() != 1 {
		t.Fatalf("hook not released: active=%d uninstalls=%d", p.ActiveHooks(), p.Uninstalls())
	}
	select {
	case <-tr.Done():
	default:
		t.Fatalf("Done not closed after Stop")
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close after stop: %v", err)
	}
	if p.Uninstalls() != 1 {
		t.Fatalf("repeated stop uninstalled again: %d", p.Uninstalls())
	}
}

func TestNoMutationAfterStop(t *testing.T) {
	p := alphaPlatform()
	tr, err := Start(p, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	before := tr.Snapshot()

	p.Update(hwndA, func(w *fake.Window) { w.Visible = false })
	p.Update(hwndB, func(w *fake.Window) { w.Visible = true })
	for _, h := range []window.Handle{hwndA, hwndB} {
		if p.Inject(window.Event{Class: window.EventLocationChange, Handle: h}) {
			t.Fatalf("event delivered after stop")
		}
	}
	time.Sleep(20 * time.Millisecond)

	if after := tr.Snapshot(); !after.Equal(before) {
		t.Fatalf("registry changed after stop:\n%s\n%s", before, after)
	}
}

func TestMonitorPanicSurfacesFromStop(t *testing.T) {
	p := alphaPlatform()
	tr, err := Start(p, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	p.Update(hwndA, func(w *fake.Window) { w.PanicOnQuery = true })
	p.Inject(window.Event{Class: window.EventNameChange, Handle: hwndA})

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("monitor did not exit after panic")
	}

	err = tr.Stop()
	var pe *MonitorPanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected MonitorPanicError from Stop, got %v", err)
	}
	if len(pe.Stack) == 0 {
		t.Fatalf("panic stack not captured")
	}
	if p.ActiveHooks() != 0 {
		t.Fatalf("panic left a hook installed")
	}
}

func TestSubscribeSignalsChanges(t *testing.T) {
	p := alphaPlatform()
	tr := startTracker(t, p)

	ch := tr.Subscribe()
	p.Update(hwndA, func(w *fake.Window) { w.Title = "Alpha 2" })
	inject(t, p, window.Event{Class: window.EventNameChange, Handle: hwndA})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("no change signal")
	}

	// Filtered events do not signal.
	inject(t, p, window.Event{Class: window.EventNameChange, Handle: hwndA, ObjectID: -4})
	select {
	case <-ch:
		t.Fatalf("filtered event signalled a change")
	default:
	}

	tr.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed by Unsubscribe")
	}
}

func TestSubscriptionsCloseOnStop(t *testing.T) {
	p := alphaPlatform()
	tr, err := Start(p, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ch := tr.Subscribe()
	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("subscription still open after stop")
	}
	if _, ok := <-tr.Subscribe(); ok {
		t.Fatalf("subscribe after stop must return a closed channel")
	}
}

func TestIndependentTrackers(t *testing.T) {
	p := alphaPlatform()
	first := startTracker(t, p)
	second, err := Start(p, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if err := second.Stop(); err != nil {
		t.Fatalf("stop second: %v", err)
	}

	p.Update(hwndA, func(w *fake.Window) { w.Title = "still tracked" })
	inject(t, p, window.Event{Class: window.EventNameChange, Handle: hwndA})

	if e, _ := first.Snapshot().Lookup(hwndA); e.Title != "still tracked" {
		t.Fatalf("first tracker stopped updating: %q", e.Title)
	}
	if e, _ := second.Snapshot().Lookup(hwndA); e.Title != "Alpha" {
		t.Fatalf("stopped tracker was updated: %q", e.Title)
	}
}

func TestDroppedTrackerIsStopped(t *testing.T) {
	p := alphaPlatform()
	func() {
		if _, err := Start(p, WithLogger(zerolog.Nop())); err != nil {
			t.Fatalf("start: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for p.ActiveHooks() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("dropped tracker still holds its hook")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if p.Uninstalls() != 1 {
		t.Fatalf("expected one uninstall, got %d", p.Uninstalls())
	}
}
