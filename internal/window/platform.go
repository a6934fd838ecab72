package window

import (
	"errors"
)

var (
	// ErrHookFailed is returned (wrapped) by InstallHook when the platform
	// refuses the subscription.
	ErrHookFailed = errors.New("window event hook installation failed")

	// ErrNoWindow is returned by the per-window queries when the handle no
	// longer refers to a window.
	ErrNoWindow = errors.New("no such window")

	// ErrUnsupported is returned by adapters that cannot run on the current
	// system.
	ErrUnsupported = errors.New("window platform not supported on this system")
)

// HookFlags modify how hook callbacks are delivered.
type HookFlags uint32

const (
	// HookOutOfContext delivers callbacks on the installing context's pump
	// instead of inside the process that generated the event.
	HookOutOfContext HookFlags = 1 << iota
	// HookSkipOwnProcess drops events generated by windows of this process.
	HookSkipOwnProcess
)

// HookSpec describes a hook subscription: an inclusive range of event
// classes, delivery flags, and the context whose pump receives the callbacks.
type HookSpec struct {
	Min     EventClass
	Max     EventClass
	Flags   HookFlags
	Context ContextID
}

// Covers reports whether c falls inside the subscribed range.
func (s HookSpec) Covers(c EventClass) bool {
	return c >= s.Min && c <= s.Max
}

// HookFunc receives hook events. It is invoked on the context that runs the
// event pump, one event at a time.
type HookFunc func(Event)

// HookToken identifies an installed hook.
type HookToken uintptr

// ContextID identifies the execution context (OS thread) that owns an event
// pump. Quit signals are addressed to a ContextID.
type ContextID uint64

// Platform is the window-system collaborator the tracker is built on.
//
// Queries may be called from any goroutine. CurrentContext, InstallHook,
// RunEventPump and UninstallHook must be called from the same OS-locked
// goroutine; PostQuit may be called from anywhere.
type Platform interface {
	// Name returns the adapter name (e.g., "win32", "x11", "fake")
	Name() string

	// EnumerateTopLevelWindows lists top-level windows in platform order,
	// visible or not.
	EnumerateTopLevelWindows() ([]Handle, error)

	// IsVisible reports whether h is a currently visible window. Unknown or
	// destroyed handles are not visible.
	IsVisible(h Handle) bool

	// WindowRect returns the screen rectangle of h.
	WindowRect(h Handle) (Rect, error)

	// WindowTitle returns the title of h. An empty title is reported as an
	// error so callers record it as absent.
	WindowTitle(h Handle) (string, error)

	// CurrentContext prepares the calling OS thread to run a pump and
	// returns its identifier.
	CurrentContext() (ContextID, error)

	// InstallHook subscribes fn to the events described by spec. Errors
	// wrap ErrHookFailed.
	InstallHook(spec HookSpec, fn HookFunc) (HookToken, error)

	// UninstallHook releases a hook returned by InstallHook.
	UninstallHook(tok HookToken) error

	// RunEventPump blocks, dispatching hook callbacks, until a quit posted
	// to ctx arrives.
	RunEventPump(ctx ContextID) error

	// PostQuit delivers a quit signal to the pump running on ctx.
	PostQuit(ctx ContextID) error

	// Close releases adapter resources such as display connections
	Close() error
}
