//go:build windows

package win32

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/window"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows          = user32.NewProc("EnumWindows")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procSetWinEventHook      = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent       = user32.NewProc("UnhookWinEvent")
	procGetMessageW          = user32.NewProc("GetMessageW")
	procPeekMessageW         = user32.NewProc("PeekMessageW")
	procTranslateMessage     = user32.NewProc("TranslateMessage")
	procDispatchMessageW     = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW   = user32.NewProc("PostThreadMessageW")
)

const (
	wmQuit     = 0x0012
	pmNoRemove = 0x0000

	wineventOutOfContext   = 0x0000
	wineventSkipOwnProcess = 0x0002
)

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd     windows.HWND
	Message  uint32
	WParam   uintptr
	LParam   uintptr
	Time     uint32
	Pt       point
	LPrivate uint32
}

// WinEvent callbacks carry no user data, so every hook shares one entry
// point that forwards by hook handle to the handler registered for it.
var (
	bindingsMu sync.RWMutex
	bindings   = make(map[uintptr]window.HookFunc)

	winEventProc = windows.NewCallback(func(hook, event, hwnd, idObject, idChild, thread, ms uintptr) uintptr {
		bindingsMu.RLock()
		fn := bindings[hook]
		bindingsMu.RUnlock()
		if fn != nil {
			fn(window.Event{
				Class:    window.EventClass(uint32(event)),
				Handle:   window.Handle(hwnd),
				ObjectID: int32(uint32(idObject)),
				ChildID:  int32(uint32(idChild)),
			})
		}
		return 0
	})

	// EnumWindows calls back synchronously on the enumerating thread;
	// enumMu serializes scans so enumOut belongs to one caller at a time.
	enumMu  sync.Mutex
	enumOut []window.Handle

	enumWindowsProc = windows.NewCallback(func(hwnd, lparam uintptr) uintptr {
		enumOut = append(enumOut, window.Handle(hwnd))
		return 1 // continue enumeration
	})
)

// Platform implements window.Platform on top of user32 WinEvent hooks.
type Platform struct{}

// New returns the Win32 platform adapter.
func New() (window.Platform, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("failed to load user32.dll: %w", err)
	}
	return &Platform{}, nil
}

// Name returns the adapter name
func (p *Platform) Name() string {
	return "win32"
}

func (p *Platform) EnumerateTopLevelWindows() ([]window.Handle, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumOut = nil
	r, _, err := procEnumWindows.Call(enumWindowsProc, 0)
	handles := enumOut
	enumOut = nil
	if r == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return handles, nil
}

func (p *Platform) IsVisible(h window.Handle) bool {
	r, _, _ := procIsWindowVisible.Call(uintptr(h))
	return r != 0
}

func (p *Platform) WindowRect(h window.Handle) (window.Rect, error) {
	var r windows.Rect
	ok, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r)))
	if ok == 0 {
		return window.Rect{}, fmt.Errorf("GetWindowRect(%s): %w", h, err)
	}
	return window.Rect{
		Left:   int(r.Left),
		Top:    int(r.Top),
		Right:  int(r.Right),
		Bottom: int(r.Bottom),
	}, nil
}

func (p *Platform) WindowTitle(h window.Handle) (string, error) {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(h))
	if int32(n) <= 0 {
		return "", fmt.Errorf("GetWindowTextLengthW(%s): no title", h)
	}
	buf := make([]uint16, n+1)
	copied, _, err := procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if int32(copied) <= 0 {
		return "", fmt.Errorf("GetWindowTextW(%s): %w", h, err)
	}
	return windows.UTF16ToString(buf[:copied]), nil
}

// CurrentContext returns the calling thread id and makes sure the thread
// owns a message queue, so a quit posted before the pump starts is kept.
func (p *Platform) CurrentContext() (window.ContextID, error) {
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)
	return window.ContextID(windows.GetCurrentThreadId()), nil
}

func (p *Platform) InstallHook(spec window.HookSpec, fn window.HookFunc) (window.HookToken, error) {
	if tid := windows.GetCurrentThreadId(); uint64(tid) != uint64(spec.Context) {
		return 0, fmt.Errorf("%w: hook for context %d installed from thread %d", window.ErrHookFailed, spec.Context, tid)
	}

	var flags uintptr = wineventOutOfContext
	if spec.Flags&window.HookSkipOwnProcess != 0 {
		flags |= wineventSkipOwnProcess
	}

	hook, _, err := procSetWinEventHook.Call(
		uintptr(spec.Min),
		uintptr(spec.Max),
		0, // no module: out-of-context
		winEventProc,
		0, // all processes
		0, // all threads
		flags,
	)
	if hook == 0 {
		return 0, fmt.Errorf("%w: SetWinEventHook: %v", window.ErrHookFailed, err)
	}

	// Out-of-context callbacks arrive through this thread's queue, which is
	// not pumped yet, so registering after the hook exists cannot miss one.
	bindingsMu.Lock()
	bindings[hook] = fn
	bindingsMu.Unlock()

	logger.WithComponent("win32").Debug().
		Uint64("hook", uint64(hook)).
		Uint64("thread", uint64(spec.Context)).
		Msg("WinEvent hook installed")
	return window.HookToken(hook), nil
}

func (p *Platform) UninstallHook(tok window.HookToken) error {
	bindingsMu.Lock()
	delete(bindings, uintptr(tok))
	bindingsMu.Unlock()

	r, _, err := procUnhookWinEvent.Call(uintptr(tok))
	if r == 0 {
		return fmt.Errorf("UnhookWinEvent: %w", err)
	}
	return nil
}

// RunEventPump runs a GetMessage loop until WM_QUIT.
func (p *Platform) RunEventPump(ctx window.ContextID) error {
	if tid := windows.GetCurrentThreadId(); uint64(tid) != uint64(ctx) {
		return fmt.Errorf("pump for thread %d started on thread %d", ctx, tid)
	}

	var m msg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case 0: // WM_QUIT
			return nil
		case -1:
			return fmt.Errorf("GetMessageW: %w", err)
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// PostQuit posts WM_QUIT to the pump thread's own queue.
func (p *Platform) PostQuit(ctx window.ContextID) error {
	r, _, err := procPostThreadMessageW.Call(uintptr(ctx), wmQuit, 0, 0)
	if r == 0 {
		return fmt.Errorf("PostThreadMessageW(%d, WM_QUIT): %w", ctx, err)
	}
	return nil
}

func (p *Platform) Close() error {
	return nil
}

var _ window.Platform = (*Platform)(nil)
