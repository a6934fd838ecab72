// Package backend opens the window.Platform named by configuration.
package backend

import (
	"fmt"
	"runtime"

	"github.com/bryanchriswhite/wintracker/internal/config"
	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/window"
	"github.com/bryanchriswhite/wintracker/internal/window/fake"
	"github.com/bryanchriswhite/wintracker/internal/window/win32"
	"github.com/bryanchriswhite/wintracker/internal/window/x11"
)

// Resolve maps "auto" to the native backend for goos and returns any other
// name unchanged.
func Resolve(name, goos string) string {
	if name != config.BackendAuto {
		return name
	}
	if goos == "windows" {
		return config.BackendWin32
	}
	return config.BackendX11
}

// Open connects to the named backend.
func Open(name string) (window.Platform, error) {
	resolved := Resolve(name, runtime.GOOS)
	logger.WithComponent("backend").Debug().
		Str("requested", name).
		Str("backend", resolved).
		Msg("Opening window backend")

	switch resolved {
	case config.BackendWin32:
		return win32.New()
	case config.BackendX11:
		return x11.New()
	case config.BackendFake:
		return Demo(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// Demo returns a fake platform populated with a few sample windows, one of
// them hidden.
func Demo() *fake.Platform {
	return fake.New(
		fake.Window{Handle: 0x10010, Visible: true, Rect: window.Rect{Left: 0, Top: 0, Right: 1280, Bottom: 720}, Title: "Editor"},
		fake.Window{Handle: 0x10020, Visible: true, Rect: window.Rect{Left: 1280, Top: 0, Right: 1920, Bottom: 1080}, Title: "Terminal"},
		fake.Window{Handle: 0x10030, Visible: false, Rect: window.Rect{Left: 100, Top: 100, Right: 400, Bottom: 300}, Title: "Tray"},
		fake.Window{Handle: 0x10040, Visible: true, Rect: window.Rect{Left: 200, Top: 150, Right: 900, Bottom: 650}},
	)
}
