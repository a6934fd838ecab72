//go:build !windows

package win32

import (
	"fmt"
	"runtime"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

// New reports that the Win32 adapter is unavailable on this system.
func New() (window.Platform, error) {
	return nil, fmt.Errorf("win32 on %s: %w", runtime.GOOS, window.ErrUnsupported)
}
