//go:build !windows

package win32

import (
	"errors"
	"testing"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

func TestNewUnsupported(t *testing.T) {
	if _, err := New(); !errors.Is(err, window.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
