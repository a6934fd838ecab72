// Package window defines the platform-neutral vocabulary shared by the
// tracker and the platform adapters: handles, geometry, per-window state and
// the hook events that keep it current.
package window

import (
	"fmt"
	"time"
)

// Handle is the opaque, platform-assigned identifier of a top-level window.
// It is stable for the lifetime of the window. Zero is never a valid handle.
type Handle uintptr

// Valid reports whether h can refer to a window.
func (h Handle) Valid() bool {
	return h != 0
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%X", uintptr(h))
}

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// Width returns the horizontal extent of r.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the vertical extent of r.
func (r Rect) Height() int { return r.Bottom - r.Top }

func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Info is the last observed state of a window. Rect and Title are optional:
// HasRect/HasTitle are false when the corresponding platform query failed.
type Info struct {
	Rect      Rect
	HasRect   bool
	Title     string
	HasTitle  bool
	Timestamp time.Time
}

// Equal compares every field. Timestamps are compared with time.Time.Equal
// so monotonic readings do not affect the result.
func (i Info) Equal(o Info) bool {
	return i.SameState(o) && i.Timestamp.Equal(o.Timestamp)
}

// SameState compares geometry and title, ignoring the timestamp.
func (i Info) SameState(o Info) bool {
	if i.HasRect != o.HasRect || (i.HasRect && i.Rect != o.Rect) {
		return false
	}
	if i.HasTitle != o.HasTitle || (i.HasTitle && i.Title != o.Title) {
		return false
	}
	return true
}

// EventClass identifies the kind of change a hook event reports. The values
// follow the Win32 WinEvent numbering; other adapters translate into them.
type EventClass uint32

const (
	// EventLocationChange reports that an object moved, resized, or changed
	// visibility.
	EventLocationChange EventClass = 0x800B
	// EventNameChange reports that an object's name (a window's title)
	// changed.
	EventNameChange EventClass = 0x800C
)

func (c EventClass) String() string {
	switch c {
	case EventLocationChange:
		return "LOCATIONCHANGE"
	case EventNameChange:
		return "NAMECHANGE"
	default:
		return fmt.Sprintf("EVENT(0x%X)", uint32(c))
	}
}

// Event is a single hook notification. ObjectID and ChildID are zero when the
// event describes the window itself rather than one of its sub-elements.
type Event struct {
	Class    EventClass
	Handle   Handle
	ObjectID int32
	ChildID  int32
}
