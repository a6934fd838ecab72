package api

import (
	"time"

	"github.com/bryanchriswhite/wintracker/internal/tracker"
	"github.com/bryanchriswhite/wintracker/internal/window"
)

// Window is the JSON form of one tracked window. Rect and Title are omitted
// when the platform could not report them.
type Window struct {
	Handle    string       `json:"handle"`
	Rect      *window.Rect `json:"rect,omitempty"`
	Width     int          `json:"width,omitempty"`
	Height    int          `json:"height,omitempty"`
	Title     *string      `json:"title,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// WindowList is the JSON form of a snapshot.
type WindowList struct {
	Count   int      `json:"count"`
	Windows []Window `json:"windows"`
}

// NewWindow converts a snapshot entry.
func NewWindow(e tracker.Entry) Window {
	w := Window{
		Handle:    e.Handle.String(),
		Timestamp: e.Timestamp,
	}
	if e.HasRect {
		r := e.Rect
		w.Rect = &r
		w.Width = r.Width()
		w.Height = r.Height()
	}
	if e.HasTitle {
		title := e.Title
		w.Title = &title
	}
	return w
}

// NewWindowList converts a snapshot, keeping its handle order.
func NewWindowList(s tracker.Snapshot) WindowList {
	list := WindowList{
		Count:   s.Len(),
		Windows: make([]Window, 0, s.Len()),
	}
	for i := 0; i < s.Len(); i++ {
		list.Windows = append(list.Windows, NewWindow(s.At(i)))
	}
	return list
}
