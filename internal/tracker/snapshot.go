package tracker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

// Entry is one window in a Snapshot.
type Entry struct {
	Handle window.Handle
	window.Info
}

// Equal compares every field, including the timestamp.
func (e Entry) Equal(o Entry) bool {
	return e.Handle == o.Handle && e.Info.Equal(o.Info)
}

// String renders the entry in the diagnostic format used by Snapshot.String.
func (e Entry) String() string {
	pos := "unknown"
	if e.HasRect {
		pos = e.Rect.String()
	}
	title := "<none>"
	if e.HasTitle {
		title = fmt.Sprintf("%q", e.Title)
	}
	return fmt.Sprintf("HWND: %s, Pos: %s, Title: %s", e.Handle, pos, title)
}

// Snapshot is an immutable, point-in-time copy of a Registry, ordered by
// handle.
type Snapshot struct {
	entries []Entry
}

func newSnapshot(entries []Entry) Snapshot {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Handle < entries[j].Handle
	})
	return Snapshot{entries: entries}
}

// Len returns the number of windows in the snapshot.
func (s Snapshot) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in handle order.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// At returns the i-th entry in handle order.
func (s Snapshot) At(i int) Entry {
	return s.entries[i]
}

// Lookup returns the entry for h.
func (s Snapshot) Lookup(h window.Handle) (Entry, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Handle >= h
	})
	if i < len(s.entries) && s.entries[i].Handle == h {
		return s.entries[i], true
	}
	return Entry{}, false
}

// Equal reports whether both snapshots hold the same handles with identical
// fields, timestamps included.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.compare(o, Entry.Equal)
}

// SameWindows is Equal with timestamps ignored.
func (s Snapshot) SameWindows(o Snapshot) bool {
	return s.compare(o, func(a, b Entry) bool {
		return a.Handle == b.Handle && a.SameState(b.Info)
	})
}

func (s Snapshot) compare(o Snapshot, eq func(a, b Entry) bool) bool {
	if len(s.entries) != len(o.entries) {
		return false
	}
	for i := range s.entries {
		if !eq(s.entries[i], o.entries[i]) {
			return false
		}
	}
	return true
}

func (s Snapshot) String() string {
	var b strings.Builder
	b.WriteString("-- Window List --\n")
	for _, e := range s.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
