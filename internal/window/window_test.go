package window

import (
	"testing"
	"time"
)

func TestHandleString(t *testing.T) {
	if got := Handle(0x1a2b).String(); got != "0x1A2B" {
		t.Fatalf("Handle.String() = %q", got)
	}
	if Handle(0).Valid() {
		t.Fatalf("zero handle must be invalid")
	}
}

func TestRect(t *testing.T) {
	r := Rect{Left: 10, Top: 20, Right: 110, Bottom: 70}
	if r.Width() != 100 || r.Height() != 50 {
		t.Fatalf("unexpected size %dx%d", r.Width(), r.Height())
	}
	if got := r.String(); got != "(10, 20, 110, 70)" {
		t.Fatalf("Rect.String() = %q", got)
	}
}

func TestInfoEquality(t *testing.T) {
	now := time.Now()
	a := Info{Rect: Rect{0, 0, 100, 50}, HasRect: true, Title: "Alpha", HasTitle: true, Timestamp: now}

	b := a
	b.Timestamp = now.Add(time.Millisecond)
	if a.Equal(b) {
		t.Fatalf("Equal must compare timestamps")
	}
	if !a.SameState(b) {
		t.Fatalf("SameState must ignore timestamps")
	}

	// Payload of an absent field is ignored.
	c := Info{Rect: Rect{1, 2, 3, 4}, Timestamp: now}
	d := Info{Timestamp: now}
	if !c.Equal(d) {
		t.Fatalf("absent rects should compare equal regardless of payload")
	}

	e := a
	e.HasTitle = false
	if a.SameState(e) {
		t.Fatalf("present and absent titles must differ")
	}
}

func TestHookSpecCovers(t *testing.T) {
	spec := HookSpec{Min: EventLocationChange, Max: EventNameChange}
	if !spec.Covers(EventLocationChange) || !spec.Covers(EventNameChange) {
		t.Fatalf("range must include both bounds")
	}
	if spec.Covers(EventClass(0x800A)) || spec.Covers(EventClass(0x800D)) {
		t.Fatalf("range must exclude neighbours")
	}
}

func TestEventClassString(t *testing.T) {
	if EventLocationChange.String() != "LOCATIONCHANGE" {
		t.Fatalf("unexpected %q", EventLocationChange.String())
	}
	if EventClass(0x8000).String() != "EVENT(0x8000)" {
		t.Fatalf("unexpected %q", EventClass(0x8000).String())
	}
}
