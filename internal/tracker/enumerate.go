package tracker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/wintracker/internal/window"
)

// queryInfo samples rect and title independently. A failed query leaves its
// field absent and never affects the other.
func queryInfo(p window.Platform, h window.Handle, now time.Time, log *zerolog.Logger) window.Info {
	info := window.Info{Timestamp: now}

	if r, err := p.WindowRect(h); err == nil {
		info.Rect = r
		info.HasRect = true
	} else {
		log.Debug().Err(err).Stringer("hwnd", h).Msg("rect query failed")
	}

	if title, err := p.WindowTitle(h); err == nil {
		info.Title = title
		info.HasTitle = true
	} else {
		log.Trace().Err(err).Stringer("hwnd", h).Msg("title query failed")
	}

	return info
}

// enumerate seeds reg with every visible top-level window. Per-window
// failures are absorbed; only a failure to list windows at all is returned.
func enumerate(p window.Platform, reg *Registry, clock func() time.Time, log *zerolog.Logger) (int, error) {
	handles, err := p.EnumerateTopLevelWindows()
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate windows: %w", err)
	}

	seeded := 0
	for _, h := range handles {
		if !h.Valid() || !p.IsVisible(h) {
			continue
		}
		info := queryInfo(p, h, clock(), log)
		reg.Upsert(h, info)
		seeded++

		log.Debug().
			Stringer("hwnd", h).
			Bool("has_rect", info.HasRect).
			Str("title", info.Title).
			Msg("enumerated window")
	}

	log.Debug().
		Int("listed", len(handles)).
		Int("visible", seeded).
		Msg("enumeration complete")
	return seeded, nil
}
