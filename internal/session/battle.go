package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/screen"
)

func (s *session) battleLoop(ctx context.Context) {
	misclicks := 0
	for s.run.Battles < s.battleCap {
		if ctx.Err() != nil {
			s.stop(ctx, "cancelled")
			return
		}

		chosen, ok := s.acquire(ctx)
		if !ok {
			s.stop(ctx, "no more opponents available")
			return
		}
		s.used.Add(chosen.Point)
		if !s.click(ctx, chosen.Point, s.tpl.Engage) {
			misclicks++
			if misclicks >= s.timings.MaxMisclicks {
				s.stop(ctx, "opponent click keeps failing")
				return
			}
			sleep(ctx, s.timings.StepRetryWait)
			continue
		}
		misclicks = 0
		s.sink.Printf("selected opponent at %s (score %.2f), used %v", chosen.Point, chosen.Score, s.used.Positions())
		if !sleep(ctx, s.timings.Settle) {
			continue
		}

		if !s.locateAndClick(ctx, s.tpl.Start, s.timings.StartCycles) {
			s.stop(ctx, "start button not found")
			return
		}
		if !s.awaitBattleOver(ctx) {
			s.stop(ctx, "cancelled")
			return
		}
		if !s.locateAndClick(ctx, s.tpl.Return, s.timings.ReturnCycles) {
			s.sink.Print("return button not found, continuing")
		}

		s.run.Battles++
		s.sink.Printf("battle %d/%d complete", s.run.Battles, s.battleCap)
		sleep(ctx, s.timings.AfterBattle)
	}
	s.run.Exhausted = true
	s.run.Reason = "battle cap reached"
	s.sink.Printf("reached battle cap of %d", s.battleCap)
}

// awaitBattleOver polls for the battle over marker every BattlePoll and
// clicks it. It returns false when ctx is done first.
func (s *session) awaitBattleOver(ctx context.Context) bool {
	s.sink.Print("waiting for battle to finish")
	var waited time.Duration
	for {
		if !sleep(ctx, s.timings.BattlePoll) {
			return false
		}
		waited += s.timings.BattlePoll
		if at, ok := s.locate(ctx, s.tpl.BattleOver); ok && s.click(ctx, at, s.tpl.BattleOver) {
			s.sink.Printf("battle over after %s", waited)
			sleep(ctx, s.timings.AfterBattle)
			return true
		}
		slog.DebugContext(ctx, "battle still running", slog.Duration("waited", waited))
	}
}

// acquire returns the first fresh engage candidate, escalating when none is
// visible.
func (s *session) acquire(ctx context.Context) (screen.Match, bool) {
	if m, ok := s.pick(ctx); ok {
		return m, true
	}
	return s.escalate(ctx)
}

func (s *session) pick(ctx context.Context) (screen.Match, bool) {
	raw, err := s.deps.Locator.LocateAll(ctx, s.tpl.Engage, s.timings.Threshold)
	if err != nil {
		slog.DebugContext(ctx, "locate all failed", "template", s.tpl.Engage.Name, "error", err)
		return screen.Match{}, false
	}
	candidates := screen.Cluster(raw, screen.Radius, screen.ClusterLimit)
	m, ok := screen.FirstFresh(candidates, s.used)
	if !ok && len(candidates) > 0 {
		s.sink.Printf("all %d candidates already used", len(candidates))
	}
	return m, ok
}

// escalate runs the recovery ladder: dismiss an overlay, refresh the list,
// scroll once and, when no refresh control exists, drag a few times. It
// stops at the first step which produces a fresh candidate.
func (s *session) escalate(ctx context.Context) (screen.Match, bool) {
	if s.dismiss(ctx) {
		s.sink.Print("overlay dismissed, looking for opponents again")
		sleep(ctx, s.timings.OverlayWait)
		if m, ok := s.pick(ctx); ok {
			return m, true
		}
	}

	refreshFound := false
	if s.tpl.Refresh != nil && ctx.Err() == nil {
		refresh := *s.tpl.Refresh
		if at, ok := s.locate(ctx, refresh); ok {
			refreshFound = true
			if s.click(ctx, at, refresh) {
				s.sink.Print("list refreshed, clearing used positions")
				if m, ok := s.afterListChange(ctx, s.timings.RefreshWait); ok {
					return m, true
				}
			}
		}
	}

	if ctx.Err() != nil {
		return screen.Match{}, false
	}
	s.scroll(ctx)
	if m, ok := s.afterListChange(ctx, s.timings.ScrollWait); ok {
		return m, true
	}

	if refreshFound {
		return screen.Match{}, false
	}
	s.sink.Printf("refresh not found, trying up to %d drags", s.timings.DragAttempts)
	for attempt := 1; attempt <= s.timings.DragAttempts; attempt++ {
		if ctx.Err() != nil {
			return screen.Match{}, false
		}
		if err := s.deps.Actuator.Drag(ctx, s.timings.DragFrom, s.timings.DragTo, s.timings.DragDuration); err != nil {
			s.sink.Printf("drag %d failed: %v", attempt, err)
		} else {
			s.sink.Printf("drag %d/%d", attempt, s.timings.DragAttempts)
		}
		if m, ok := s.afterListChange(ctx, s.timings.ScrollWait); ok {
			return m, true
		}
	}
	return screen.Match{}, false
}

// scroll presses the scroll key and falls back to a drag gesture.
func (s *session) scroll(ctx context.Context) {
	err := s.deps.Actuator.PressKey(ctx, s.timings.ScrollKey)
	if err == nil {
		s.sink.Printf("pressed %s", s.timings.ScrollKey)
		return
	}
	slog.DebugContext(ctx, "scroll key failed, dragging", "error", err)
	if err := s.deps.Actuator.Drag(ctx, s.timings.DragFrom, s.timings.DragTo, s.timings.DragDuration); err != nil {
		s.sink.Printf("scroll failed: %v", err)
	}
}

// afterListChange forgets used positions since the listing changed, lets it
// settle and picks again.
func (s *session) afterListChange(ctx context.Context, wait time.Duration) (screen.Match, bool) {
	s.used.Reset()
	if !sleep(ctx, wait) {
		return screen.Match{}, false
	}
	return s.pick(ctx)
}
