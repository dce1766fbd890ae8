package browser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// point is a viewport coordinate.
type point struct {
	x, y float64
}

// bezierPath interpolates a quadratic curve between start and end through a
// random control point, producing the slightly bowed trajectory a hand on a
// mouse makes. steps is clamped to at least 2.
func bezierPath(start, end, control point, steps int) []point {
	if steps < 2 {
		steps = 2
	}
	path := make([]point, 0, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		inv := 1 - t
		path = append(path, point{
			x: inv*inv*start.x + 2*inv*t*control.x + t*t*end.x,
			y: inv*inv*start.y + 2*inv*t*control.y + t*t*end.y,
		})
	}
	return path
}

// wander performs the behavioral noise of a human visit: one curved mouse
// movement and a page scroll in uneven steps. Bounded by the scroll ceiling
// so a hostile infinite-scroll page cannot hold the session.
func (s *Session) wander(ctx context.Context) error {
	runCtx, cancel := s.boundedCtx(ctx, s.cfg.ScrollCeiling)
	defer cancel()

	if err := chromedp.Run(runCtx, s.mouseDriftAction()); err != nil {
		return fmt.Errorf("mouse drift: %w", err)
	}
	if err := chromedp.Run(runCtx, s.scrollAction()); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// nextDrift plans one curved movement. The first drift of a session starts
// from a random resting point; every later one starts where the previous
// drift ended, so the cursor never teleports between wanders.
func (s *Session) nextDrift() (start, end, control point) {
	start = s.cursor
	if start == (point{}) {
		start = point{x: 80 + rand.Float64()*200, y: 80 + rand.Float64()*200}
	}
	end = point{x: 300 + rand.Float64()*600, y: 200 + rand.Float64()*400}
	control = point{
		x: (start.x+end.x)/2 + (rand.Float64()-0.5)*300,
		y: (start.y+end.y)/2 + (rand.Float64()-0.5)*300,
	}
	s.cursor = end
	return start, end, control
}

func (s *Session) mouseDriftAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		start, end, control := s.nextDrift()
		for _, p := range bezierPath(start, end, control, 12+rand.IntN(10)) {
			if err := input.DispatchMouseEvent(input.MouseMoved, p.x, p.y).Do(ctx); err != nil {
				return err
			}
			if err := sleepCtx(ctx, time.Duration(5+rand.IntN(20))*time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	})
}

// scrollAction walks down the page in random 300-700px steps with short
// pauses, stopping at the bottom or when the bounding context expires.
func (s *Session) scrollAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var atBottom bool
			step := 300 + rand.IntN(401)
			js := fmt.Sprintf(`(() => {
	window.scrollBy({top: %d, behavior: 'smooth'});
	return (window.innerHeight + window.scrollY) >= document.body.scrollHeight - 10;
})()`, step)
			if err := chromedp.Evaluate(js, &atBottom).Do(ctx); err != nil {
				return err
			}
			if atBottom {
				return nil
			}
			pause := time.Duration(150+rand.IntN(350)) * time.Millisecond
			if err := sleepCtx(ctx, pause); err != nil {
				if ctx.Err() != nil {
					return nil // ceiling reached; a partial scroll is fine
				}
				return err
			}
		}
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
