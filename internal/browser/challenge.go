package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrChallengeUnresolved means a bot check was still blocking the page when
// the wait deadline expired. Callers treat it as "skip this site", not as a
// crawl failure.
var ErrChallengeUnresolved = errors.New("bot challenge did not resolve in time")

// Text fragments that identify interstitial bot checks and access walls.
var challengeMarkers = []string{
	"verify you are human",
	"verifying you are human",
	"just a moment",
	"checking your browser",
	"access denied",
	"attention required",
	"ddos protection by",
}

// looksChallenged reports whether a page's title or visible text matches a
// known bot-check interstitial.
func looksChallenged(title, bodyText string) bool {
	combined := strings.ToLower(title + "\n" + bodyText)
	for _, marker := range challengeMarkers {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

// awaitChallenge polls the page until any bot challenge clears or the
// configured wait elapses. Pages without a challenge return immediately.
func (s *Session) awaitChallenge(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ChallengeWait)
	first := true
	for {
		challenged, err := s.isChallenged(ctx)
		if err != nil {
			return err
		}
		if !challenged {
			return nil
		}
		if first {
			s.logger.Info("waiting out bot challenge",
				zap.Duration("max_wait", s.cfg.ChallengeWait))
			first = false
		}
		if time.Now().After(deadline) {
			return ErrChallengeUnresolved
		}
		if err := sleepCtx(ctx, s.cfg.ChallengePoll); err != nil {
			return err
		}
	}
}

func (s *Session) isChallenged(ctx context.Context) (bool, error) {
	var title, snippet string
	runCtx, cancel := s.boundedCtx(ctx, 5*time.Second)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Title(&title),
		chromedp.Evaluate(`document.body ? document.body.innerText.slice(0, 2000) : ""`, &snippet),
	)
	if err != nil {
		return false, fmt.Errorf("inspecting page for challenge: %w", err)
	}
	return looksChallenged(title, snippet), nil
}
