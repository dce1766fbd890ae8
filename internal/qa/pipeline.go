package qa

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Echoandelementwebsites/rfp-scraper/internal/metrics"
	"github.com/Echoandelementwebsites/rfp-scraper/internal/procure"
)

// OpportunityStore is the persistence surface the auditor works against.
type OpportunityStore interface {
	ListOpportunities(ctx context.Context, state string) ([]procure.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o procure.Opportunity) error
	DeleteOpportunity(ctx context.Context, fingerprint string) error
}

// TradeClassifier tags an opportunity with trade categories. An empty
// result means the work is not construction.
type TradeClassifier interface {
	ClassifyTrades(ctx context.Context, title, description string) []string
}

// Report tallies one audit pass.
type Report struct {
	Scanned       int
	Misattributed int
	Stale         int
	Noise         int
	Untagged      int
	Cleaned       int
	Errors        int
}

// Auditor runs the post-crawl cleanup stages over stored opportunities.
type Auditor struct {
	store      OpportunityStore
	classifier TradeClassifier
	bufferDays int
	now        func() time.Time
	logger     *zap.Logger
}

// NewAuditor builds an Auditor. bufferDays is the margin a deadline must
// clear beyond today to count as actionable; classifier may be nil to skip
// trade tagging.
func NewAuditor(store OpportunityStore, classifier TradeClassifier, bufferDays int, logger *zap.Logger) *Auditor {
	if bufferDays < 0 {
		bufferDays = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		store:      store,
		classifier: classifier,
		bufferDays: bufferDays,
		now:        time.Now,
		logger:     logger,
	}
}

// Run audits every stored opportunity for a state. One bad record never
// stops the pass; failures are counted and the audit moves on.
func (a *Auditor) Run(ctx context.Context, state string) (Report, error) {
	var report Report
	items, err := a.store.ListOpportunities(ctx, state)
	if err != nil {
		return report, err
	}

	cutoff := a.cutoff()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if err := a.audit(ctx, state, item, cutoff, &report); err != nil {
			report.Errors++
			a.logger.Warn("audit step failed",
				zap.String("fingerprint", item.Fingerprint), zap.Error(err))
		}
	}

	a.logger.Info("audit pass complete", zap.String("state", state),
		zap.Int("scanned", report.Scanned), zap.Int("misattributed", report.Misattributed),
		zap.Int("stale", report.Stale), zap.Int("noise", report.Noise),
		zap.Int("untagged", report.Untagged), zap.Int("cleaned", report.Cleaned),
		zap.Int("errors", report.Errors))
	return report, nil
}

// cutoff is the earliest acceptable deadline: today plus the buffer. A
// deadline exactly on the cutoff survives.
func (a *Auditor) cutoff() time.Time {
	return FreshnessCutoff(a.now(), a.bufferDays)
}

// FreshnessCutoff is the earliest deadline still worth acting on as of now:
// today at midnight UTC plus bufferDays. A deadline exactly on the cutoff
// survives.
func FreshnessCutoff(now time.Time, bufferDays int) time.Time {
	if bufferDays < 0 {
		bufferDays = 0
	}
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, bufferDays)
}

func (a *Auditor) audit(ctx context.Context, state string, item procure.Opportunity, cutoff time.Time, report *Report) error {
	// Stage 1: attribution. A record filed under the wrong state or with no
	// client is unusable no matter what else it says.
	if !strings.EqualFold(item.State, state) || strings.TrimSpace(item.Client) == "" {
		report.Misattributed++
		metrics.AuditDeletions.WithLabelValues("misattributed").Inc()
		return a.store.DeleteOpportunity(ctx, item.Fingerprint)
	}

	// Stage 2: freshness. Deadlines we could never parse are kept; a known
	// deadline inside the buffer is dead inventory.
	if !item.Deadline.IsZero() && item.Deadline.Before(cutoff) {
		report.Stale++
		metrics.AuditDeletions.WithLabelValues("stale").Inc()
		return a.store.DeleteOpportunity(ctx, item.Fingerprint)
	}

	// Stage 3: noise. Navigation text and bare dates scraped as titles.
	if !IsValidTitle(item.Title) {
		report.Noise++
		metrics.AuditDeletions.WithLabelValues("noise").Inc()
		return a.store.DeleteOpportunity(ctx, item.Fingerprint)
	}

	dirty := false
	if cleaned := CleanText(item.Title); cleaned != item.Title {
		item.Title = cleaned
		dirty = true
	}
	if cleaned := CleanText(item.Client); cleaned != item.Client {
		item.Client = cleaned
		dirty = true
	}

	// Stage 4: trade tagging. Zero tags after classification means the work
	// is not construction and does not belong in the table.
	if len(item.TradeTags) == 0 && a.classifier != nil {
		tags := a.classifier.ClassifyTrades(ctx, item.Title, item.Description)
		if len(tags) == 0 {
			report.Untagged++
			metrics.AuditDeletions.WithLabelValues("untagged").Inc()
			return a.store.DeleteOpportunity(ctx, item.Fingerprint)
		}
		item.TradeTags = tags
		dirty = true
	}

	if dirty {
		report.Cleaned++
		return a.store.UpdateOpportunity(ctx, item)
	}
	return nil
}
