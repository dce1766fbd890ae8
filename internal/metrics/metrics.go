// Package metrics holds the Prometheus instruments for the scraper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesInserted counts new opportunities persisted.
	OpportunitiesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_opportunities_inserted_total",
		Help: "The total number of new opportunities stored.",
	})
	// OpportunitiesRefreshed counts reruns touching existing rows.
	OpportunitiesRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_opportunities_refreshed_total",
		Help: "The total number of already-known opportunities seen again.",
	})
	// AgenciesScanned counts agency pages harvested.
	AgenciesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_agencies_scanned_total",
		Help: "The total number of agency pages harvested.",
	})
	// DeepScans counts browser-backed scans.
	DeepScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_deep_scans_total",
		Help: "The total number of agencies scanned with a full browser.",
	})
	// ChallengeSkips counts agencies skipped behind unresolved bot checks.
	ChallengeSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_challenge_skips_total",
		Help: "The total number of agencies skipped because a bot challenge never cleared.",
	})
	// CrawlErrors counts per-agency failures absorbed during runs.
	CrawlErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_crawl_errors_total",
		Help: "The total number of per-agency errors absorbed during crawl runs.",
	})
	// URLDiscoveries counts agency URLs resolved by the discovery flow.
	URLDiscoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfp_url_discoveries_total",
		Help: "The total number of agency URLs discovered or corrected.",
	})
	// AuditDeletions counts rows removed by the post-crawl audit, by reason.
	AuditDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfp_audit_deletions_total",
		Help: "The total number of opportunities deleted by the audit, by reason.",
	}, []string{"reason"})
	// JobsSubmitted counts jobs by kind.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfp_jobs_submitted_total",
		Help: "The total number of jobs submitted, by kind.",
	}, []string{"kind"})
)
