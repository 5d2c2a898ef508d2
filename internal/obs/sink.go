// Package obs defines the observability collaborator boundary: a single
// structured record per completed bundle, plus the process-wide structured
// logger. The transports these ultimately feed (Datadog, a log shipper, a
// metrics backend) are external collaborators; this package only defines
// the interface and two concrete implementations: NoOpSink and the
// zap-backed LoggingSink.
package obs

import (
	"time"

	"github.com/yourusername/solbundler/internal/bundler"
)

// BundleRecord is the single structured record the orchestrator emits on
// completion of a bundle, per §4.4 "Metrics aggregation".
type BundleRecord struct {
	RequestID     string
	Status        bundler.AggregateStatus
	Attempts      int
	RetryCount    int
	EndpointsUsed []string
	TimingMs      bundler.TimingBreakdown
	CompletedAt   time.Time
}

// Sink is the collaborator that receives completed bundle records. The
// core never persists bundle history itself (Non-goal, §1); a Sink may
// forward to metrics/log transports that do.
type Sink interface {
	RecordBundle(BundleRecord)
}

// NoOpSink discards every record. Used when observability is disabled.
type NoOpSink struct{}

func (NoOpSink) RecordBundle(BundleRecord) {}

// FromResult adapts a bundler.BundleResult into the Sink's record shape.
func FromResult(r *bundler.BundleResult, retries int) BundleRecord {
	return BundleRecord{
		RequestID:     r.RequestID,
		Status:        r.Status,
		Attempts:      sumAttempts(r.Outcomes),
		RetryCount:    retries,
		EndpointsUsed: r.EndpointsUsed,
		TimingMs:      r.Timing,
		CompletedAt:   r.CompletedAt,
	}
}

func sumAttempts(outcomes []bundler.TransactionOutcome) int {
	total := 0
	for _, o := range outcomes {
		total += o.Attempts
	}
	return total
}
