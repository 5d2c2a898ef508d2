package orchestrator

import (
	"sync"
	"time"

	"github.com/yourusername/solbundler/internal/bundler"
)

// timingAccumulator sums per-stage latencies across every draft in a bundle,
// guarded by a mutex since best-effort drafts update it concurrently.
type timingAccumulator struct {
	mu         sync.Mutex
	simulateMs int64
	signMs     int64
	submitMs   int64
	confirmMs  int64
}

func (t *timingAccumulator) add(field *int64, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*field += d.Milliseconds()
}

func (t *timingAccumulator) addSimulate(d time.Duration) { t.add(&t.simulateMs, d) }
func (t *timingAccumulator) addSign(d time.Duration)     { t.add(&t.signMs, d) }
func (t *timingAccumulator) addSubmit(d time.Duration)   { t.add(&t.submitMs, d) }
func (t *timingAccumulator) addConfirm(d time.Duration)  { t.add(&t.confirmMs, d) }

func (t *timingAccumulator) breakdown(total time.Duration) bundler.TimingBreakdown {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bundler.TimingBreakdown{
		SimulateMs: t.simulateMs,
		SignMs:     t.signMs,
		SubmitMs:   t.submitMs,
		ConfirmMs:  t.confirmMs,
		TotalMs:    total.Milliseconds(),
	}
}
