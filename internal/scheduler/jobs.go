package scheduler

import (
	"context"
	"time"

	"github.com/oddstack/wagerline/internal/cycle"
	"github.com/oddstack/wagerline/internal/modules/dedup"
)

// EvaluationJob runs one evaluation cycle per trigger. Overlap protection
// lives inside the cycle service, so a slow cycle makes the next trigger a
// no-op instead of a pile-up.
type EvaluationJob struct {
	service *cycle.Service
}

// NewEvaluationJob creates the job.
func NewEvaluationJob(service *cycle.Service) *EvaluationJob {
	return &EvaluationJob{service: service}
}

// Name returns the job name.
func (j *EvaluationJob) Name() string { return "evaluation_cycle" }

// Run executes one cycle.
func (j *EvaluationJob) Run() error {
	_, err := j.service.Run(context.Background())
	return err
}

// MovementScanJob refreshes quotes between evaluation cycles so the
// movement monitor sees moves promptly. It never evaluates or dispatches.
type MovementScanJob struct {
	scanner *cycle.Scanner
}

// NewMovementScanJob creates the job.
func NewMovementScanJob(scanner *cycle.Scanner) *MovementScanJob {
	return &MovementScanJob{scanner: scanner}
}

// Name returns the job name.
func (j *MovementScanJob) Name() string { return "movement_scan" }

// Run ingests one round of quotes.
func (j *MovementScanJob) Run() error {
	return j.scanner.Scan(context.Background())
}

// IssuanceGCJob prunes expired issuance rows.
type IssuanceGCJob struct {
	tracker *dedup.Tracker
}

// NewIssuanceGCJob creates the job.
func NewIssuanceGCJob(tracker *dedup.Tracker) *IssuanceGCJob {
	return &IssuanceGCJob{tracker: tracker}
}

// Name returns the job name.
func (j *IssuanceGCJob) Name() string { return "issuance_gc" }

// Run prunes rows past twice the dedup window.
func (j *IssuanceGCJob) Run() error {
	_, err := j.tracker.GC(time.Now())
	return err
}
