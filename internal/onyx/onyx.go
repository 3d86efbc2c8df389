// Package onyx wires the sync, queue and check services into named jobs.
// A job runs either on an external cron request or on the in-process
// scheduler; in both cases one lease per job prevents overlapping runs.
package onyx

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/onyxos/onyxsync/internal/checks"
	"github.com/onyxos/onyxsync/internal/config"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/queue"
	"github.com/onyxos/onyxsync/internal/syncer"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	JobRefreshTokens     = "refresh-tokens"
	JobSyncTransactions  = "sync-transactions"
	JobSyncTrackingLinks = "sync-tracking-links"
	JobSyncStats         = "sync-stats"
	JobProcessQueue      = "process-queue"
	JobRepairOrphans     = "repair-orphans"
	JobCheckLateShifts   = "check-late-shifts"
	JobCheckMissedPosts  = "check-missed-posts"
)

// DefaultSchedules are the in-process cron specs, mirroring the external
// cron configuration.
var DefaultSchedules = map[string]string{
	JobRefreshTokens:     "*/10 * * * *",
	JobSyncTransactions:  "*/15 * * * *",
	JobSyncTrackingLinks: "0 * * * *",
	JobSyncStats:         "30 * * * *",
	JobProcessQueue:      "* * * * *",
	JobRepairOrphans:     "0 3 * * *",
	JobCheckLateShifts:   "*/5 * * * *",
	JobCheckMissedPosts:  "*/10 * * * *",
}

var ErrUnknownJob = errors.New("unknown job")

// Services groups the job implementations. Nil services leave their jobs
// unregistered.
type Services struct {
	Refresher    *tokens.Refresher
	Transactions *syncer.TransactionSyncer
	TrackingLink *syncer.TrackingLinkSyncer
	Stats        *syncer.StatsSyncer
	Orphans      *syncer.OrphanRepairer
	Queue        *queue.Processor
	Checks       *checks.Checker
}

// JobResult is returned to cron callers.
type JobResult struct {
	Job      string      `json:"job"`
	Skipped  bool        `json:"skipped,omitempty"`
	Duration string      `json:"duration"`
	Result   interface{} `json:"result,omitempty"`
}

type jobFunc func(ctx context.Context) (interface{}, error)

// Onyx is the job runner of the service.
type Onyx struct {
	logger *logger.Logger
	config *config.Config
	locks  models.LockRepository

	jobs       map[string]jobFunc
	instanceID string
	cron       *cron.Cron
}

func NewOnyx(locks models.LockRepository, services Services, config *config.Config, logger *logger.Logger) *Onyx {
	o := &Onyx{
		logger:     logger,
		config:     config,
		locks:      locks,
		jobs:       make(map[string]jobFunc),
		instanceID: uuid.NewString(),
	}
	o.register(services)
	return o
}

func (o *Onyx) register(s Services) {
	if s.Refresher != nil {
		o.jobs[JobRefreshTokens] = func(ctx context.Context) (interface{}, error) {
			return s.Refresher.RefreshExpiring(ctx, o.config.TokenRefreshWindow)
		}
	}
	if s.Transactions != nil {
		o.jobs[JobSyncTransactions] = func(ctx context.Context) (interface{}, error) {
			return s.Transactions.SyncDue(ctx)
		}
	}
	if s.TrackingLink != nil {
		o.jobs[JobSyncTrackingLinks] = func(ctx context.Context) (interface{}, error) {
			return s.TrackingLink.SyncAll(ctx)
		}
	}
	if s.Stats != nil {
		o.jobs[JobSyncStats] = func(ctx context.Context) (interface{}, error) {
			return s.Stats.SyncAll(ctx)
		}
	}
	if s.Orphans != nil {
		o.jobs[JobRepairOrphans] = func(ctx context.Context) (interface{}, error) {
			results, summary, err := s.Orphans.RepairAll(ctx)
			return map[string]interface{}{"summary": summary, "agencies": results}, err
		}
	}
	if s.Queue != nil {
		o.jobs[JobProcessQueue] = func(ctx context.Context) (interface{}, error) {
			return s.Queue.ProcessBatch(ctx)
		}
	}
	if s.Checks != nil {
		o.jobs[JobCheckLateShifts] = func(ctx context.Context) (interface{}, error) {
			return s.Checks.CheckLateShifts(ctx)
		}
		o.jobs[JobCheckMissedPosts] = func(ctx context.Context) (interface{}, error) {
			return s.Checks.CheckMissedPosts(ctx)
		}
	}
}

// Jobs lists the registered job names.
func (o *Onyx) Jobs() []string {
	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJob runs one job under the job deadline. When another invocation holds
// the job's lease the call returns a skipped result without doing any work.
func (o *Onyx) RunJob(ctx context.Context, name string) (res *JobResult, err error) {
	fn, ok := o.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.JobTimeout)
	defer cancel()

	lockName := "job:" + name
	acquired, err := o.locks.TryAcquireLock(ctx, lockName, o.instanceID, o.config.JobTimeout)
	if err != nil {
		return nil, err
	}
	if !acquired {
		o.logger.Info("Job already running, skipping", "job", name)
		return &JobResult{Job: name, Skipped: true, Duration: "0s"}, nil
	}
	defer func() {
		if err := o.locks.ReleaseLock(context.Background(), lockName, o.instanceID); err != nil {
			o.logger.Error("Failed to release job lock", "job", name, "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
	}()

	started := time.Now()
	o.logger.Info("Job started", "job", name)
	result, err := fn(ctx)
	elapsed := time.Since(started).Round(time.Millisecond)
	if err != nil {
		o.logger.Error("Job failed", "job", name, "duration", elapsed, "error", err)
		return &JobResult{Job: name, Duration: elapsed.String(), Result: result}, err
	}
	o.logger.Info("Job finished", "job", name, "duration", elapsed)
	return &JobResult{Job: name, Duration: elapsed.String(), Result: result}, nil
}

// Start schedules every registered job on the in-process cron.
func (o *Onyx) Start() error {
	cl := cronLogger{o.logger}
	o.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	for _, name := range o.Jobs() {
		name := name
		spec := DefaultSchedules[name]
		if _, err := o.cron.AddFunc(spec, func() {
			if _, err := o.RunJob(context.Background(), name); err != nil {
				o.logger.Error("Scheduled job failed", "job", name, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
	}
	o.cron.Start()
	o.logger.Info("In-process scheduler started", "jobs", len(o.jobs))
	return nil
}

// Stop stops scheduling and waits for running jobs.
func (o *Onyx) Stop() {
	if o.cron == nil {
		return
	}
	<-o.cron.Stop().Done()
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
