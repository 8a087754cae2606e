// Package scheduler implements the Scheduler (spec §4.6): the five CLI
// invocation modes that turn "run every eligible (group, year_month)"
// into concrete Job Pipeline runs, bounded by a concurrency cap.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magnusmanske/baglama2-go/internal/baglamaerr"
	"github.com/magnusmanske/baglama2-go/internal/maintenance"
	"github.com/magnusmanske/baglama2-go/internal/types"
)

// Gateway is the subset of *gateway.Gateway the scheduler depends on to
// pick eligible work and mark it taken.
type Gateway interface {
	GetNextGroupID(ctx context.Context, ym types.YearMonth, requiresPrevious bool) (types.GroupId, error)
	SetGroupStatus(ctx context.Context, id types.GroupId, ym types.YearMonth, status types.Status, totalViews *uint64, storageKind types.StorageKind, path string) error
}

// Runner is anything that can execute a job once claimed; *pipeline.Job
// satisfies it without the scheduler importing the pipeline package
// directly.
type Runner interface {
	Run(ctx context.Context) error
}

// JobFactory builds the Runner for one (group, year_month), wiring in
// whatever storage backend, gateway, resolver, and PageViews client the
// job needs. Built fresh per job so connections/state never leak across
// runs.
type JobFactory func(ctx context.Context, groupID types.GroupId, ym types.YearMonth) (Runner, error)

// Scheduler drives the five invocation modes named in spec §4.6.
type Scheduler struct {
	Gateway           Gateway
	Maintenance       *maintenance.Maintenance
	NewJob            JobFactory
	MaxConcurrentJobs int
	Storage           types.StorageKind
	Log               *slog.Logger

	// claimMu serializes the "pick the next eligible group, then mark it
	// taken" step so two concurrent workers never claim the same group:
	// the mark (SetGroupStatus to GENERATING PAGE LIST) happens inside the
	// same critical section as the pick (GetNextGroupID), matching the
	// original's ordering of marking a group taken before spawning the
	// async job for it.
	claimMu sync.Mutex
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Scheduler) concurrencyCap() int {
	if s.MaxConcurrentJobs < 1 {
		return 1
	}
	return s.MaxConcurrentJobs
}

// Run executes a single named job: the `run <id> <y> <m>` invocation
// mode. Unlike the other four modes, the caller names the group
// explicitly, so there is no concurrent claim to race against; Run marks
// the group taken itself before building and running the job.
func (s *Scheduler) Run(ctx context.Context, groupID types.GroupId, ym types.YearMonth) error {
	if err := s.Gateway.SetGroupStatus(ctx, groupID, ym, types.StatusGeneratingPageList, nil, s.Storage, ""); err != nil {
		return fmt.Errorf("scheduler: mark group taken: %w", err)
	}
	return s.runJob(ctx, groupID, ym)
}

// runJob builds and runs the job for an already-claimed group, without
// touching group_status itself; the caller (claimNext, or Run for the
// single-job invocation mode) is responsible for having marked the group
// taken first.
func (s *Scheduler) runJob(ctx context.Context, groupID types.GroupId, ym types.YearMonth) error {
	job, err := s.NewJob(ctx, groupID, ym)
	if err != nil {
		return fmt.Errorf("scheduler: build job: %w", err)
	}
	return job.Run(ctx)
}

// claimNext picks one eligible group id and marks it GENERATING PAGE LIST
// in the same critical section, so the pick and the mark are atomic with
// respect to the scheduler's own loop: no later claimNext call can observe
// the group as still-eligible before this one's mark has landed. A false
// second return with a nil error means "nothing eligible right now", not
// an error condition.
func (s *Scheduler) claimNext(ctx context.Context, ym types.YearMonth, requiresPrevious bool) (types.GroupId, bool, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	id, err := s.Gateway.GetNextGroupID(ctx, ym, requiresPrevious)
	if err != nil {
		if baglamaerr.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if err := s.Gateway.SetGroupStatus(ctx, id, ym, types.StatusGeneratingPageList, nil, s.Storage, ""); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Next runs a single random eligible job: the `next <y> <m>` invocation
// mode. Returns nil if nothing is eligible.
func (s *Scheduler) Next(ctx context.Context, ym types.YearMonth) error {
	id, ok, err := s.claimNext(ctx, ym, false)
	if err != nil {
		return err
	}
	if !ok {
		s.logger().Info("no eligible group", "year_month", ym)
		return nil
	}
	return s.runJob(ctx, id, ym)
}

// NextAllSeq runs eligible jobs one at a time until none remain: the
// `next_all_seq <y> <m>` invocation mode. A job failure is logged and
// does not stop the loop (spec §7: "the scheduler never dies on a job
// failure").
func (s *Scheduler) NextAllSeq(ctx context.Context, ym types.YearMonth) error {
	for {
		id, ok, err := s.claimNext(ctx, ym, false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := s.runJob(ctx, id, ym); err != nil {
			s.logger().Error("job failed", "group_id", id, "year_month", ym, "error", err)
		}
	}
}

// NextAll runs eligible jobs with up to MaxConcurrentJobs running at
// once: the `next_all <y> <m> [suppress_clear]` invocation mode. Unless
// suppressClear is set, stale (non-VIEW DATA COMPLETE) statuses for ym
// are cleared first so previously-failed groups are retried.
func (s *Scheduler) NextAll(ctx context.Context, ym types.YearMonth, suppressClear bool) error {
	if s.Maintenance != nil {
		if err := s.Maintenance.ClearStaleStatuses(ctx, ym, suppressClear); err != nil {
			return err
		}
	}
	return s.runConcurrent(ctx, ym, false)
}

// Backfill advances from ym forward one month at a time, exclusive of
// the current wall-clock month, running NextAll with
// requires_previous_date=true at each step: the `backfill <y> <m>`
// invocation mode.
func (s *Scheduler) Backfill(ctx context.Context, from types.YearMonth) error {
	now := time.Now()
	currentYM, err := types.NewYearMonth(now.Year(), int(now.Month()))
	if err != nil {
		return err
	}

	ym := from
	for ym.Before(currentYM) {
		if s.Maintenance != nil {
			if err := s.Maintenance.ClearStaleStatuses(ctx, ym, false); err != nil {
				return err
			}
		}
		if err := s.runConcurrent(ctx, ym, true); err != nil {
			return err
		}
		ym, err = ym.Next()
		if err != nil {
			return err
		}
	}
	return nil
}

// runConcurrent drains eligible groups for ym into up to
// concurrencyCap() simultaneously-running jobs. The buffered channel acts
// as the semaphore; errgroup.Wait drains every in-flight job before
// returning, satisfying spec §4.6's "shutdown drains in-flight jobs"
// requirement without a hand-rolled mutex-protected counter.
func (s *Scheduler) runConcurrent(ctx context.Context, ym types.YearMonth, requiresPrevious bool) error {
	sem := make(chan struct{}, s.concurrencyCap())
	g, gctx := errgroup.WithContext(ctx)

	for {
		id, ok, err := s.claimNext(gctx, ym, requiresPrevious)
		if err != nil {
			_ = g.Wait()
			return err
		}
		if !ok {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			return g.Wait()
		}

		g.Go(func() error {
			defer func() { <-sem }()
			if err := s.runJob(gctx, id, ym); err != nil {
				s.logger().Error("job failed", "group_id", id, "year_month", ym, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
