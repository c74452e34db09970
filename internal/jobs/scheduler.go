package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/opencare/practice-orchestrator/internal/clock"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job is already running")
)

type JobFunc func(ctx context.Context) error

type job struct {
	name  string
	spec  string
	sched cron.Schedule
	run   JobFunc

	mu      sync.Mutex
	running bool
	lastRun time.Time
	next    time.Time
}

type JobStatus struct {
	Name    string
	Spec    string
	Running bool
	LastRun time.Time
	Next    time.Time
}

// Scheduler fires named jobs on cron or interval trigger rules, evaluated
// against the injected clock on a fixed polling cadence. At most one run of
// a job executes at a time: a trigger that fires while the previous run is
// still going is dropped, not queued. Missed ticks are never backfilled.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*job
	byName map[string]*job
	parser cron.Parser
	clk    clock.Clock
	poll   time.Duration
	log    zerolog.Logger
	wg     sync.WaitGroup
}

func New(clk clock.Clock, poll time.Duration, log zerolog.Logger) *Scheduler {
	if poll <= 0 {
		poll = time.Minute
	}
	return &Scheduler{
		byName: map[string]*job{},
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		clk:    clk,
		poll:   poll,
		log:    log.With().Str("component", "jobs").Logger(),
	}
}

// Register adds a job under a unique name. spec accepts five-field cron
// expressions ("0 8 * * *"), descriptors ("@daily") and intervals
// ("@every 30m").
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse trigger %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{
		name:  name,
		spec:  spec,
		sched: sched,
		run:   fn,
		next:  sched.Next(s.clk.Now()),
	}
	s.jobs = append(s.jobs, j)
	s.byName[name] = j

	s.log.Info().Str("job", name).Str("spec", spec).Time("next", j.next).Msg("job registered")
	return nil
}

// Run polls trigger rules until ctx is cancelled, then waits for in-flight
// job bodies to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.log.Info().Dur("poll", s.poll).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping, waiting for running jobs")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx, s.clk.Now())
		}
	}
}

// tick evaluates every job's trigger against now and starts the due ones.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !now.Before(j.next) {
			// Next fire is always computed from the current tick, so ticks
			// missed while the process was down are not replayed.
			j.next = j.sched.Next(now)
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.tryStart(ctx, j)
	}
}

func (s *Scheduler) tryStart(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.log.Warn().Str("job", j.name).Msg("trigger dropped, previous run still executing")
		return
	}
	j.running = true
	j.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, j)
	}()
}

// execute runs the job body and records lastRun whether it succeeded or not.
// Errors and panics stop at this boundary; they never take down the loop.
func (s *Scheduler) execute(ctx context.Context, j *job) {
	start := s.clk.Now()
	var err error

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
				s.log.Error().
					Str("job", j.name).
					Any("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("job panicked")
			}
		}()
		err = j.run(ctx)
	}()

	j.mu.Lock()
	j.running = false
	j.lastRun = s.clk.Now()
	j.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", j.name).Msg("job failed")
		return
	}
	s.log.Info().Str("job", j.name).Dur("took", s.clk.Now().Sub(start)).Msg("job completed")
}

// RunNow executes a job synchronously, with the same no-overlap guarantee as
// scheduled triggers.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return ErrJobRunning
	}
	j.running = true
	j.mu.Unlock()

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		err = j.run(ctx)
	}()

	j.mu.Lock()
	j.running = false
	j.lastRun = s.clk.Now()
	j.mu.Unlock()

	return err
}

// Snapshot reports every registered job in registration order.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		out = append(out, JobStatus{
			Name:    j.name,
			Spec:    j.spec,
			Running: j.running,
			LastRun: j.lastRun,
			Next:    j.next,
		})
		j.mu.Unlock()
	}
	return out
}
