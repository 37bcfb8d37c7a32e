package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work, typically a single workflow run.
type Job func(ctx context.Context) error

// Run status values recorded in State.LastStatus.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// State is a snapshot of a Runner's bookkeeping.
type State struct {
	Expr              string        `json:"expr"`
	NextRun           time.Time     `json:"next_run"`
	LastRun           time.Time     `json:"last_run,omitempty"`
	LastStatus        string        `json:"last_status,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	LastDuration      time.Duration `json:"last_duration"`
	Runs              int           `json:"runs"`
	Skipped           int           `json:"skipped"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses a 5-field cron expression or a descriptor such as
// "@hourly" or "@every 30m". An empty tz means local time.
func Parse(expr, tz string) (cron.Schedule, error) {
	if expr == "" {
		return nil, errors.New("cron expression is required")
	}
	spec := expr
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
		spec = "CRON_TZ=" + tz + " " + expr
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched, nil
}

// NextRun returns the first activation of expr strictly after from.
func NextRun(expr, tz string, from time.Time) (time.Time, error) {
	sched, err := Parse(expr, tz)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTimezone evaluates the expression in the named IANA zone.
func WithTimezone(tz string) Option {
	return func(r *Runner) { r.tz = tz }
}

// WithMaxRuns stops the runner after n completed runs. Zero means unbounded.
func WithMaxRuns(n int) Option {
	return func(r *Runner) { r.maxRuns = n }
}

// WithImmediate runs the job once on start before waiting for the first
// scheduled activation.
func WithImmediate() Option {
	return func(r *Runner) { r.immediate = true }
}

// Runner fires a Job on a cron schedule. Activations that arrive while the
// previous run is still in flight are skipped rather than queued.
type Runner struct {
	expr      string
	tz        string
	job       Job
	maxRuns   int
	immediate bool
	logger    zerolog.Logger

	mu      sync.Mutex
	state   State
	running bool
}

// New validates expr and returns a Runner for job.
func New(expr string, job Job, opts ...Option) (*Runner, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	r := &Runner{
		expr:   expr,
		job:    job,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := Parse(expr, r.tz); err != nil {
		return nil, err
	}
	r.state.Expr = expr
	return r, nil
}

// State returns a copy of the current bookkeeping.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run blocks until ctx is done or the run limit is reached. The in-flight
// job, if any, is waited for before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	sched, err := Parse(r.expr, r.tz)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.fire(ctx) {
				cancel()
			}
		}()
	}

	c := cron.New(cron.WithParser(parser), cron.WithLogger(cron.DiscardLogger))
	c.Schedule(sched, cron.FuncJob(fire))

	r.mu.Lock()
	r.state.NextRun = sched.Next(time.Now())
	r.mu.Unlock()

	r.logger.Info().
		Str("expr", r.expr).
		Time("next_run", r.state.NextRun).
		Msg("Schedule started")

	if r.immediate {
		fire()
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	wg.Wait()

	st := r.State()
	r.logger.Info().
		Int("runs", st.Runs).
		Int("skipped", st.Skipped).
		Msg("Schedule stopped")
	return nil
}

// fire runs the job unless one is already running. It reports whether the
// run limit has been reached.
func (r *Runner) fire(ctx context.Context) bool {
	r.mu.Lock()
	if r.running {
		r.state.Skipped++
		r.state.LastStatus = StatusSkipped
		r.mu.Unlock()
		r.logger.Warn().Str("expr", r.expr).Msg("Previous run still in progress, skipping")
		return false
	}
	if r.maxRuns > 0 && r.state.Runs >= r.maxRuns {
		r.mu.Unlock()
		return true
	}
	r.running = true
	r.mu.Unlock()

	start := time.Now()
	err := r.safeRun(ctx)
	elapsed := time.Since(start)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.state.Runs++
	r.state.LastRun = start
	r.state.LastDuration = elapsed
	if sched, perr := Parse(r.expr, r.tz); perr == nil {
		r.state.NextRun = sched.Next(time.Now())
	}
	if err != nil {
		r.state.LastStatus = StatusError
		r.state.LastError = err.Error()
		r.state.ConsecutiveErrors++
		r.logger.Error().Err(err).
			Int("consecutive_errors", r.state.ConsecutiveErrors).
			Msg("Scheduled run failed")
	} else {
		r.state.LastStatus = StatusOK
		r.state.LastError = ""
		r.state.ConsecutiveErrors = 0
		r.logger.Info().Dur("duration", elapsed).Time("next_run", r.state.NextRun).Msg("Scheduled run finished")
	}
	return r.maxRuns > 0 && r.state.Runs >= r.maxRuns
}

func (r *Runner) safeRun(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scheduled job panicked: %v", p)
		}
	}()
	return r.job(ctx)
}
