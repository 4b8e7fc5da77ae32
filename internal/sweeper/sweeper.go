// Package sweeper runs the periodic maintenance jobs: expiring grants,
// purging old ones, dropping stale cache entries and pruning the audit log.
package sweeper

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/accessgate/accessgate/internal/metrics"
)

// Job names used for scheduling and metric labels.
const (
	JobCache  = "cache"
	JobGrants = "grants"
	JobAudit  = "audit"
)

// ErrUnknownJob is returned by RunNow for a job that was never added.
var ErrUnknownJob = errors.New("unknown sweep job")

// Func performs one sweep and returns how many items it removed.
type Func func() int

// Sweeper schedules sweep jobs on cron specifications such as "@every 1m".
type Sweeper struct {
	cron    *cron.Cron
	metrics *metrics.Metrics

	mu   sync.Mutex
	jobs map[string]Func
}

// New creates an idle Sweeper. A nil m gets private collectors.
func New(m *metrics.Metrics) *Sweeper {
	if m == nil {
		m = metrics.New(nil)
	}

	return &Sweeper{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		metrics: m,
		jobs:    make(map[string]Func),
	}
}

// Add schedules fn under name. An empty spec registers the job for RunNow
// without scheduling it.
func (s *Sweeper) Add(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return errors.Errorf("sweep job %q already added", name)
	}

	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.run(name, fn) }); err != nil {
			return errors.Wrapf(err, "invalid schedule %q for sweep job %q", spec, name)
		}
	}

	s.jobs[name] = fn

	return nil
}

// Jobs lists the added job names.
func (s *Sweeper) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// RunNow runs one job synchronously.
func (s *Sweeper) RunNow(name string) (int, error) {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return 0, errors.Wrap(ErrUnknownJob, name)
	}

	return s.run(name, fn), nil
}

// RunAll runs every job synchronously and returns the removals per job.
func (s *Sweeper) RunAll() map[string]int {
	out := make(map[string]int)

	for _, name := range s.Jobs() {
		n, err := s.RunNow(name)
		if err == nil {
			out[name] = n
		}
	}

	return out
}

// Start begins running scheduled jobs in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Strs("jobs", s.Jobs()).Msg("sweeper started")
}

// Stop stops scheduling and waits for running jobs or ctx, whichever ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		log.Info().Msg("sweeper stopped")

		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sweeper did not stop in time")
	}
}

func (s *Sweeper) run(name string, fn Func) int {
	n := fn()

	s.metrics.SweepRuns.WithLabelValues(name).Inc()
	s.metrics.SweepRemoved.WithLabelValues(name).Add(float64(n))

	if n > 0 {
		log.Debug().Str("job", name).Int("removed", n).Msg("sweep finished")
	}

	return n
}
