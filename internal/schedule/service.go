// Package schedule feeds recurring submissions into the pool from standard
// 5-field cron specs. The pool is the execution engine; this service only
// triggers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"thermopool/internal/pool"
	logx "thermopool/pkg/logx"
)

// Submitter is the slice of the pool API the scheduler needs.
type Submitter interface {
	Submit(ctx context.Context, kind string, payload []byte, opts *pool.SubmitOptions) (*pool.Future, error)
}

// Entry is one recurring submission.
type Entry struct {
	Spec     string
	Kind     string
	Payload  []byte
	Priority int
	Timeout  time.Duration
}

type Service struct {
	cron *cron.Cron
	pool Submitter
	log  logx.Logger
}

func New(p Submitter, log logx.Logger) *Service {
	return &Service{
		cron: cron.New(),
		pool: p,
		log:  log,
	}
}

// Add registers an entry. Specs are standard 5-field cron expressions
// (plus descriptors like "@hourly").
func (s *Service) Add(e Entry) (cron.EntryID, error) {
	if e.Kind == "" {
		return 0, errors.New("schedule: kind is required")
	}
	if _, err := cron.ParseStandard(e.Spec); err != nil {
		return 0, fmt.Errorf("schedule: invalid spec %q: %w", e.Spec, err)
	}
	return s.cron.AddFunc(e.Spec, s.jobFor(e))
}

// jobFor builds the fire handler for one entry. Submission failures are
// expected under load (queue full, thermal reject, shutdown) and only
// logged; the next fire tries again.
func (s *Service) jobFor(e Entry) func() {
	return func() {
		opts := &pool.SubmitOptions{Priority: e.Priority, Timeout: e.Timeout}
		fut, err := s.pool.Submit(context.Background(), e.Kind, e.Payload, opts)
		if err != nil {
			s.log.Debug("scheduled submit skipped",
				logx.String("kind", e.Kind),
				logx.Err(err),
			)
			return
		}
		s.log.Debug("scheduled task submitted", logx.String("kind", e.Kind))
		_ = fut // fire-and-forget; outcomes land in the history journal
	}
}

func (s *Service) Start() { s.cron.Start() }

// Stop halts the triggers; already-fired submissions keep running in the
// pool. It returns once cron's internal goroutine has stopped.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// Entries returns the live cron entries for diagnostics.
func (s *Service) Entries() []cron.Entry { return s.cron.Entries() }
