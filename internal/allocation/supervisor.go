package allocation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// AttemptObserver is notified after every attempt. An empty phase means the
// attempt succeeded.
type AttemptObserver interface {
	ObserveAttempt(phase string)
}

// Outcome is the result of a supervised run.
type Outcome struct {
	Snapshot *Snapshot
	Attempts int
	Failures map[string]int
	Elapsed  time.Duration
}

// SupervisorConfig bounds and instruments a supervisor.
type SupervisorConfig struct {
	// MaxAttempts stops the loop with ErrAttemptsExhausted; zero means unbounded.
	MaxAttempts int
	Logger      *zap.Logger
	Observer    AttemptObserver
}

// Supervisor retries whole attempts on one model until one succeeds.
type Supervisor struct {
	engine *Engine
	cfg    SupervisorConfig
	logger *zap.Logger
}

// NewSupervisor validates the model and prepares an engine for it.
func NewSupervisor(m *Model, opts Options, cfg SupervisorConfig) (*Supervisor, error) {
	engine, err := NewEngine(m, opts)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{engine: engine, cfg: cfg, logger: logger}, nil
}

// Run resets the model and runs attempts until one completes, the attempt
// bound is hit, or ctx is done.
func (s *Supervisor) Run(ctx context.Context) (*Outcome, error) {
	return s.run(ctx, func() bool { return true })
}

// run is Run with an external admission check consulted before each attempt.
func (s *Supervisor) run(ctx context.Context, admit func() bool) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Failures: make(map[string]int)}
	m := s.engine.Model()

	for {
		if err := ctx.Err(); err != nil {
			out.Elapsed = time.Since(start)
			return out, err
		}
		if s.cfg.MaxAttempts > 0 && out.Attempts >= s.cfg.MaxAttempts {
			out.Elapsed = time.Since(start)
			return out, ErrAttemptsExhausted
		}
		if !admit() {
			out.Elapsed = time.Since(start)
			return out, ErrAttemptsExhausted
		}

		out.Attempts++
		m.Reset()
		err := s.engine.Run(ctx)

		var fe *FatalError
		switch {
		case err == nil:
			s.observe("")
			out.Elapsed = time.Since(start)
			out.Snapshot = Capture(m)
			s.logger.Debug("allocation attempt succeeded",
				zap.Int("attempt", out.Attempts),
				zap.Duration("elapsed", out.Elapsed),
			)
			return out, nil
		case errors.As(err, &fe):
			out.Failures[fe.Phase]++
			s.observe(fe.Phase)
			s.logger.Debug("allocation attempt failed",
				zap.Int("attempt", out.Attempts),
				zap.String("phase", fe.Phase),
				zap.String("reason", fe.Reason),
			)
		default:
			out.Elapsed = time.Since(start)
			return out, err
		}
	}
}

func (s *Supervisor) observe(phase string) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveAttempt(phase)
	}
}
