package allocation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunConfig controls parallel attempts. Every worker owns a clone of the
// model and its own random source seeded from Seed.
type RunConfig struct {
	Workers int
	// MaxAttempts bounds attempts across all workers; zero means unbounded.
	MaxAttempts int
	// Seed zero derives seeds from the clock.
	Seed     int64
	Logger   *zap.Logger
	Observer AttemptObserver
}

func (c RunConfig) normalize() RunConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// TargetMode keeps running until Results outcomes each meet every target.
type TargetMode struct {
	Targets map[string]float64
	Results int
}

// BestOfMode runs Attempts successful attempts and keeps the best total.
type BestOfMode struct {
	Attempts int
}

type tally struct {
	mu       sync.Mutex
	attempts int
	failures map[string]int
}

func (t *tally) add(out *Outcome) {
	if out == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts += out.Attempts
	for phase, n := range out.Failures {
		t.failures[phase] += n
	}
}

type pool struct {
	model  *Model
	opts   Options
	cfg    RunConfig
	issued atomic.Int64
	seq    atomic.Int64
}

func newPool(m *Model, opts Options, cfg RunConfig) (*pool, error) {
	if _, err := NewEngine(m.Clone(), opts); err != nil {
		return nil, err
	}
	return &pool{model: m, opts: opts, cfg: cfg.normalize()}, nil
}

func (p *pool) admit() bool {
	n := p.issued.Add(1)
	return p.cfg.MaxAttempts <= 0 || n <= int64(p.cfg.MaxAttempts)
}

func (p *pool) supervisor(worker int) (*Supervisor, error) {
	opts := p.opts
	opts.Rand = rand.New(rand.NewSource(p.cfg.Seed + p.seq.Add(1)))
	return NewSupervisor(p.model.Clone(), opts, SupervisorConfig{
		Logger:   p.cfg.Logger.With(zap.Int("worker", worker)),
		Observer: p.cfg.Observer,
	})
}

// RunParallel races independent attempts on cloned models and returns the
// first success. Attempts and failures are summed over all workers.
func RunParallel(ctx context.Context, m *Model, opts Options, cfg RunConfig) (*Outcome, error) {
	p, err := newPool(m, opts, cfg)
	if err != nil {
		return nil, err
	}
	return p.race(ctx)
}

func (p *pool) race(parent context.Context) (*Outcome, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	t := &tally{failures: make(map[string]int)}
	var (
		once   sync.Once
		winner *Outcome
	)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			sup, err := p.supervisor(worker)
			if err != nil {
				return err
			}
			out, err := sup.run(gCtx, p.admit)
			t.add(out)
			switch {
			case err == nil:
				once.Do(func() {
					winner = out
					cancel()
				})
				return nil
			case errors.Is(err, ErrAttemptsExhausted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if winner == nil {
		if err := parent.Err(); err != nil {
			return &Outcome{Attempts: t.attempts, Failures: t.failures, Elapsed: time.Since(start)}, err
		}
		return &Outcome{Attempts: t.attempts, Failures: t.failures, Elapsed: time.Since(start)}, ErrAttemptsExhausted
	}
	return &Outcome{
		Snapshot: winner.Snapshot,
		Attempts: t.attempts,
		Failures: t.failures,
		Elapsed:  time.Since(start),
	}, nil
}

// RunTarget collects mode.Results successful outcomes whose scores meet
// every target. Each outcome carries the attempts spent since the previous
// one. Results found before an error are returned with it.
func RunTarget(ctx context.Context, m *Model, opts Options, cfg RunConfig, mode TargetMode) ([]*Outcome, error) {
	p, err := newPool(m, opts, cfg)
	if err != nil {
		return nil, err
	}
	results := mode.Results
	if results <= 0 {
		results = 1
	}

	var out []*Outcome
	start := time.Now()
	acc := &Outcome{Failures: make(map[string]int)}
	for len(out) < results {
		res, err := p.race(ctx)
		if res != nil {
			acc.Attempts += res.Attempts
			for phase, n := range res.Failures {
				acc.Failures[phase] += n
			}
		}
		if err != nil {
			return out, err
		}
		if !MeetsTargets(res.Snapshot.Scores, mode.Targets) {
			continue
		}
		acc.Snapshot = res.Snapshot
		acc.Elapsed = time.Since(start)
		out = append(out, acc)
		start = time.Now()
		acc = &Outcome{Failures: make(map[string]int)}
	}
	return out, nil
}

// RunBestOf runs mode.Attempts successful attempts across the workers and
// keeps the one with the highest total score.
func RunBestOf(ctx context.Context, m *Model, opts Options, cfg RunConfig, mode BestOfMode) (*Outcome, error) {
	p, err := newPool(m, opts, cfg)
	if err != nil {
		return nil, err
	}
	want := int64(mode.Attempts)
	if want <= 0 {
		want = 1
	}

	start := time.Now()
	t := &tally{failures: make(map[string]int)}
	var (
		mu   sync.Mutex
		best *Snapshot
		done atomic.Int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			sup, err := p.supervisor(worker)
			if err != nil {
				return err
			}
			for done.Load() < want {
				out, err := sup.run(gCtx, p.admit)
				t.add(out)
				if err != nil {
					if errors.Is(err, ErrAttemptsExhausted) || gCtx.Err() != nil {
						return nil
					}
					return err
				}
				if done.Add(1) > want {
					return nil
				}
				mu.Lock()
				if best == nil || out.Snapshot.Total() > best.Total() {
					best = out.Snapshot
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{Snapshot: best, Attempts: t.attempts, Failures: t.failures, Elapsed: time.Since(start)}
	if best == nil {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		return out, ErrAttemptsExhausted
	}
	return out, nil
}
