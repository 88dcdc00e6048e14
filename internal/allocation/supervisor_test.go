package allocation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu     sync.Mutex
	phases []string
}

func (r *recordingObserver) ObserveAttempt(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

// impossibleSchool needs five students per research section but has two.
func impossibleSchool(t *testing.T) *school {
	t.Helper()
	s := newSchool(t)
	s.m.Courses[s.lab].Capacity = Capacity{Minimum: 5, Ideal: 10, Maximum: 20}
	s.addStudent("Ana", []CourseID{s.physics}, []CourseID{s.art})
	s.addStudent("Ben", []CourseID{s.chemistry}, []CourseID{s.music})
	return s
}

func TestSupervisorStopsAtAttemptBound(t *testing.T) {
	s := impossibleSchool(t)
	observer := &recordingObserver{}

	sup, err := NewSupervisor(s.m, Options{Rand: rand.New(rand.NewSource(1))}, SupervisorConfig{
		MaxAttempts: 3,
		Logger:      zap.NewNop(),
		Observer:    observer,
	})
	require.NoError(t, err)

	out, err := sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttemptsExhausted))
	assert.Equal(t, 3, out.Attempts)
	assert.Nil(t, out.Snapshot)

	failures := 0
	for _, n := range out.Failures {
		failures += n
	}
	assert.Equal(t, 3, failures)
	require.Len(t, observer.phases, 3)
	for _, phase := range observer.phases {
		assert.NotEmpty(t, phase)
	}
}

func TestSupervisorReturnsConfigErrorsImmediately(t *testing.T) {
	m := NewModel()
	m.AddCourseType("Core")

	_, err := NewSupervisor(m, Options{}, SupervisorConfig{})
	assert.True(t, errors.Is(err, ErrInvalidCatalog))
}

func TestSupervisorHonoursCancellation(t *testing.T) {
	s := impossibleSchool(t)
	sup, err := NewSupervisor(s.m, Options{Rand: rand.New(rand.NewSource(1))}, SupervisorConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sup.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFatalErrorFormatting(t *testing.T) {
	err := fatal(PhaseCheck, "%s below minimum", "Lab A1")

	assert.Equal(t, "post-check: Lab A1 below minimum", err.Error())
	assert.True(t, IsFatal(err))
	assert.False(t, IsFatal(ErrInvalidCatalog))
}
