package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Task is the unit of work a simulated user repeats. One call is one
// iteration; implementations return an error when the iteration failed.
type Task interface {
	Do(ctx context.Context) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Do(ctx context.Context) error { return f(ctx) }

// ArrivalModel selects how task invocations are spaced when a rate is set.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Users          int                         // number of simulated users (worker goroutines)
	SpawnRate      float64                     // users started per second (0 starts all at once)
	Iterations     int                         // total task invocations across users (0 means unlimited)
	Duration       time.Duration               // overall time limit (0 means no duration cap)
	RatePerSecond  int                         // task invocations per second (0 means unlimited)
	Task           Task                        // per-user task (required)
	ArrivalModel   ArrivalModel                // pacing model when RatePerSecond > 0
	PoissonSampler func() float64              // optional exponential sampler for tests
	RandomSeed     int64                       // seed for the poisson sampler
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Users <= 0 {
		o.Users = 1
	}
	if o.SpawnRate < 0 {
		o.SpawnRate = 0
	}
	if o.Iterations < 0 {
		o.Iterations = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps invocations evenly spaced across users.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
