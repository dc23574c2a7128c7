package runner

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.Users != 1 {
					t.Errorf("Users = %d, want 1", o.Users)
				}
				if o.ArrivalModel != ArrivalModelUniform {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelUniform)
				}
				if o.RandomSeed == 0 {
					t.Error("RandomSeed should be non-zero")
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
			},
		},
		{
			name: "negative values corrected",
			input: Options{
				Users:         -5,
				Iterations:    -10,
				RatePerSecond: -1,
				SpawnRate:     -2,
				Duration:      -1,
			},
			validate: func(t *testing.T, o Options) {
				if o.Users != 1 {
					t.Errorf("Users = %d, want 1", o.Users)
				}
				if o.Iterations != 0 {
					t.Errorf("Iterations = %d, want 0", o.Iterations)
				}
				if o.RatePerSecond != 0 {
					t.Errorf("RatePerSecond = %d, want 0", o.RatePerSecond)
				}
				if o.SpawnRate != 0 {
					t.Errorf("SpawnRate = %v, want 0", o.SpawnRate)
				}
				if o.Duration != 0 {
					t.Errorf("Duration = %s, want 0", o.Duration)
				}
			},
		},
		{
			name: "preserve valid values",
			input: Options{
				Users:         10,
				Iterations:    100,
				RatePerSecond: 50,
				SpawnRate:     2.5,
				ArrivalModel:  ArrivalModelPoisson,
				RandomSeed:    12345,
			},
			validate: func(t *testing.T, o Options) {
				if o.Users != 10 {
					t.Errorf("Users = %d, want 10", o.Users)
				}
				if o.Iterations != 100 {
					t.Errorf("Iterations = %d, want 100", o.Iterations)
				}
				if o.RatePerSecond != 50 {
					t.Errorf("RatePerSecond = %d, want 50", o.RatePerSecond)
				}
				if o.SpawnRate != 2.5 {
					t.Errorf("SpawnRate = %v, want 2.5", o.SpawnRate)
				}
				if o.ArrivalModel != ArrivalModelPoisson {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelPoisson)
				}
				if o.RandomSeed != 12345 {
					t.Errorf("RandomSeed = %d, want 12345", o.RandomSeed)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			tt.validate(t, opts)
		})
	}
}

func TestLimiterFactory(t *testing.T) {
	opts := Options{}
	opts.normalize()

	limiter := opts.LimiterFactory(0)
	if limiter.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", limiter.Limit())
	}

	rps := 100
	limiter = opts.LimiterFactory(rps)
	if limiter.Limit() != rate.Limit(rps) {
		t.Errorf("Limit(%d) = %v, want %v", rps, limiter.Limit(), rate.Limit(rps))
	}
	if limiter.Burst() != 1 {
		t.Errorf("Burst(%d) = %d, want 1", rps, limiter.Burst())
	}
}
