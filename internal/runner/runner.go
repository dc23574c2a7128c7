package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures execution summary.
type Result struct {
	Total    int64 // task invocations that ran
	Errors   int64 // invocations that returned an error
	Users    int64 // users that were started
	Duration time.Duration
}

type userKey struct{}

// WithUserID tags ctx with the simulated user's 1-based index.
func WithUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserID returns the simulated user executing ctx, or 0 outside a run.
func UserID(ctx context.Context) int {
	id, _ := ctx.Value(userKey{}).(int)
	return id
}

// Runner drives a fixed pool of simulated users. Each user loops taking
// permits from a single scheduler, so iteration caps and pacing are global.
type Runner struct {
	opt     Options
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, arrival: newArrivalController(opt)}
}

func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var issued, total, errs, users int64

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, r.opt.Duration)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	permits := make(chan struct{}, r.opt.Users)

	// Scheduler: serializes pacing to avoid burst overshoot across users.
	go func() {
		defer close(permits)
		for {
			if ctx.Err() != nil {
				return
			}
			if r.opt.Iterations > 0 && issued >= int64(r.opt.Iterations) {
				return
			}
			if r.arrival != nil {
				if err := r.arrival.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case permits <- struct{}{}:
				issued++
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(r.opt.Users)
	for i := 0; i < r.opt.Users; i++ {
		go func(id int) {
			defer wg.Done()
			if !r.waitForSpawn(ctx, id) {
				return
			}
			atomic.AddInt64(&users, 1)
			userCtx := WithUserID(ctx, id+1)
			for range permits {
				if ctx.Err() != nil {
					return
				}
				atomic.AddInt64(&total, 1)
				if r.opt.Task != nil {
					if err := r.opt.Task.Do(userCtx); err != nil {
						atomic.AddInt64(&errs, 1)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	return Result{
		Total:    atomic.LoadInt64(&total),
		Errors:   atomic.LoadInt64(&errs),
		Users:    atomic.LoadInt64(&users),
		Duration: time.Since(start),
	}
}

// waitForSpawn delays user id according to SpawnRate. It reports false when
// the run ended before the user was due.
func (r *Runner) waitForSpawn(ctx context.Context, id int) bool {
	if r.opt.SpawnRate <= 0 || id == 0 {
		return ctx.Err() == nil
	}
	delay := time.Duration(float64(id) / r.opt.SpawnRate * float64(time.Second))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
