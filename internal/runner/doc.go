// Package runner is the load engine behind servebench.
//
// A [Runner] starts a pool of simulated users. Each user repeatedly invokes
// the configured [Task]; a single scheduler goroutine hands out one permit
// per invocation, so the iteration cap and pacing apply to the run as a whole.
//
// # Basic Usage
//
//	opts := runner.Options{
//		Users:         10,
//		SpawnRate:     2,
//		Iterations:    100,
//		Duration:      time.Minute,
//		RatePerSecond: 5,
//		Task:          task,
//	}
//	result := runner.New(opts).Run(ctx)
//
// # Arrival Models
//
// When RatePerSecond is set, invocations are paced by:
//   - [ArrivalModelUniform]: evenly spaced through a rate.Limiter
//   - [ArrivalModelPoisson]: exponential gaps with the same mean rate
//
// # Middleware
//
// [WithLogging] reports every failed invocation to a [FailureLogger].
//
// # Error Handling
//
// [RequestError] describes a failed prediction request:
//
//	var reqErr *runner.RequestError
//	if errors.As(err, &reqErr) {
//		fmt.Printf("Status: %d, Message: %s\n", reqErr.StatusCode, reqErr.Message())
//	}
package runner
