package runner

import (
	"context"
	"testing"
	"time"
)

func TestPoissonArrivalNextDelayUsesSampler(t *testing.T) {
	ctrl := &poissonArrival{rate: 200, sample: func() float64 { return 1 }}
	delay := ctrl.nextDelay()
	expected := time.Second / 200
	if delay != expected {
		t.Fatalf("expected delay %s, got %s", expected, delay)
	}
}

func TestPoissonArrivalWaitCancelledContext(t *testing.T) {
	ctrl := &poissonArrival{rate: 0.000001, sample: func() float64 { return 1 }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Wait(ctx); err == nil {
		t.Fatalf("expected context error when cancelled")
	}
}

func TestArrivalControllerSelection(t *testing.T) {
	opt := Options{}
	opt.normalize()
	if ctrl := newArrivalController(opt); ctrl != nil {
		t.Fatalf("expected no pacing without a rate, got %T", ctrl)
	}

	opt.RatePerSecond = 10
	if _, ok := newArrivalController(opt).(*uniformArrival); !ok {
		t.Fatalf("expected uniform arrival by default")
	}

	opt.ArrivalModel = ArrivalModelPoisson
	if _, ok := newArrivalController(opt).(*poissonArrival); !ok {
		t.Fatalf("expected poisson arrival")
	}
}
