package runner_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalnine/bart/internal/runner"
)

func TestPool(t *testing.T) {
	var count atomic.Int32
	jobs := make([]runner.Job, 10)
	for i := range jobs {
		jobs[i] = func() error {
			count.Add(1)
			return nil
		}
	}
	errs := runner.RunPool(3, jobs)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	jobs := []runner.Job{
		func() error { return nil },
		func() error { return fmt.Errorf("fail a") },
		func() error { return nil },
		func() error { return fmt.Errorf("fail b") },
	}
	errs := runner.RunPool(2, jobs)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Error() != "fail a" || errs[1].Error() != "fail b" {
		t.Errorf("errors out of job order: %v", errs)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	jobs := make([]runner.Job, 12)
	for i := range jobs {
		jobs[i] = func() error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}
	}
	runner.RunPool(3, jobs)
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds 3", peak.Load())
	}
}

func TestPoolSequential(t *testing.T) {
	var order []int
	jobs := make([]runner.Job, 5)
	for i := range jobs {
		i := i
		jobs[i] = func() error {
			order = append(order, i)
			return nil
		}
	}
	runner.RunPool(1, jobs)
	for i, v := range order {
		if v != i {
			t.Fatalf("degree 1 ran out of order: %v", order)
		}
	}
}

func TestPoolEmpty(t *testing.T) {
	if errs := runner.RunPool(4, nil); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}
