package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForCoversRangeOnce(t *testing.T) {
	for _, n := range []int{0, 1, 63, 64, 1000, 4097} {
		hits := make([]int32, n)
		For(n, 0, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
	}
}

func TestForExplicitWorkers(t *testing.T) {
	var calls atomic.Int32
	For(1000, 7, func(start, end int) {
		calls.Add(1)
	})
	if calls.Load() != 7 {
		t.Errorf("calls = %d, want 7", calls.Load())
	}
}

func TestWorkers(t *testing.T) {
	if Workers(0) != 1 {
		t.Error("Workers(0) should be 1")
	}
	if Workers(1) != 1 {
		t.Error("Workers(1) should be 1")
	}
}

func TestEach(t *testing.T) {
	var sum atomic.Int64
	Each(500, func(i int) { sum.Add(int64(i)) })
	if sum.Load() != 500*499/2 {
		t.Errorf("sum = %d", sum.Load())
	}
}
