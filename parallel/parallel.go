// Package parallel provides the blocking fork-join helper used by every
// parallel phase. Goroutines are spawned per call and joined before return;
// there is no persistent pool.
package parallel

import (
	"runtime"
	"sync"
)

// Threshold is the minimum item count worth splitting across goroutines.
// Below this, running inline is faster than goroutine overhead.
const Threshold = 64

// Workers returns min(GOMAXPROCS, n), at least 1.
func Workers(n int) int {
	w := runtime.GOMAXPROCS(0)
	if n < w {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// For splits [0, n) into contiguous ranges, one per worker, calls fn on
// each range concurrently and blocks until all return. workers <= 0 uses
// Workers(n). Each fn call owns its range exclusively.
func For(n, workers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = Workers(n)
	}
	if n < Threshold || workers == 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

// Each runs fn(i) for every i in [0, n) using For.
func Each(n int, fn func(i int)) {
	For(n, 0, func(start, end int) {
		for i := start; i < end; i++ {
			fn(i)
		}
	})
}
