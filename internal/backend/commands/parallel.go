package commands

import (
	"runtime"
	"sync"
)

// parallelFor runs fn(y) for every row y in [0, n) on up to GOMAXPROCS workers.
// Rows are striped across workers; fn must only touch state owned by row y.
func parallelFor(n int, fn func(y int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(offset int) {
			defer wg.Done()
			for y := offset; y < n; y += workers {
				fn(y)
			}
		}(w)
	}
	wg.Wait()
}
