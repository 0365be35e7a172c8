package testutil

import (
	"sync"

	dErrors "rekamed/pkg/domain-errors"
)

// ConcurrentResult tallies outcomes of concurrent test operations by domain
// error code. Foreign errors count as internal_error.
type ConcurrentResult struct {
	Successes int
	Codes     map[dErrors.Code]int
	Errors    []error
}

// Count returns how many calls failed with code.
func (r *ConcurrentResult) Count(code dErrors.Code) int {
	return r.Codes[code]
}

// Total returns the number of calls made.
func (r *ConcurrentResult) Total() int {
	return r.Successes + len(r.Errors)
}

// RunConcurrent runs fn from n goroutines released together and collects
// the results once all have returned.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
		res   = &ConcurrentResult{Codes: make(map[dErrors.Code]int)}
	)

	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Successes++
				return
			}
			res.Errors = append(res.Errors, err)
			res.Codes[dErrors.CodeOf(err)]++
		}(i)
	}

	close(start)
	wg.Wait()
	return res
}
