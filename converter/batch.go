package converter

import (
	"sync"
	"time"
)

// BatchResult is the outcome of one task run by RunOrdered.
type BatchResult struct {
	Index    int
	Err      error
	Duration time.Duration
}

// RunOrdered runs task(0..count-1) on up to workers goroutines and calls
// report once per task in index order, whatever order they finish in.
// report runs on a single goroutine.
func RunOrdered(count, workers int, task func(i int) error, report func(BatchResult)) {
	if count <= 0 {
		return
	}
	workers = max(1, min(workers, count))

	taskChan := make(chan int)
	resultChan := make(chan BatchResult, workers)
	wg := &sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range taskChan {
				start := time.Now()
				err := task(i)
				resultChan <- BatchResult{Index: i, Err: err, Duration: time.Since(start)}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		pending := make(map[int]BatchResult)
		nextIndex := 0
		for result := range resultChan {
			pending[result.Index] = result
			for {
				r, ok := pending[nextIndex]
				if !ok {
					break
				}
				report(r)
				delete(pending, nextIndex)
				nextIndex++
			}
		}
		close(done)
	}()

	for i := 0; i < count; i++ {
		taskChan <- i
	}
	close(taskChan)
	wg.Wait()
	close(resultChan)
	<-done
}
