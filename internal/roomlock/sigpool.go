package roomlock

import "sync"

// Verifier is a pure input to bool check, typically graph.(*Node).Verify or
// graph.(*Edge).Verify, run in parallel across a batch of rows during sync
// ingestion (§4.7).
type Verifier func() bool

// VerifyAll runs each verifier in verifiers across up to `workers`
// goroutines and returns their results in the same order as the input,
// so callers can zip results back against the rows they verified.
func VerifyAll(verifiers []Verifier, workers int) []bool {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(verifiers) {
		workers = len(verifiers)
	}
	results := make([]bool, len(verifiers))
	if len(verifiers) == 0 {
		return results
	}

	verifyQueueDepth.Set(float64(len(verifiers)))
	defer verifyQueueDepth.Set(0)

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = verifiers[i]()
				verifyQueueDepth.Dec()
			}
		}()
	}
	for i := range verifiers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
