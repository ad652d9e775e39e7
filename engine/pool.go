package engine

import (
	"runtime"
	"sync"
)

// minParallelRows is the row count below which compositor passes run on
// the calling goroutine.
const minParallelRows = 64

// workChunk represents a range of items for a worker to process.
type workChunk struct {
	index      int
	start, end int
	fn         func(worker, start, end int)
}

// pool is a persistent set of workers fed fixed chunks. Chunk i always
// covers the same range for a given n, so per-chunk scratch is stable.
type pool struct {
	numWorkers int
	threshold  int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newPool(workers, threshold int) *pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &pool{numWorkers: workers, threshold: max(1, threshold)}
}

// startWorkers launches persistent worker goroutines.
func (p *pool) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *pool) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.index, chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// Run processes [0, n) with the item threshold.
func (p *pool) Run(n int, fn func(worker, start, end int)) {
	p.dispatch(n, p.threshold, fn)
}

// dispatch runs fn serially below threshold, otherwise in one chunk per
// worker, and returns once every chunk has finished.
func (p *pool) dispatch(n, threshold int, fn func(worker, start, end int)) {
	if n <= 0 {
		return
	}
	if n < threshold || p.numWorkers == 1 {
		fn(0, 0, n)
		return
	}

	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{index: w, start: start, end: end, fn: fn}
		chunksDispatched++
	}

	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}

// rowRunner adapts the pool for compositor row bands.
type rowRunner struct{ p *pool }

func (r rowRunner) Run(n int, fn func(worker, start, end int)) {
	r.p.dispatch(n, minParallelRows, fn)
}
