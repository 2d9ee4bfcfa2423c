package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned for jobs submitted after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// WorkerPool bounds how many images are encoded and classified at once.
// Telegram, MQTT and the HTTP API all submit through it.
type WorkerPool struct {
	pipeline    *Pipeline
	jobs        chan *job
	workerCount int

	activeJobs      int
	activeJobsMutex sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

type jobKind int

const (
	jobTrain jobKind = iota
	jobPredict
)

type job struct {
	ctx       context.Context
	kind      jobKind
	imageData []byte
	label     string
	source    string
	resultCh  chan *jobResult // Individual result channel per job
}

type jobResult struct {
	result *Result
	err    error
}

// NewWorkerPool starts a pool sized to 75% of the available CPUs, at least 2.
func NewWorkerPool(p *Pipeline) *WorkerPool {
	workerCount := max(2, (runtime.NumCPU()*3)/4)

	log.Infof("Initializing image processing worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		pipeline:    p,
		jobs:        make(chan *job, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case j := <-p.jobs:
					p.activeJobsMutex.Lock()
					p.activeJobs++
					p.activeJobsMutex.Unlock()

					start := time.Now()
					var res jobResult
					switch j.kind {
					case jobTrain:
						res.err = p.pipeline.Train(j.ctx, j.imageData, j.label, j.source)
					case jobPredict:
						res.result, res.err = p.pipeline.Predict(j.ctx, j.imageData)
					}

					p.activeJobsMutex.Lock()
					p.activeJobs--
					p.activeJobsMutex.Unlock()

					select {
					case j.resultCh <- &res:
					default:
						log.Warnf("Worker %d: could not send result, channel might be closed", workerID)
					}

					log.Debugf("Worker %d finished %s job in %v", workerID, j.source, time.Since(start))

				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

// submit queues a job and waits for its result, context cancellation or
// pool shutdown. The jobs channel is never closed, so a submit racing
// Shutdown fails with ErrPoolClosed instead of panicking.
func (p *WorkerPool) submit(j *job) (*Result, error) {
	select {
	case p.jobs <- j:
	case <-p.shutdown:
		return nil, ErrPoolClosed
	case <-j.ctx.Done():
		return nil, j.ctx.Err()
	}

	select {
	case res := <-j.resultCh:
		return res.result, res.err
	case <-p.shutdown:
		return nil, ErrPoolClosed
	case <-j.ctx.Done():
		return nil, j.ctx.Err()
	}
}

// Train enrolls an image through the pool.
func (p *WorkerPool) Train(ctx context.Context, imageData []byte, label, source string) error {
	_, err := p.submit(&job{
		ctx:       ctx,
		kind:      jobTrain,
		imageData: imageData,
		label:     label,
		source:    source,
		resultCh:  make(chan *jobResult, 1),
	})
	return err
}

// Predict classifies an image through the pool.
func (p *WorkerPool) Predict(ctx context.Context, imageData []byte, source string) (*Result, error) {
	return p.submit(&job{
		ctx:       ctx,
		kind:      jobPredict,
		imageData: imageData,
		source:    source,
		resultCh:  make(chan *jobResult, 1),
	})
}

// ActiveJobCount returns the number of jobs currently being processed.
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// WorkerCount returns the number of workers in the pool.
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// QueueCapacity returns the capacity of the job queue.
func (p *WorkerPool) QueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown stops the pool. Safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
