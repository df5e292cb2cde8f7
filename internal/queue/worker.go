package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job. A nil return completes the job; an error fails
// it. Handlers must be safe to call concurrently up to the stage's
// concurrency limit.
type Handler func(ctx context.Context, job Job) error

type worker struct {
	stage       Stage
	concurrency int
	handler     Handler
}

// Pool polls the broker and dispatches jobs to registered stage handlers,
// each stage bounded by its own concurrency limit.
type Pool struct {
	broker       *Broker
	pollInterval time.Duration
	workers      []worker
}

// NewPool creates a worker pool over the broker.
func NewPool(broker *Broker, pollInterval time.Duration) *Pool {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Pool{broker: broker, pollInterval: pollInterval}
}

// Register adds a stage handler with a concurrency bound. Must be called
// before Run.
func (p *Pool) Register(stage Stage, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	p.workers = append(p.workers, worker{stage: stage, concurrency: concurrency, handler: handler})
}

// Run polls until the context is cancelled, then waits for in-flight jobs to
// finish before returning.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w worker) {
			defer wg.Done()
			p.runStage(ctx, w)
		}(w)
	}
	wg.Wait()
	return nil
}

func (p *Pool) runStage(ctx context.Context, w worker) {
	log := zap.L().With(zap.String("stage", string(w.stage)))
	log.Info("worker started", zap.Int("concurrency", w.concurrency))

	// Counting semaphore: a slot is held for the lifetime of each job.
	slots := make(chan struct{}, w.concurrency)
	var inflight sync.WaitGroup

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			log.Info("worker stopped")
			return
		case <-ticker.C:
		}

		free := w.concurrency - len(slots)
		if free == 0 {
			continue
		}

		jobs, err := p.broker.PollBatch(ctx, w.stage, free)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("poll failed", zap.Error(err))
			}
			continue
		}

		for _, job := range jobs {
			slots <- struct{}{}
			inflight.Add(1)
			go func(job Job) {
				defer func() {
					<-slots
					inflight.Done()
				}()
				p.dispatch(ctx, log, w.handler, job)
			}(job)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context, log *zap.Logger, handler Handler, job Job) {
	start := time.Now()
	err := handler(ctx, job)

	// Completion writes use a fresh context so a shutdown mid-job still
	// records the outcome.
	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err != nil {
		log.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if ferr := p.broker.Fail(finishCtx, job.ID, err.Error()); ferr != nil {
			log.Error("recording job failure failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return
	}

	log.Debug("job done",
		zap.String("job_id", job.ID),
		zap.Duration("elapsed", time.Since(start)))
	if cerr := p.broker.Complete(finishCtx, job.ID); cerr != nil {
		log.Error("recording job completion failed", zap.String("job_id", job.ID), zap.Error(cerr))
	}
}
