package engine

import (
	"context"
	"log"

	"github.com/scrypster/perspective/internal/llm"
	"github.com/scrypster/perspective/pkg/types"
)

// refillJob asks a worker to top up one pool partition with a fresh batch.
// The plan and context are snapshots from the request that noticed the pool
// running low.
type refillJob struct {
	sig  string
	plan types.Plan
	rc   types.RouterContext
}

// enqueueRefill hands a job to the worker queue without blocking the serving
// request. A full queue drops the job; the next low-pool request will retry.
func (e *Engine) enqueueRefill(job refillJob) {
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	select {
	case e.refillJobs <- job:
	default:
		log.Printf("WARNING: refill queue full, dropping job for %s", job.sig)
	}
}

// refillWorker drains the job queue until it closes, running one batch call
// per job.
func (e *Engine) refillWorker(id int) {
	defer e.wg.Done()

	for job := range e.refillJobs {
		e.runRefill(job)
	}
	log.Printf("Refill worker %d stopped", id)
}

// runRefill executes one refill batch: collect the whole stream, append to
// the pool. A pool already topped up by a concurrent job is left alone.
func (e *Engine) runRefill(job refillJob) {
	ctx, cancel := context.WithTimeout(context.Background(), e.llmCfg.BatchTimeout)
	defer cancel()

	if size := e.pool.Size(ctx, job.sig); size >= e.engineCfg.RefillThreshold {
		return
	}

	req := llm.BatchRequest{
		Plan:      job.plan,
		Context:   job.rc,
		Avoid:     avoidList(job.rc.Recent),
		BatchSize: e.llmCfg.BatchSize,
	}

	ch, err := e.generator.GenerateBatch(ctx, req)
	if err != nil {
		log.Printf("WARNING: refill generation failed for %s: %v", job.sig, err)
		return
	}

	var items []types.PoolItem
	for item := range ch {
		items = append(items, item)
	}
	if len(items) == 0 {
		log.Printf("WARNING: refill stream for %s produced no usable candidates", job.sig)
		return
	}

	if err := e.pool.Append(context.Background(), job.sig, items); err != nil {
		log.Printf("WARNING: failed to pool %d refill candidates for %s: %v", len(items), job.sig, err)
		return
	}
	log.Printf("Pooled %d candidates under %s (refill)", len(items), job.sig)
}
