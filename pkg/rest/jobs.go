package rest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sqlgate/sqlgate/pkg/metrics"
)

type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Job records one asynchronous execution so its outcome can be retrieved
// later through the job endpoint instead of vanishing into a log line.
type Job struct {
	ID          string     `json:"id"`
	Endpoint    string     `json:"endpoint"`
	Status      JobStatus  `json:"status"`
	Result      *Envelope  `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// JobStore runs async executions on a bounded worker pool and keeps their
// results for retrieval. The bound is deliberate: when every worker slot is
// taken, Submit rejects instead of queueing without limit.
type JobStore struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	ttl     time.Duration
	logger  *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	done chan struct{}
	once sync.Once
}

func NewJobStore(workers int64, timeout, ttl time.Duration, logger *zap.Logger) *JobStore {
	if workers <= 0 {
		workers = 8
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	js := &JobStore{
		sem:     semaphore.NewWeighted(workers),
		timeout: timeout,
		ttl:     ttl,
		logger:  logger,
		jobs:    make(map[string]*Job),
		done:    make(chan struct{}),
	}
	go js.sweep()
	return js
}

// Submit starts fn on a worker slot and records its outcome under id.
// It returns immediately; a saturated pool yields a 503 StatusError.
func (js *JobStore) Submit(id, endpoint string, fn func(context.Context) (*Envelope, *StatusError)) *StatusError {
	if !js.sem.TryAcquire(1) {
		return unavailablef("async workers saturated, retry later")
	}

	job := &Job{
		ID:          id,
		Endpoint:    endpoint,
		Status:      JobQueued,
		SubmittedAt: time.Now().UTC(),
	}
	js.mu.Lock()
	js.jobs[id] = job
	js.mu.Unlock()
	metrics.AsyncJobsActive.Inc()

	go func() {
		defer js.sem.Release(1)
		defer metrics.AsyncJobsActive.Dec()

		js.setStatus(id, JobRunning)

		// The inbound request is long gone by the time this runs, so the
		// execution gets its own deadline instead of the request context.
		ctx, cancel := context.WithTimeout(context.Background(), js.timeout)
		defer cancel()

		env, serr := fn(ctx)
		now := time.Now().UTC()

		js.mu.Lock()
		if serr != nil {
			job.Status = JobFailed
			job.Error = serr.Message
		} else {
			job.Status = JobSucceeded
			job.Result = env
		}
		job.FinishedAt = &now
		js.mu.Unlock()

		if serr != nil {
			metrics.AsyncJobsTotal.WithLabelValues("failed").Inc()
			js.logger.Warn("async execution failed",
				zap.String("job_id", id),
				zap.String("endpoint", endpoint),
				zap.String("error", serr.Message),
			)
		} else {
			metrics.AsyncJobsTotal.WithLabelValues("succeeded").Inc()
			js.logger.Info("async execution finished",
				zap.String("job_id", id),
				zap.String("endpoint", endpoint),
			)
		}
	}()
	return nil
}

// Get returns a copy of the job record.
func (js *JobStore) Get(id string) (Job, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	job, ok := js.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (js *JobStore) setStatus(id string, status JobStatus) {
	js.mu.Lock()
	defer js.mu.Unlock()
	if job, ok := js.jobs[id]; ok {
		job.Status = status
	}
}

// sweep drops finished jobs once they outlive the retention TTL.
func (js *JobStore) sweep() {
	ticker := time.NewTicker(js.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-js.done:
			return
		case now := <-ticker.C:
			js.mu.Lock()
			for id, job := range js.jobs {
				if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > js.ttl {
					delete(js.jobs, id)
				}
			}
			js.mu.Unlock()
		}
	}
}

func (js *JobStore) Close() {
	js.once.Do(func() { close(js.done) })
}
