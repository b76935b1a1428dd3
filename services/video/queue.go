package video

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/metrics"
	"github.com/walletreel/walletreel/models"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// ProcessFunc runs one generation job.
type ProcessFunc func(ctx context.Context, video *models.VideoRequest) error

// PanicFunc is called with the job's video after its ProcessFunc panicked.
type PanicFunc func(video *models.VideoRequest, recovered any)

type GenerationJob struct {
	ID         string
	Video      *models.VideoRequest
	ctx        context.Context
	cancelFunc context.CancelFunc
	startTime  time.Time
}

// JobQueue is a fixed pool of workers fed by a bounded channel.
type JobQueue struct {
	jobs        chan *GenerationJob
	activeJobs  map[string]*GenerationJob
	workerCount int
	timeout     time.Duration
	mu          sync.Mutex
	closed      bool
	quit        chan struct{}
	wg          sync.WaitGroup
	logger      *logrus.Logger
	onPanic     PanicFunc
}

func NewJobQueue(workerCount, maxQueueSize int, timeout time.Duration, logger *logrus.Logger) *JobQueue {
	if workerCount < 1 {
		workerCount = 1
	}
	if maxQueueSize < 1 {
		maxQueueSize = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &JobQueue{
		jobs:        make(chan *GenerationJob, maxQueueSize),
		activeJobs:  make(map[string]*GenerationJob),
		workerCount: workerCount,
		timeout:     timeout,
		quit:        make(chan struct{}),
		logger:      logger,
	}
}

// OnPanic registers fn to run after a job panics. It must be called before
// Start.
func (q *JobQueue) OnPanic(fn PanicFunc) {
	q.onPanic = fn
}

// Start begins processing jobs
func (q *JobQueue) Start(process ProcessFunc) {
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i, process)
	}
}

// Submit queues video for processing without blocking. The job runs under
// its own context bounded by the queue timeout, not the caller's.
func (q *JobQueue) Submit(video *models.VideoRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), q.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	job := &GenerationJob{
		ID:         video.ID,
		Video:      video,
		ctx:        ctx,
		cancelFunc: cancel,
		startTime:  time.Now(),
	}

	select {
	case q.jobs <- job:
	default:
		cancel()
		return ErrQueueFull
	}

	// workers delete under q.mu, so the entry is visible before they can
	q.activeJobs[job.ID] = job
	metrics.QueueDepth.Inc()
	return nil
}

// Active returns the number of queued or running jobs.
func (q *JobQueue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.activeJobs)
}

// Cancel attempts to cancel a job
func (q *JobQueue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.activeJobs[jobID]
	if !exists {
		return false
	}
	job.cancelFunc()
	return true
}

func (q *JobQueue) worker(id int, process ProcessFunc) {
	defer q.wg.Done()
	log := q.logger.WithField("worker_id", id)
	log.Debug("Starting worker")

	for {
		var job *GenerationJob
		select {
		case <-q.quit:
			log.Debug("Worker shutting down")
			return
		case job = <-q.jobs:
		}

		q.run(log, job, process)
	}
}

func (q *JobQueue) run(log *logrus.Entry, job *GenerationJob, process ProcessFunc) {
	log = log.WithField("job_id", job.ID)
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("Job panicked")
			if q.onPanic != nil {
				q.onPanic(job.Video, p)
			}
		}

		job.cancelFunc()
		q.mu.Lock()
		delete(q.activeJobs, job.ID)
		q.mu.Unlock()
		metrics.QueueDepth.Dec()
	}()

	log.WithField("waited", time.Since(job.startTime)).Info("Started processing job")
	start := time.Now()

	err := process(job.ctx, job.Video)
	fields := logrus.Fields{"duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Job processing failed")
		return
	}
	log.WithFields(fields).Info("Job processing succeeded")
}

// Close stops accepting jobs, cancels running ones and waits for the
// workers to exit. Jobs still queued are dropped.
func (q *JobQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	for _, job := range q.activeJobs {
		job.cancelFunc()
	}
	q.mu.Unlock()

	q.wg.Wait()
}
