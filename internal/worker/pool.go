package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scholarchat-backend/internal/models"
)

var (
	ErrQueueFull = errors.New("incident queue full")
	ErrStopped   = errors.New("incident pool stopped")
)

const writeTimeout = 5 * time.Second

// IncidentStore persists one incident. *repository.IncidentRepo satisfies it.
type IncidentStore interface {
	Record(ctx context.Context, incident models.ModerationIncident) error
}

// Pool writes moderation incidents in the background so a slow database never
// stalls a chat stream. Record never blocks.
type Pool struct {
	store       IncidentStore
	jobs        chan models.ModerationIncident
	workerCount int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	log         *slog.Logger
}

func NewPool(store IncidentStore, workerCount, queueSize int, logger *slog.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		store:       store,
		jobs:        make(chan models.ModerationIncident, queueSize),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
		log:         logger,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.Info("incident workers started", "count", p.workerCount)
}

// Stop writes whatever is still queued, then waits for the workers to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

// Record queues an incident.
func (p *Pool) Record(_ context.Context, incident models.ModerationIncident) error {
	select {
	case <-p.stopChan:
		return ErrStopped
	default:
	}

	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now()
	}

	select {
	case p.jobs <- incident:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case incident := <-p.jobs:
			p.write(id, incident)
		case <-p.stopChan:
			for {
				select {
				case incident := <-p.jobs:
					p.write(id, incident)
				default:
					p.log.Debug("incident worker shutting down", "worker", id)
					return
				}
			}
		}
	}
}

func (p *Pool) write(id int, incident models.ModerationIncident) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.store.Record(ctx, incident); err != nil {
		p.log.Error("failed to write moderation incident",
			"worker", id,
			"request_id", incident.RequestID,
			"stage", incident.Stage,
			"err", err,
		)
	}
}
