package worker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Task func()

// Pool — пул горутин для фоновых прогонов. Паника задачи не роняет воркера.
type Pool struct {
	tasks      chan Task
	wg         sync.WaitGroup
	mu         sync.RWMutex
	active     int
	maxWorkers int
	logger     zerolog.Logger
}

func NewPool(maxWorkers int, logger zerolog.Logger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 3
	}
	return &Pool{
		tasks:      make(chan Task, maxWorkers*10),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info().Int("workers", p.maxWorkers).Msg("Worker pool started")
}

// Stop дожидается завершения уже взятых задач.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
	}

	p.logger.Warn().Msg("Worker pool queue is full")
	select {
	case p.tasks <- task:
		return true
	case <-time.After(time.Second):
		p.logger.Error().Msg("Failed to submit task to worker pool")
		return false
	}
}

// ActiveWorkers — число воркеров, занятых задачей прямо сейчас.
func (p *Pool) ActiveWorkers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

func (p *Pool) QueueLength() int {
	return len(p.tasks)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.mu.Lock()
		p.active++
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().
						Int("worker_id", id).
						Interface("panic", r).
						Msg("Worker recovered from panic")
				}
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
			}()
			task()
		}()
	}
}
