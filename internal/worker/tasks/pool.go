// Package tasks runs fire-and-forget work submitted to the worker service on
// a bounded pool of goroutines.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/starter/pkg/metricsx"
	"github.com/aussiebroadwan/starter/pkg/retry"
	"github.com/aussiebroadwan/starter/pkg/slogx"
)

var (
	ErrQueueFull  = errors.New("task queue is full")
	ErrPoolClosed = errors.New("task pool is closed")
)

// Task is one unit of submitted work.
type Task struct {
	ID   string
	Type string
	Data map[string]any
}

// Handler processes one task type. Returning retry.Permanent(err) stops
// further attempts.
type Handler func(ctx context.Context, t Task) error

type Config struct {
	Workers   int
	QueueSize int
	Retry     retry.Policy
}

// Pool dispatches tasks to handlers by type.
type Pool struct {
	cfg      Config
	logger   *slog.Logger
	handlers map[string]Handler

	queue  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
		queue:    make(chan Task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle registers h for taskType. Call before Start.
func (p *Pool) Handle(taskType string, h Handler) {
	p.handlers[taskType] = h
}

// Start launches the workers.
func (p *Pool) Start() {
	for range p.cfg.Workers {
		p.wg.Add(1)
		go p.work()
	}
	p.logger.Info("task pool started", "workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize)
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish. If ctx
// ends first, running handlers are cancelled and ctx.Err() is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	log := p.logger.With("task_id", t.ID, "task_type", t.Type)

	h, ok := p.handlers[t.Type]
	if !ok {
		metricsx.TasksProcessed.WithLabelValues("unknown", "dropped").Inc()
		log.Warn("dropping task with unknown type")
		return
	}

	ctx := slogx.WithContext(p.ctx, log)

	attempt := 0
	err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) error {
		attempt++
		err := h(ctx, t)
		if err != nil {
			log.Warn("task attempt failed", "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		metricsx.TasksProcessed.WithLabelValues(t.Type, "failed").Inc()
		log.Error("task failed", "attempts", attempt, "err", err)
		return
	}

	metricsx.TasksProcessed.WithLabelValues(t.Type, "ok").Inc()
	log.Debug("task done", "attempts", attempt)
}
