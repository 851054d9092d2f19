package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/bus"
	"github.com/fd1az/market-data-engine/internal/config"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// stopAckTimeout bounds the graceful-stop handshake per worker.
const stopAckTimeout = 3 * time.Second

// Supervisor owns the watcher workers: one isolated unit per enabled
// platform, spawned, monitored, and torn down together.
type Supervisor struct {
	bus *bus.Bus
	log logger.LoggerInterface

	mu      sync.Mutex
	workers map[string]*Worker
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(b *bus.Bus, log logger.LoggerInterface) *Supervisor {
	return &Supervisor{
		bus:     b,
		log:     log,
		workers: make(map[string]*Worker),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Spawn creates and runs a worker for a platform.
func (s *Supervisor) Spawn(ctx context.Context, platform string, cfg config.PlatformConfig, cacheDir string) error {
	worker, err := NewWorker(platform, cfg, cacheDir, s.bus, s.log)
	if err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.workers[platform] = worker
	s.cancels[platform] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			s.log.Error(workerCtx, "watcher worker died",
				"platform", platform, "error", err)
			s.bus.FailWorker(platform, apperror.CodeWorkerFailed)
		}
	}()
	return nil
}

// Workers lists the running workers.
func (s *Supervisor) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out
}

// StopWorker runs the graceful stop protocol for one worker: it sends stop
// and awaits the acknowledgement briefly, then fails the worker's pending
// bus requests with WorkerTerminated and terminates the unit. Requests
// still pending while the acknowledgement is awaited are not cancelled
// before it.
func (s *Supervisor) StopWorker(ctx context.Context, platform string) {
	s.mu.Lock()
	_, ok := s.workers[platform]
	cancel := s.cancels[platform]
	s.mu.Unlock()
	if !ok {
		return
	}

	handle := s.bus.SendRequest(platform, "stop", nil)
	ackCtx, ackCancel := context.WithTimeout(ctx, stopAckTimeout)
	if _, err := handle.Await(ackCtx); err != nil {
		s.log.Warn(ctx, "worker stop ack not received",
			"platform", platform, "error", err)
	}
	ackCancel()

	s.bus.FailWorker(platform, apperror.CodeWorkerTerminated)
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	delete(s.workers, platform)
	delete(s.cancels, platform)
	s.mu.Unlock()
}

// StopAll cascades worker termination.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	platforms := make([]string, 0, len(s.workers))
	for name := range s.workers {
		platforms = append(platforms, name)
	}
	s.mu.Unlock()

	for _, platform := range platforms {
		s.StopWorker(ctx, platform)
	}
	s.wg.Wait()
}
