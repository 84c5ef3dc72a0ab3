// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package ingest

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// jobResult pairs a finished ingest with its error for the submitter.
type jobResult struct {
	result *Result
	err    error
}

type job struct {
	content    []byte
	opts       Options
	resultChan chan<- jobResult
	ctx        context.Context
}

func (j *job) returnResult(res *Result, err error) {
	j.resultChan <- jobResult{result: res, err: err}
	close(j.resultChan)
}

// Service runs ingests over a bounded queue and a fixed worker pool. Each
// ingest may execute concurrently with others; within one ingest the
// pipeline stays sequential.
type Service struct {
	processor *Processor
	queue     chan job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewService(processor *Processor) *Service {
	size := processor.config.QueueSize
	if size <= 0 {
		size = DefaultConfig.QueueSize
	}
	return &Service{
		processor: processor,
		queue:     make(chan job, size),
	}
}

// Start launches the worker pool. Workers drain the queue until the
// service context is cancelled.
func (s *Service) Start(ctxIn context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("ingest service already started")
	}
	ctx, cancel := context.WithCancel(ctxIn)
	s.cancel = cancel
	s.started = true

	workers := s.processor.config.Workers
	if workers <= 0 {
		workers = DefaultConfig.Workers
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(worker int) {
			defer s.wg.Done()
			for {
				select {
				case item := <-s.queue:
					if err := item.ctx.Err(); err != nil {
						item.returnResult(nil, err)
						continue
					}
					res, err := s.processor.Process(item.ctx, item.content, item.opts)
					item.returnResult(res, err)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	log.Info("ingest service started", "workers", workers, "queue", cap(s.queue))
	return nil
}

// StopAndWait cancels the workers and waits for in-flight ingests.
func (s *Service) StopAndWait() {
	s.mu.Lock()
	cancel := s.cancel
	s.started = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Submit queues one ingest and blocks until it finishes or ctx ends.
func (s *Service) Submit(ctx context.Context, content []byte, opts Options) (*Result, error) {
	resultChan := make(chan jobResult, 1)
	item := job{content: content, opts: opts, resultChan: resultChan, ctx: ctx}
	select {
	case s.queue <- item:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resultChan:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
