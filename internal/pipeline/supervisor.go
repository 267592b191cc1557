package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
)

// ErrSupervisorStopped is returned by Watch after Stop.
var ErrSupervisorStopped = errors.New("pipeline: supervisor stopped")

const finalizeTimeout = 10 * time.Second

// Attempt is one supervised assembly dispatch.
type Attempt struct {
	VideoID  string
	Number   int
	Ref      string
	Deadline time.Time
	Request  domain.AssemblyRequest
}

type SupervisorConfig struct {
	PollInterval time.Duration
	PoolSize     int
}

// attemptSink receives what the supervisor observes.
type attemptSink interface {
	OnAssemblyComplete(ctx context.Context, videoID string, outcome AssemblyOutcome) error
	onTimeout(ctx context.Context, videoID string, attempt int) error
	recordRef(ctx context.Context, videoID string, attempt int, ref string) error
}

type watch struct {
	seq     uint64
	attempt int
	cancel  context.CancelFunc
}

// Supervisor runs one task per in-flight attempt: submit, then poll on a
// fixed interval until the render is terminal or the deadline passes.
type Supervisor struct {
	assembler Assembler
	sink      attemptSink
	interval  time.Duration
	pool      *ants.Pool
	logger    infra.Logger

	base context.Context
	halt context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	seq     uint64
	watches map[string]watch
}

func NewSupervisor(assembler Assembler, sink attemptSink, cfg SupervisorConfig, logger infra.Logger) (*Supervisor, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 256
	}
	s := &Supervisor{
		assembler: assembler,
		sink:      sink,
		interval:  cfg.PollInterval,
		logger:    logger,
		watches:   make(map[string]watch),
	}
	pool, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(true), ants.WithPanicHandler(func(p any) {
		s.logger.Error().Interface("panic", p).Msg("supervisor task panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("pipeline: supervisor pool: %w", err)
	}
	s.pool = pool
	s.base, s.halt = context.WithCancel(context.Background())
	return s, nil
}

// Watch starts supervising a. A previous watch of the same video is
// cancelled. When the pool is saturated the task runs on its own goroutine.
func (s *Supervisor) Watch(a Attempt) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSupervisorStopped
	}
	if prev, ok := s.watches[a.VideoID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithDeadline(s.base, a.Deadline)
	s.seq++
	seq := s.seq
	s.watches[a.VideoID] = watch{seq: seq, attempt: a.Number, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	task := func() {
		defer s.wg.Done()
		defer s.release(a.VideoID, seq, cancel)
		s.supervise(ctx, a)
	}
	if err := s.pool.Submit(task); err != nil {
		s.logger.Warn().Err(err).Str("video_id", a.VideoID).Msg("supervisor pool busy, running detached")
		go func() {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error().Interface("panic", p).Str("video_id", a.VideoID).Msg("supervisor task panicked")
				}
			}()
			task()
		}()
	}
	return nil
}

// Cancel stops supervising videoID without touching its record.
func (s *Supervisor) Cancel(videoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[videoID]
	if !ok {
		return false
	}
	w.cancel()
	delete(s.watches, videoID)
	return true
}

func (s *Supervisor) cancelAttempt(videoID string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watches[videoID]; ok && w.attempt == attempt {
		w.cancel()
		delete(s.watches, videoID)
	}
}

// Active returns the number of supervised attempts.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// Stop cancels every task, waits for them to return and releases the pool.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.halt()
	s.mu.Unlock()
	s.wg.Wait()
	s.pool.Release()
}

func (s *Supervisor) release(videoID string, seq uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watches[videoID]; ok && w.seq == seq {
		delete(s.watches, videoID)
	}
}

func (s *Supervisor) supervise(ctx context.Context, a Attempt) {
	log := s.logger.With().Str("video_id", a.VideoID).Int("attempt", a.Number).Logger()

	ref := a.Ref
	if ref == "" {
		submitted, err := s.assembler.SubmitAssembly(ctx, a.Request)
		if err == nil && submitted == "" {
			err = errEmptyPayload
		}
		if err != nil {
			if ctx.Err() != nil {
				s.expire(ctx, a)
				return
			}
			s.complete(a, AssemblyOutcome{Attempt: a.Number, Err: providerError(domain.StageAssembly, err)})
			return
		}
		ref = submitted
		if err := s.sink.recordRef(ctx, a.VideoID, a.Number, ref); err != nil {
			log.Warn().Err(err).Msg("record assembly ref")
		}
		log.Debug().Str("ref", ref).Msg("assembly submitted")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.expire(ctx, a)
			return
		case <-ticker.C:
		}
		status, err := s.assembler.AssemblyStatus(ctx, ref)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("assembly status poll failed")
			}
			continue
		}
		if !status.State.Terminal() {
			continue
		}
		outcome := AssemblyOutcome{Attempt: a.Number, VideoURL: status.VideoURL}
		if status.State == domain.AssemblyFailed {
			reason := status.Reason
			if reason == "" {
				reason = "render failed"
			}
			outcome = AssemblyOutcome{Attempt: a.Number, Err: providerError(domain.StageAssembly, errors.New(reason))}
		}
		s.complete(a, outcome)
		return
	}
}

// expire applies the timeout when ctx ended on its deadline. A cancelled
// watch leaves the record alone.
func (s *Supervisor) expire(ctx context.Context, a Attempt) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}
	fctx, cancel := s.finalizeContext()
	defer cancel()
	if err := s.sink.onTimeout(fctx, a.VideoID, a.Number); err != nil {
		s.logger.Error().Err(err).Str("video_id", a.VideoID).Int("attempt", a.Number).Msg("apply assembly timeout")
	}
}

func (s *Supervisor) complete(a Attempt, outcome AssemblyOutcome) {
	fctx, cancel := s.finalizeContext()
	defer cancel()
	if err := s.sink.OnAssemblyComplete(fctx, a.VideoID, outcome); err != nil {
		s.logger.Error().Err(err).Str("video_id", a.VideoID).Int("attempt", a.Number).Msg("apply assembly outcome")
	}
}

func (s *Supervisor) finalizeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), finalizeTimeout)
}
