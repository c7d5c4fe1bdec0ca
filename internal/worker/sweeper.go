package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/recruitment-go-api/internal/dto"
)

// ExpirySweeper seals sessions whose deadline has passed.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, limit int) (dto.SweepResult, error)
}

// SessionSweeper periodically seals expired assessment sessions. Deadlines are also
// enforced lazily on every read and write, so a missed tick only delays bookkeeping.
type SessionSweeper struct {
	sweeper  ExpirySweeper
	interval time.Duration
	batch    int
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionSweeper constructs a sweeper. Non-positive values fall back to 30s and 100 sessions.
func NewSessionSweeper(sweeper ExpirySweeper, interval time.Duration, batch int, logger zerolog.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &SessionSweeper{
		sweeper:  sweeper,
		interval: interval,
		batch:    batch,
		logger:   logger.With().Str("component", "session_sweeper").Logger(),
	}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx, s.done)
}

// Stop cancels the loop and waits for the in-flight sweep to return.
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *SessionSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep, draining full batches until fewer than batch sessions remain.
func (s *SessionSweeper) RunOnce(ctx context.Context) dto.SweepResult {
	var total dto.SweepResult
	for {
		result, err := s.sweeper.SweepExpired(ctx, s.batch)
		total.Scanned += result.Scanned
		total.Sealed += result.Sealed
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("session sweep failed")
			}
			break
		}
		if result.Scanned < s.batch || result.Sealed == 0 {
			break
		}
	}

	if total.Sealed > 0 {
		s.logger.Info().Int("scanned", total.Scanned).Int("sealed", total.Sealed).Msg("expired sessions sealed")
	}
	return total
}
