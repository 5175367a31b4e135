package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lingostream/lingostream/internal/meeting"
	"github.com/lingostream/lingostream/internal/pipeline"
	"github.com/lingostream/lingostream/internal/room"
)

// DefaultSweepInterval is how often live rooms are checked against their
// session's expiry.
const DefaultSweepInterval = 30 * time.Second

// Sweeper ends rooms whose session has expired or disappeared from the
// directory: speaker streams are destroyed, listeners closed, and the
// session record removed.
type Sweeper struct {
	registry  *room.Registry
	directory meeting.Directory
	streams   *pipeline.Manager
	logger    *slog.Logger
	interval  time.Duration
}

// NewSweeper constructs a Sweeper. Non-positive interval falls back to
// DefaultSweepInterval; a nil logger falls back to slog.Default.
func NewSweeper(registry *room.Registry, directory meeting.Directory, streams *pipeline.Manager, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		registry:  registry,
		directory: directory,
		streams:   streams,
		logger:    logger,
		interval:  interval,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep performs one pass over every live room.
func (s *Sweeper) Sweep(ctx context.Context) {
	for _, sessionID := range s.registry.Sessions() {
		_, err := s.directory.GetSession(ctx, sessionID)
		if err == nil {
			continue
		}
		if !errors.Is(err, meeting.ErrSessionExpired) && !errors.Is(err, meeting.ErrSessionNotFound) {
			s.logger.Warn("session check failed", "session_id", sessionID, "error", err)
			continue
		}

		s.streams.DestroySession(sessionID)
		s.registry.CloseSession(sessionID)
		if eerr := s.directory.EndSession(ctx, sessionID); eerr != nil {
			s.logger.Warn("session cleanup failed", "session_id", sessionID, "error", eerr)
		}
		s.logger.Info("expired session closed", "session_id", sessionID, "reason", err.Error())
	}
}
