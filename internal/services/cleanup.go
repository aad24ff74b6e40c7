package services

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Pruner drops state that has been idle since before a threshold.
type Pruner interface {
	Prune(threshold time.Time) int
}

// CleanupService handles automatic removal of idle realtime store paths.
// It runs as a background goroutine and periodically prunes the store.
type CleanupService struct {
	store    Pruner
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
}

// NewCleanupService creates a new cleanup service.
// - interval: how often to check for idle paths (e.g., 1 minute)
// - timeout: how long a path can sit unsubscribed before removal (e.g., 30 minutes)
func NewCleanupService(store Pruner, interval, timeout time.Duration) *CleanupService {
	return &CleanupService{
		store:    store,
		interval: interval,
		timeout:  timeout,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup worker.
// This method runs in its own goroutine and should be called with 'go'.
func (s *CleanupService) Start() {
	log.Info().Dur("interval", s.interval).Dur("timeout", s.timeout).Msg("cleanup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			log.Info().Msg("cleanup service stopped")
			return
		}
	}
}

// Stop gracefully shuts down the cleanup service.
func (s *CleanupService) Stop() {
	close(s.stopChan)
}

// cleanup removes every path idle past the timeout threshold.
func (s *CleanupService) cleanup() int {
	threshold := time.Now().UTC().Add(-s.timeout)
	n := s.store.Prune(threshold)
	if n > 0 {
		log.Info().Int("paths", n).Msg("pruned idle realtime paths")
	}
	return n
}
