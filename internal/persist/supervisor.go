package persist

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mdtunnel/internal/market"
	"mdtunnel/internal/tunnel"
)

// Supervisor polls the tunnel for newly appeared routing keys and lazily
// spawns persistence workers for them. Assignment is monotonic: once a key
// has its pool, it is never re-evaluated.
type Supervisor struct {
	tunnel   *tunnel.Tunnel
	worker   *Worker
	interval time.Duration

	// depth streams carry far more volume than the rest, so they get a
	// bigger pool. Empirical policy, kept as configuration.
	workersDepth   int
	workersDefault int

	mu       sync.Mutex
	assigned map[string]bool
	wg       sync.WaitGroup
}

type SupervisorConfig struct {
	ScanInterval   time.Duration
	WorkersDepth   int
	WorkersDefault int
}

func NewSupervisor(tn *tunnel.Tunnel, worker *Worker, cfg SupervisorConfig) *Supervisor {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.WorkersDepth <= 0 {
		cfg.WorkersDepth = 3
	}
	if cfg.WorkersDefault <= 0 {
		cfg.WorkersDefault = 1
	}
	return &Supervisor{
		tunnel:         tn,
		worker:         worker,
		interval:       cfg.ScanInterval,
		workersDepth:   cfg.WorkersDepth,
		workersDefault: cfg.WorkersDefault,
		assigned:       make(map[string]bool),
	}
}

// Run scans for new keys on a fixed interval until ctx is cancelled, then
// waits for all spawned workers to drain out.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan assigns workers to every key that does not have a pool yet.
func (s *Supervisor) Scan(ctx context.Context) {
	for _, key := range s.tunnel.Keys() {
		s.mu.Lock()
		if s.assigned[key] {
			s.mu.Unlock()
			continue
		}
		s.assigned[key] = true
		s.mu.Unlock()

		n := s.poolSize(key)
		log.Info().Str("key", key).Int("workers", n).Msg("spawning persistence workers")
		for i := 0; i < n; i++ {
			s.wg.Add(1)
			go func(key string) {
				defer s.wg.Done()
				s.worker.Run(ctx, key)
			}(key)
		}
	}
}

func (s *Supervisor) poolSize(key string) int {
	if strings.HasSuffix(key, "|"+string(market.KindDepth)) {
		return s.workersDepth
	}
	return s.workersDefault
}

// Assigned reports whether a key already has a worker pool.
func (s *Supervisor) Assigned(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigned[key]
}
