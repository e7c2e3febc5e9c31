// Package sweeper runs the periodic blocking and auto-merge passes in the
// background. A Redis lock elects a single sweeping replica so candidate
// generation does not race across instances.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/pkg/matching"
	"github.com/Ramsey-B/sorrel/pkg/metrics"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/redis"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const (
	sweepLockKey = "sweep:leader"
	sweepLockTTL = 10 * time.Minute
)

// Config holds sweeper tuning
type Config struct {
	Interval       time.Duration
	CandidateLimit int
	MergeLimit     int
}

// DefaultConfig returns the sweeper defaults
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		CandidateLimit: 5000,
		MergeLimit:     500,
	}
}

// SweepResult summarizes one tenant pass
type SweepResult struct {
	TenantID   string                           `json:"tenant_id"`
	Candidates *models.GenerateCandidatesResult `json:"candidates"`
	Merges     *models.AutoMergeResult          `json:"merges"`
}

// Sweeper drives candidate generation and the auto-merge sweep on a timer
type Sweeper struct {
	logger      ectologger.Logger
	config      Config
	matchingSvc *matching.Service
	personRepo  *person.Repository
	locker      *redis.Locker

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewSweeper creates a new sweeper. locker may be nil for single-replica
// deployments and tests.
func NewSweeper(
	logger ectologger.Logger,
	config Config,
	matchingSvc *matching.Service,
	personRepo *person.Repository,
	locker *redis.Locker,
) *Sweeper {
	return &Sweeper{
		logger:      logger,
		config:      config,
		matchingSvc: matchingSvc,
		personRepo:  personRepo,
		locker:      locker,
	}
}

// GetName implements startup.StartupDependency
func (s *Sweeper) GetName() string {
	return "sweeper"
}

// DependsOn implements startup.StartupDependency
func (s *Sweeper) DependsOn() []string {
	return []string{"database"}
}

// Start launches the sweep loop
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("sweeper already started")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)

	s.logger.Infof("Sweeper started with interval %s", s.config.Interval)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithContext(ctx).WithError(err).Error("Sweep failed")
			}
		}
	}
}

// runOnce acquires leadership and sweeps every tenant
func (s *Sweeper) runOnce(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "sweeper.Sweeper.runOnce")
	defer span.End()

	var lease *redis.Lease
	if s.locker != nil {
		var err error
		lease, err = s.locker.Acquire(ctx, sweepLockKey, sweepLockTTL)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			s.logger.WithContext(ctx).Debug("Another replica is sweeping; skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer lease.Release(ctx)
	}

	tenants, err := s.personRepo.ListTenants(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lease != nil {
			// Keep leadership through a long multi-tenant pass.
			if err := lease.Extend(ctx, sweepLockTTL); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Lost the sweep lease; stopping this pass")
				return nil
			}
		}
		s.sweepTenant(ctx, tenantID)
	}

	return nil
}

// SweepTenant runs a full generate-and-merge pass for one tenant. It is
// exported so the admin route can trigger it on demand.
func (s *Sweeper) SweepTenant(ctx context.Context, tenantID string) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sweeper.Sweeper.SweepTenant")
	defer span.End()

	generated, err := s.matchingSvc.GenerateCandidates(ctx, tenantID, s.config.CandidateLimit, false)
	if err != nil {
		return nil, err
	}

	merged, err := s.matchingSvc.AutoMergeSweep(ctx, tenantID, s.config.MergeLimit)
	if err != nil {
		return nil, err
	}

	return &SweepResult{
		TenantID:   tenantID,
		Candidates: generated,
		Merges:     merged,
	}, nil
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenantID string) {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID})

	start := time.Now()
	result, err := s.SweepTenant(ctx, tenantID)
	metrics.SweepDuration.WithLabelValues(tenantID).Observe(time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).Error("Tenant sweep failed")
		return
	}

	log.WithFields(map[string]any{
		"candidates_inserted": result.Candidates.Inserted,
		"scored":              result.Merges.Scored,
		"merged":              result.Merges.Merged,
		"pending":             result.Merges.Pending,
		"rejected":            result.Merges.Rejected,
		"errored":             result.Merges.Errored,
	}).Info("Tenant sweep complete")
}
