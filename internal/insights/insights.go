// Package insights produces the insight bundle served by
// POST /api/ai-insights.
//
// A Service asks its primary Generator (Gemini when configured), falls back
// to the rule-based generator on failure, and caches results per user and
// snapshot for a configurable TTL. Concurrent identical requests share one
// generation.
package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"finsight/internal/cache"
	"finsight/internal/core"
	"finsight/internal/log"
)

const (
	DefaultCacheTTL  = 10 * time.Minute
	defaultCacheSize = 512
	generateTimeout  = 45 * time.Second
)

// ErrUnavailable is returned when no generator produced a valid bundle.
var ErrUnavailable = errors.New("insight generation unavailable")

// Generator turns a financial snapshot into an insight bundle.
type Generator interface {
	Generate(ctx context.Context, snap core.Snapshot) (core.InsightBundle, error)
}

type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

type Service struct {
	primary  Generator
	fallback Generator
	cache    *cache.LRUCache[core.InsightBundle]
	group    singleflight.Group
	logger   *log.Logger
}

// NewService builds a service. primary may be nil, in which case only the
// rule-based generator is used.
func NewService(primary Generator, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	return &Service{
		primary:  primary,
		fallback: Rules{},
		cache:    cache.NewLRUCache[core.InsightBundle](cfg.CacheSize, cfg.CacheTTL),
		logger:   logger.WithComponent(log.ComponentInsights),
	}
}

// Cache exposes the bundle cache so it can be registered with a cleanup
// manager.
func (s *Service) Cache() *cache.LRUCache[core.InsightBundle] { return s.cache }

// Generate returns the bundle for snap, from cache when possible.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, snap core.Snapshot) (core.InsightBundle, error) {
	if userID == uuid.Nil {
		return core.InsightBundle{}, core.ErrNotAuthenticated
	}
	key, err := cacheKey(userID, snap)
	if err != nil {
		return core.InsightBundle{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if b, ok := s.cache.Get(key); ok {
		s.logger.DebugContext(ctx, "Insight cache hit", log.FieldUserID, userID.String())
		return b, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not
		// fail the others.
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generateTimeout)
		defer cancel()
		b, err := s.generate(gctx, snap)
		if err != nil {
			return core.InsightBundle{}, err
		}
		s.cache.Set(key, b)
		return b, nil
	})

	select {
	case <-ctx.Done():
		return core.InsightBundle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.InsightBundle{}, res.Err
		}
		return res.Val.(core.InsightBundle), nil
	}
}

func (s *Service) generate(ctx context.Context, snap core.Snapshot) (core.InsightBundle, error) {
	start := time.Now()
	if s.primary != nil {
		b, err := s.primary.Generate(ctx, snap)
		if err == nil {
			err = b.Validate()
		}
		if err == nil {
			s.logger.InfoContext(ctx, "Insights generated",
				log.FieldOperation, log.OpGenerate,
				log.FieldCount, len(b.Insights),
				log.FieldDuration, time.Since(start).Milliseconds())
			return normalize(b), nil
		}
		s.logger.WarnContext(ctx, "Primary insight generator failed, using rules",
			log.FieldOperation, log.OpGenerate, log.FieldError, err.Error())
	}

	b, err := s.fallback.Generate(ctx, snap)
	if err != nil {
		return core.InsightBundle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return normalize(b), nil
}

// normalize fills missing item ids so clients can key on them.
func normalize(b core.InsightBundle) core.InsightBundle {
	if b.Insights == nil {
		b.Insights = []core.Insight{}
	}
	for i := range b.Insights {
		if b.Insights[i].ID == "" {
			b.Insights[i].ID = fmt.Sprintf("insight-%d", i+1)
		}
	}
	return b
}

func cacheKey(userID uuid.UUID, snap core.Snapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return userID.String() + ":" + hex.EncodeToString(sum[:]), nil
}
