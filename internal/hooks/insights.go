package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"finsight/internal/core"
	"finsight/internal/kv"
	"finsight/internal/log"
)

const (
	InsightsCacheKey = "ai-insights-cache"
	InsightsCacheTTL = 6 * time.Hour
)

const genericInsightsError = "Failed to generate insights"

type InsightsState struct {
	Insights *core.InsightBundle
	Loading  bool
	Error    string
}

// cachedInsights is the persisted {data, timestamp} entry; timestamp is in
// Unix milliseconds.
type cachedInsights struct {
	Data      core.InsightBundle `json:"data"`
	Timestamp int64              `json:"timestamp"`
}

// Insights fetches insight bundles on demand and keeps the last one in a
// durable store for InsightsCacheTTL.
type Insights struct {
	endpoint InsightsEndpoint
	store    kv.Store
	logger   *log.Logger
	now      func() time.Time

	mu    sync.Mutex
	state InsightsState
	seq   uint64
}

type InsightsOption func(*Insights)

func WithClock(now func() time.Time) InsightsOption {
	return func(h *Insights) { h.now = now }
}

func WithInsightsLogger(l *log.Logger) InsightsOption {
	return func(h *Insights) { h.logger = l.WithComponent(log.ComponentHooks) }
}

func NewInsights(endpoint InsightsEndpoint, store kv.Store, opts ...InsightsOption) *Insights {
	h := &Insights{
		endpoint: endpoint,
		store:    store,
		logger:   log.Discard(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Insights) State() InsightsState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ShouldAutoFetch reports whether the caller should trigger a fetch: nothing
// is held and nothing is in flight.
func (h *Insights) ShouldAutoFetch() bool {
	s := h.State()
	return s.Insights == nil && !s.Loading
}

// Load adopts the cached bundle when it is younger than InsightsCacheTTL.
// It never contacts the endpoint and reports whether the cache was used.
func (h *Insights) Load(ctx context.Context) bool {
	b, ok := ReadInsightsCache(ctx, h.store, h.now())
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Insights != nil || h.state.Loading {
		return false
	}
	h.state.Insights = &b
	return true
}

// Fetch requests a fresh bundle for snap. A later call supersedes an earlier
// one still in flight: the earlier result is dropped when it arrives.
func (h *Insights) Fetch(ctx context.Context, snap core.Snapshot) error {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.state.Loading = true
	h.state.Error = ""
	h.mu.Unlock()

	bundle, err := h.endpoint.GenerateInsights(ctx, snap)
	if err == nil {
		err = bundle.Validate()
	}

	h.mu.Lock()
	if seq != h.seq {
		h.mu.Unlock()
		return nil
	}
	h.state.Loading = false
	if err != nil {
		h.state.Error = insightsErrorMessage(err)
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "Insight generation failed",
			log.NewFields().WithOperation(log.OpGenerate).WithError(err).ToSlice()...)
		return err
	}
	h.state.Insights = &bundle
	h.mu.Unlock()

	if err := WriteInsightsCache(ctx, h.store, bundle, h.now()); err != nil {
		h.logger.WarnContext(ctx, "Insight cache write failed", log.FieldError, err.Error())
	}
	return nil
}

// Clear forgets the held bundle and the cached entry.
func (h *Insights) Clear(ctx context.Context) error {
	h.mu.Lock()
	h.seq++
	h.state = InsightsState{}
	h.mu.Unlock()
	return h.store.Delete(ctx, InsightsCacheKey)
}

// ReadInsightsCache returns the cached bundle if it was written less than
// InsightsCacheTTL before now.
func ReadInsightsCache(ctx context.Context, store kv.Store, now time.Time) (core.InsightBundle, bool) {
	raw, err := store.Get(ctx, InsightsCacheKey)
	if err != nil {
		return core.InsightBundle{}, false
	}
	var c cachedInsights
	if err := json.Unmarshal(raw, &c); err != nil {
		return core.InsightBundle{}, false
	}
	age := now.Sub(time.UnixMilli(c.Timestamp))
	if age < 0 || age >= InsightsCacheTTL {
		return core.InsightBundle{}, false
	}
	return c.Data, true
}

func WriteInsightsCache(ctx context.Context, store kv.Store, b core.InsightBundle, now time.Time) error {
	raw, err := json.Marshal(cachedInsights{Data: b, Timestamp: now.UnixMilli()})
	if err != nil {
		return err
	}
	return store.Set(ctx, InsightsCacheKey, raw)
}

func insightsErrorMessage(err error) string {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Details != "" || apiErr.Message != "" {
			return apiErr.UserMessage()
		}
		return genericInsightsError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err.Error()
	}
	return genericInsightsError + ": " + err.Error()
}
