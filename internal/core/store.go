package core

// store.go owns the cached record set.
//
// A refresh runs the primary attempt, then exactly one retry with the relaxed
// attempt profile. If both fail the previous entry is served as stale, then
// the last persisted snapshot, and only then is the error returned.
// Concurrent callers share a single in-flight refresh.
//
// Snapshot calls are bounded by the snapshot timeout. Saves run in the
// background after the fresh result is published, so a slow database never
// holds the shared refresh.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/material-finder/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Default timings for the store.
const (
	DefaultCacheDuration   = 5 * time.Minute
	DefaultPrimaryTimeout  = 10 * time.Second
	DefaultRetryTimeout    = 15 * time.Second
	DefaultSnapshotTimeout = 5 * time.Second
)

// Attempt identifies which request profile a fetch uses.
type Attempt int

const (
	AttemptPrimary Attempt = iota
	AttemptRetry
)

func (a Attempt) String() string {
	if a == AttemptRetry {
		return "retry"
	}
	return "primary"
}

// Source delivers the raw CSV text. Implementations must honor ctx.
type Source interface {
	FetchCSV(ctx context.Context, attempt Attempt) (string, error)
}

// Snapshot is a persisted copy of the last successfully fetched CSV body.
type Snapshot struct {
	Body      string
	FetchedAt time.Time
}

// SnapshotStore persists the last good CSV body across restarts.
// Latest returns ErrNoSnapshot when nothing has been saved.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
}

// Status describes where a Result's records came from.
type Status string

const (
	StatusFresh  Status = "fresh"  // fetched by this call
	StatusCached Status = "cached" // served from a cache entry inside its window
	StatusStale  Status = "stale"  // refresh failed, previous data served
)

// Result is the outcome of a successful Fetch.
type Result struct {
	Records    []Record
	Status     Status
	FetchedAt  time.Time
	Generation string
}

// StoreConfig configures a Store. Zero values fall back to the defaults.
type StoreConfig struct {
	CacheDuration   time.Duration
	PrimaryTimeout  time.Duration
	RetryTimeout    time.Duration
	// SnapshotTimeout bounds each Save and Latest call.
	SnapshotTimeout time.Duration
	Snapshots       SnapshotStore
	Now             func() time.Time
}

type cacheEntry struct {
	records    []Record
	fetchedAt  time.Time
	generation string
}

// Store fetches, parses and caches records.
type Store struct {
	source         Source
	snapshots      SnapshotStore
	cacheDuration  time.Duration
	primaryTimeout time.Duration
	retryTimeout   time.Duration
	snapTimeout    time.Duration
	now            func() time.Time

	group singleflight.Group
	saves sync.WaitGroup

	mu         sync.RWMutex
	entry      *cacheEntry
	lastStatus Status
	lastErr    error
}

// NewStore creates a Store reading from source.
func NewStore(source Source, cfg StoreConfig) *Store {
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = DefaultCacheDuration
	}
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = DefaultPrimaryTimeout
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = DefaultRetryTimeout
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{
		source:         source,
		snapshots:      cfg.Snapshots,
		cacheDuration:  cfg.CacheDuration,
		primaryTimeout: cfg.PrimaryTimeout,
		retryTimeout:   cfg.RetryTimeout,
		snapTimeout:    cfg.SnapshotTimeout,
		now:            cfg.Now,
	}
}

// Records returns the current record set, refreshing it if the cache is
// missing or expired.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	res, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Fetch is Records with provenance. Within the cache window no fetch is made.
func (s *Store) Fetch(ctx context.Context) (Result, error) {
	if e := s.current(); e != nil && s.now().Sub(e.fetchedAt) < s.cacheDuration {
		return e.result(StatusCached), nil
	}
	return s.shared(ctx)
}

// Refresh fetches regardless of the cache window. Failure handling is the
// same as for Fetch.
func (s *Store) Refresh(ctx context.Context) (Result, error) {
	return s.shared(ctx)
}

// shared joins or starts the single in-flight refresh. Cancelling ctx stops
// the wait, not the refresh other callers may depend on.
func (s *Store) shared(ctx context.Context) (Result, error) {
	ch := s.group.DoChan("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (s *Store) refresh(ctx context.Context) (Result, error) {
	fetchID := uuid.NewString()
	logger := logging.WithFields(ctx, "fetch_id", fetchID)
	start := time.Now()

	body, err := s.attempt(ctx, AttemptPrimary, s.primaryTimeout)
	if errors.Is(err, ErrSourceNotConfigured) {
		s.setLast("", err)
		logger.Error("source not configured")
		return Result{}, err
	}
	if err != nil {
		logger.Warn("source fetch failed, retrying", "error", err)
		body, err = s.attempt(ctx, AttemptRetry, s.retryTimeout)
	}
	if err != nil {
		return s.fallback(ctx, logger, err)
	}

	entry := &cacheEntry{
		records:    BuildRecords(ParseCSV(body)),
		fetchedAt:  s.now(),
		generation: uuid.NewString(),
	}
	s.mu.Lock()
	s.entry = entry
	s.lastStatus = StatusFresh
	s.lastErr = nil
	s.mu.Unlock()

	logger.Info("records refreshed",
		"records", len(entry.records),
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if s.snapshots != nil {
		s.saveSnapshot(ctx, logger, Snapshot{Body: body, FetchedAt: entry.fetchedAt})
	}

	return entry.result(StatusFresh), nil
}

// saveSnapshot persists snap in the background.
func (s *Store) saveSnapshot(ctx context.Context, logger *slog.Logger, snap Snapshot) {
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		ctx, cancel := context.WithTimeout(ctx, s.snapTimeout)
		defer cancel()
		if err := s.snapshots.Save(ctx, snap); err != nil {
			logger.Warn("snapshot save failed", "error", err)
		}
	}()
}

// WaitForSnapshots blocks until background snapshot saves have finished.
func (s *Store) WaitForSnapshots() {
	s.saves.Wait()
}

func (s *Store) latestSnapshot(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.snapTimeout)
	defer cancel()
	return s.snapshots.Latest(ctx)
}

// fallback serves the in-memory entry, then the persisted snapshot.
func (s *Store) fallback(ctx context.Context, logger *slog.Logger, fetchErr error) (Result, error) {
	if e := s.current(); e != nil {
		s.setLast(StatusStale, fetchErr)
		logger.Warn("refresh failed, serving stale cache",
			"error", fetchErr,
			"age_ms", s.now().Sub(e.fetchedAt).Milliseconds(),
		)
		return e.result(StatusStale), nil
	}

	if s.snapshots != nil {
		snap, err := s.latestSnapshot(ctx)
		switch {
		case err == nil:
			entry := &cacheEntry{
				records:    BuildRecords(ParseCSV(snap.Body)),
				fetchedAt:  snap.FetchedAt,
				generation: uuid.NewString(),
			}
			s.mu.Lock()
			s.entry = entry
			s.lastStatus = StatusStale
			s.lastErr = fetchErr
			s.mu.Unlock()
			logger.Warn("refresh failed, serving persisted snapshot",
				"error", fetchErr,
				"snapshot_at", snap.FetchedAt,
			)
			return entry.result(StatusStale), nil
		case !errors.Is(err, ErrNoSnapshot):
			logger.Warn("snapshot load failed", "error", err)
		}
	}

	s.setLast("", fetchErr)
	logger.Error("refresh failed with no cached data", "error", fetchErr)
	return Result{}, fetchErr
}

func (s *Store) attempt(ctx context.Context, attempt Attempt, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := s.source.FetchCSV(ctx, attempt)
	if err == nil {
		return body, nil
	}
	if errors.Is(err, ErrSourceNotConfigured) || IsTransportFailure(err) {
		return "", err
	}
	return "", &FetchError{Attempt: attempt, Err: err}
}

func (s *Store) current() *cacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry
}

func (s *Store) setLast(status Status, err error) {
	s.mu.Lock()
	s.lastStatus = status
	s.lastErr = err
	s.mu.Unlock()
}

func (e *cacheEntry) result(status Status) Result {
	return Result{
		Records:    e.records,
		Status:     status,
		FetchedAt:  e.fetchedAt,
		Generation: e.generation,
	}
}

// Clear discards the cache entry so the next call fetches again.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entry = nil
	s.lastStatus = ""
	s.mu.Unlock()
}

// CacheInfo is a snapshot of the cache state for monitoring.
type CacheInfo struct {
	HasCache    bool       `json:"hasCache"`
	FetchedAt   *time.Time `json:"fetchedAt,omitempty"`
	AgeMillis   *int64     `json:"cacheAgeMillis,omitempty"`
	RecordCount int        `json:"cachedRecordCount"`
	Generation  string     `json:"generation,omitempty"`
	LastStatus  Status     `json:"lastStatus,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// Info reports the current cache state.
func (s *Store) Info() CacheInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := CacheInfo{LastStatus: s.lastStatus}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	if s.entry == nil {
		return info
	}

	fetchedAt := s.entry.fetchedAt
	age := s.now().Sub(fetchedAt).Milliseconds()
	info.HasCache = true
	info.FetchedAt = &fetchedAt
	info.AgeMillis = &age
	info.RecordCount = len(s.entry.records)
	info.Generation = s.entry.generation
	return info
}
