package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status of a cache entry.
const (
	StatusFresh   = "fresh"
	StatusStale   = "stale"
	StatusLoading = "loading"
)

// QueryKey addresses one cached query result: an entity kind, the owner it
// is scoped to, and an optional filter/sort qualifier.
type QueryKey struct {
	Entity    string
	OwnerID   string
	Qualifier string
}

func (k QueryKey) String() string {
	if k.Qualifier == "" {
		return fmt.Sprintf("%s/%s", k.Entity, k.OwnerID)
	}
	return fmt.Sprintf("%s/%s?%s", k.Entity, k.OwnerID, k.Qualifier)
}

// Entry is the addressable unit of cached server data.
type Entry struct {
	Key           QueryKey
	Value         any
	Status        string
	LastFetchedAt time.Time
}

// Fetcher loads the authoritative value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Layer is a key-addressed, in-memory store of query results. It is the
// single source of UI truth: readers never mutate fetched values in place,
// writers go through Set/Swap/Invalidate.
//
// A Layer is constructed explicitly and passed by reference to everything
// that needs it; Close tears it down and cancels in-flight refetches.
type Layer struct {
	mu       sync.Mutex
	entries  map[QueryKey]Entry
	fetchers map[QueryKey]Fetcher
	inflight map[QueryKey]inflightFetch
	gen      uint64
	nowFunc  func() time.Time
	closed   bool
	wg       sync.WaitGroup
}

type inflightFetch struct {
	cancel context.CancelFunc
	gen    uint64
}

func NewLayer() *Layer {
	return &Layer{
		entries:  map[QueryKey]Entry{},
		fetchers: map[QueryKey]Fetcher{},
		inflight: map[QueryKey]inflightFetch{},
		nowFunc:  time.Now,
	}
}

// BindFetcher registers the loader used by Read and by post-invalidation
// refetches for the given key.
func (l *Layer) BindFetcher(key QueryKey, f Fetcher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetchers[key] = f
}

// Get returns the current entry for key, if any.
func (l *Layer) Get(key QueryKey) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return e, ok
}

// Set writes value as the fresh authoritative state for key.
func (l *Layer) Set(key QueryKey, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setLocked(key, value)
}

func (l *Layer) setLocked(key QueryKey, value any) {
	l.entries[key] = Entry{
		Key:           key,
		Value:         value,
		Status:        StatusFresh,
		LastFetchedAt: l.nowFunc(),
	}
}

// Swap atomically replaces the value for key with fn(old). The whole
// rewrite is visible to readers as a single write; a reader never observes
// an intermediate state.
func (l *Layer) Swap(key QueryKey, fn func(old any) any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.entries[key].Value
	l.setLocked(key, fn(old))
}

// Read returns the cached value for key, fetching through the bound
// fetcher when the entry is missing or stale.
func (l *Layer) Read(ctx context.Context, key QueryKey) (any, error) {
	l.mu.Lock()
	if e, ok := l.entries[key]; ok && e.Status == StatusFresh {
		l.mu.Unlock()
		return e.Value, nil
	}
	f, ok := l.fetchers[key]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("no fetcher bound for %s", key)
	}
	e := l.entries[key]
	e.Key = key
	e.Status = StatusLoading
	l.entries[key] = e
	fctx, cancel := context.WithCancel(ctx)
	gen := l.replaceInflightLocked(key, cancel)
	l.mu.Unlock()

	value, err := f(fctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearInflightLocked(key, gen)
	if err != nil {
		if e, ok := l.entries[key]; ok && e.Status == StatusLoading {
			e.Status = StatusStale
			l.entries[key] = e
		}
		return nil, err
	}
	// A cancelled fetch lost to a newer write; keep the newer state.
	if fctx.Err() != nil {
		return l.entries[key].Value, nil
	}
	l.setLocked(key, value)
	return value, nil
}

// Snapshot copies the current entries for keys, for later Restore.
// Missing keys are recorded too, so Restore can reinstate their absence.
type SnapshotEntry struct {
	Entry
	Existed bool
}

func (l *Layer) Snapshot(keys ...QueryKey) []SnapshotEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SnapshotEntry, 0, len(keys))
	for _, k := range keys {
		e, ok := l.entries[k]
		e.Key = k
		out = append(out, SnapshotEntry{Entry: e, Existed: ok})
	}
	return out
}

// Restore reinstates a snapshot verbatim.
func (l *Layer) Restore(snap []SnapshotEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range snap {
		if s.Existed {
			l.entries[s.Key] = s.Entry
		} else {
			delete(l.entries, s.Key)
		}
	}
}

// Invalidate marks keys stale and, where a fetcher is bound, starts a
// background refetch so the next read reconciles with server truth.
func (l *Layer) Invalidate(ctx context.Context, keys ...QueryKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for _, key := range keys {
		if e, ok := l.entries[key]; ok {
			e.Status = StatusStale
			l.entries[key] = e
		}
		f, ok := l.fetchers[key]
		if !ok {
			continue
		}
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		gen := l.replaceInflightLocked(key, cancel)
		l.wg.Add(1)
		go l.refetch(fctx, gen, key, f)
	}
}

func (l *Layer) refetch(ctx context.Context, gen uint64, key QueryKey, f Fetcher) {
	defer l.wg.Done()
	value, err := f(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearInflightLocked(key, gen)
	if err != nil || ctx.Err() != nil {
		return
	}
	l.setLocked(key, value)
}

// CancelInFlight cancels any running refetches for keys, so a stale
// response cannot clobber an optimistic write.
func (l *Layer) CancelInFlight(keys ...QueryKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		if inf, ok := l.inflight[key]; ok {
			inf.cancel()
			delete(l.inflight, key)
		}
	}
}

// Close cancels all in-flight work and waits for it to drain. The layer
// must not be used afterwards.
func (l *Layer) Close() {
	l.mu.Lock()
	l.closed = true
	for key, inf := range l.inflight {
		inf.cancel()
		delete(l.inflight, key)
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Layer) replaceInflightLocked(key QueryKey, cancel context.CancelFunc) uint64 {
	if prev, ok := l.inflight[key]; ok {
		prev.cancel()
	}
	l.gen++
	l.inflight[key] = inflightFetch{cancel: cancel, gen: l.gen}
	return l.gen
}

func (l *Layer) clearInflightLocked(key QueryKey, gen uint64) {
	// Only clear our own registration; a newer fetch may have replaced it.
	if cur, ok := l.inflight[key]; ok && cur.gen == gen {
		delete(l.inflight, key)
	}
}

// ValueAs reads a typed value out of an entry payload.
func ValueAs[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}
