package domain

import "sync"

// Counter is an increment-only telemetry counter.
type Counter struct {
	mu sync.Mutex
	n  uint64
}

// Increment adds one to the counter.
func (c *Counter) Increment() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *Counter) set(n uint64) {
	c.mu.Lock()
	c.n = n
	c.mu.Unlock()
}

// MirrorStats holds the health counters for a single mirror. The fetch
// engine only ever increments them; readers are the admin API and the
// stats repository.
type MirrorStats struct {
	blips      Counter
	rateLimits Counter
}

// NetworkBlips counts retry sequences that recovered after at least one
// transient network failure.
func (s *MirrorStats) NetworkBlips() *Counter {
	return &s.blips
}

// NetworkRateLimits counts HTTP 429 responses from the mirror.
func (s *MirrorStats) NetworkRateLimits() *Counter {
	return &s.rateLimits
}

// MirrorStatsSnapshot is a point-in-time copy of one mirror's counters.
type MirrorStatsSnapshot struct {
	NetworkBlips      uint64 `json:"network_blips"`
	NetworkRateLimits uint64 `json:"network_rate_limits"`
}

// StatsTable is the process-wide table of per-mirror health counters,
// keyed by the mirror's blob base URL. It is passed explicitly to the
// services that need it; its lifecycle is owned by the daemon.
type StatsTable struct {
	mu      sync.Mutex
	mirrors map[string]*MirrorStats
}

// NewStatsTable returns an empty stats table.
func NewStatsTable() *StatsTable {
	return &StatsTable{mirrors: make(map[string]*MirrorStats)}
}

// ForMirror returns the stats handle for the given mirror, creating it on
// first use. The handle stays valid for the lifetime of the table.
func (t *StatsTable) ForMirror(mirrorURL string) *MirrorStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.mirrors[mirrorURL]
	if !ok {
		s = &MirrorStats{}
		t.mirrors[mirrorURL] = s
	}
	return s
}

// Snapshot returns a copy of all counters.
func (t *StatsTable) Snapshot() map[string]MirrorStatsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]MirrorStatsSnapshot, len(t.mirrors))
	for url, s := range t.mirrors {
		out[url] = MirrorStatsSnapshot{
			NetworkBlips:      s.blips.Value(),
			NetworkRateLimits: s.rateLimits.Value(),
		}
	}
	return out
}

// Restore seeds the table from persisted counters. Intended for startup,
// before any fetches run.
func (t *StatsTable) Restore(snapshot map[string]MirrorStatsSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for url, snap := range snapshot {
		s, ok := t.mirrors[url]
		if !ok {
			s = &MirrorStats{}
			t.mirrors[url] = s
		}
		s.blips.set(snap.NetworkBlips)
		s.rateLimits.set(snap.NetworkRateLimits)
	}
}
