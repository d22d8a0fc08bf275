// Package memory implements the episodic and semantic trade memory: an
// append-only episode log with similarity recall, and rule/pattern tables
// with running accuracy counters. Grounded on the teacher's
// internal/portfolio.Tracker (a periodically-synced aggregate with its own
// mutex-guarded state, read via lock-free snapshot methods) for the
// single-writer/lock-free-read shape; recall_similar's normalized
// Euclidean distance is this project's own resolution of the spec's open
// question on similarity metric (see DESIGN.md).
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keryxflow/keryxflow/internal/store"
)

// Episode is one persisted trade decision plus its outcome.
type Episode struct {
	ID         string
	Symbol     string
	Timestamp  time.Time
	Regime     string
	Indicators []float64 // normalized feature vector at entry
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	RealizedPnL float64
	Notes      string
	Closed     bool
}

// Rule is a semantic-store entry with activation and helpfulness counters.
type Rule struct {
	Name          string
	Active        bool
	TimesApplied  int
	TimesHelpful  int
}

// Pattern is a semantic-store entry tracking identification accuracy.
type Pattern struct {
	Name           string
	TimesIdentified int
	TimesCorrect    int
}

// Accuracy returns TimesCorrect/TimesIdentified, or 0 if never identified.
func (p Pattern) Accuracy() float64 {
	if p.TimesIdentified == 0 {
		return 0
	}
	return float64(p.TimesCorrect) / float64(p.TimesIdentified)
}

// Performance summarizes closed trades over a lookback window.
type Performance struct {
	Trades   int
	WinRate  float64
	AvgWin   float64
	AvgLoss  float64
	TotalPnL float64
	Best     float64
	Worst    float64
}

// Memory is the façade: every write is serialized through a single mutex,
// matching the "single serialized writer, lock-free snapshot reads" rule.
// Reads take the same mutex for simplicity (read volume here is low enough
// that a RWMutex would not be observably different) but never hold it
// across an I/O call.
type Memory struct {
	mu       sync.Mutex
	episodes []Episode
	rules    map[string]*Rule
	patterns map[string]*Pattern

	// store is the optional durable backend episodes are written through
	// to. Nil means in-memory only (used by tests and dry runs).
	store *store.Store
}

// New constructs an empty Memory with no durable backend.
func New() *Memory {
	return &Memory{
		rules:    make(map[string]*Rule),
		patterns: make(map[string]*Pattern),
	}
}

// NewFromStore constructs a Memory backed by s, reloading every previously
// persisted episode before returning. This is the restart-recovery path:
// a freshly opened store must reconstruct the exact episode log a prior
// session left behind.
func NewFromStore(ctx context.Context, s *store.Store) (*Memory, error) {
	m := New()
	m.store = s

	records, err := s.ListEpisodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: load episodes: %w", err)
	}
	m.episodes = make([]Episode, len(records))
	for i, r := range records {
		m.episodes[i] = episodeFromRecord(r)
	}
	return m, nil
}

// RecordEntry appends a new open episode and, if a durable backend is
// wired, persists it. A persistence failure is logged, not returned: a
// trade already filled in the paper engine must not be lost from the
// episodic memory just because the write-through failed.
func (m *Memory) RecordEntry(ctx context.Context, e Episode) {
	m.mu.Lock()
	e.Closed = false
	m.episodes = append(m.episodes, e)
	backend := m.store
	m.mu.Unlock()

	if backend == nil {
		return
	}
	if err := backend.InsertEpisode(ctx, recordFromEpisode(e)); err != nil {
		slog.Error("memory: persist episode entry", "id", e.ID, "error", err)
	}
}

// RecordExit closes the open episode with the given id (the earliest one,
// if several open episodes share it), filling in exit
// price and realized PnL, and write-through persists the same fields.
func (m *Memory) RecordExit(ctx context.Context, id string, exitPrice, realizedPnL float64, notes string) bool {
	m.mu.Lock()
	var updated Episode
	found := false
	for i := range m.episodes {
		if m.episodes[i].ID == id && !m.episodes[i].Closed {
			m.episodes[i].ExitPrice = exitPrice
			m.episodes[i].RealizedPnL = realizedPnL
			m.episodes[i].Notes = notes
			m.episodes[i].Closed = true
			updated = m.episodes[i]
			found = true
			break
		}
	}
	backend := m.store
	m.mu.Unlock()

	if !found {
		return false
	}
	if backend == nil {
		return true
	}
	if err := backend.UpdateEpisode(ctx, recordFromEpisode(updated)); err != nil {
		slog.Error("memory: persist episode exit", "id", id, "error", err)
	}
	return true
}

// recordFromEpisode flattens an Episode's indicator vector to a
// comma-separated string for the store's TEXT column.
func recordFromEpisode(e Episode) store.EpisodeRecord {
	fields := make([]string, len(e.Indicators))
	for i, v := range e.Indicators {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return store.EpisodeRecord{
		ID:          e.ID,
		Symbol:      e.Symbol,
		Timestamp:   e.Timestamp,
		Regime:      e.Regime,
		Indicators:  strings.Join(fields, ","),
		EntryPrice:  e.EntryPrice,
		ExitPrice:   e.ExitPrice,
		Quantity:    e.Quantity,
		RealizedPnL: e.RealizedPnL,
		Notes:       e.Notes,
		Closed:      e.Closed,
	}
}

// episodeFromRecord parses a store.EpisodeRecord's comma-separated
// indicator string back into a float64 vector. A malformed field (should
// never happen; the string is always this package's own output) is
// dropped rather than failing the whole reload.
func episodeFromRecord(r store.EpisodeRecord) Episode {
	var indicators []float64
	if r.Indicators != "" {
		parts := strings.Split(r.Indicators, ",")
		indicators = make([]float64, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				continue
			}
			indicators = append(indicators, v)
		}
	}
	return Episode{
		ID:          r.ID,
		Symbol:      r.Symbol,
		Timestamp:   r.Timestamp,
		Regime:      r.Regime,
		Indicators:  indicators,
		EntryPrice:  r.EntryPrice,
		ExitPrice:   r.ExitPrice,
		Quantity:    r.Quantity,
		RealizedPnL: r.RealizedPnL,
		Notes:       r.Notes,
		Closed:      r.Closed,
	}
}

// QueryContext is the similarity-recall query shape.
type QueryContext struct {
	Symbol     string
	Indicators []float64
	Regime     string
}

type scoredEpisode struct {
	episode  Episode
	distance float64
}

// RecallSimilar returns up to K past episodes for context.Symbol ordered
// by ascending normalized Euclidean distance over the indicator vector,
// ties broken by recency (most recent first).
func (m *Memory) RecallSimilar(ctx QueryContext, k int) []Episode {
	m.mu.Lock()
	candidates := make([]Episode, 0, len(m.episodes))
	for _, e := range m.episodes {
		if e.Symbol == ctx.Symbol {
			candidates = append(candidates, e)
		}
	}
	m.mu.Unlock()

	scored := make([]scoredEpisode, 0, len(candidates))
	for _, e := range candidates {
		scored = append(scored, scoredEpisode{episode: e, distance: normalizedEuclidean(ctx.Indicators, e.Indicators)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return scored[i].episode.Timestamp.After(scored[j].episode.Timestamp)
	})

	if k > len(scored) {
		k = len(scored)
	}
	out := make([]Episode, k)
	for i := 0; i < k; i++ {
		out[i] = scored[i].episode
	}
	return out
}

// normalizedEuclidean returns the Euclidean distance between a and b,
// normalized by vector length, so vectors of different indicator counts
// still compare on a consistent scale. The shorter vector is zero-padded,
// so unmatched dimensions contribute their full magnitude as distance.
func normalizedEuclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var sumSq float64
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		d := av - bv
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// ActiveRules returns every rule currently flagged active.
func (m *Memory) ActiveRules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.Active {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpsertRule inserts or updates a rule definition.
func (m *Memory) UpsertRule(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := r
	m.rules[r.Name] = &cp
}

// RecordRuleOutcome increments a rule's applied/helpful counters.
func (m *Memory) RecordRuleOutcome(name string, helpful bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[name]
	if !ok {
		return
	}
	r.TimesApplied++
	if helpful {
		r.TimesHelpful++
	}
}

// UpsertPattern inserts or updates a pattern definition.
func (m *Memory) UpsertPattern(p Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.patterns[p.Name] = &cp
}

// RecordPatternOutcome increments a pattern's identified/correct counters.
func (m *Memory) RecordPatternOutcome(name string, correct bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[name]
	if !ok {
		return
	}
	p.TimesIdentified++
	if correct {
		p.TimesCorrect++
	}
}

// RecentPerformance summarizes closed episodes within the last `days`.
func (m *Memory) RecentPerformance(days int, now time.Time) Performance {
	m.mu.Lock()
	episodes := append([]Episode(nil), m.episodes...)
	m.mu.Unlock()

	cutoff := now.AddDate(0, 0, -days)

	var perf Performance
	var wins, losses int
	var winSum, lossSum float64

	for _, e := range episodes {
		if !e.Closed || e.Timestamp.Before(cutoff) {
			continue
		}
		perf.Trades++
		perf.TotalPnL += e.RealizedPnL
		if e.RealizedPnL > perf.Best || perf.Trades == 1 {
			perf.Best = e.RealizedPnL
		}
		if e.RealizedPnL < perf.Worst || perf.Trades == 1 {
			perf.Worst = e.RealizedPnL
		}
		if e.RealizedPnL > 0 {
			wins++
			winSum += e.RealizedPnL
		} else if e.RealizedPnL < 0 {
			losses++
			lossSum += e.RealizedPnL
		}
	}

	if perf.Trades > 0 {
		perf.WinRate = float64(wins) / float64(perf.Trades)
	}
	if wins > 0 {
		perf.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		perf.AvgLoss = lossSum / float64(losses)
	}
	return perf
}

// ClosedEpisodes returns every closed episode, oldest first — used for
// restart recovery and equity-curve reconstruction.
func (m *Memory) ClosedEpisodes() []Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Episode, 0, len(m.episodes))
	for _, e := range m.episodes {
		if e.Closed {
			out = append(out, e)
		}
	}
	return out
}
