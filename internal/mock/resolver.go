// Package mock implements the Mock Resolver: given a replayed outbound
// call, find the best-matching recorded span within
// the current trace (and, failing that, across the whole suite). Tiers
// interleave by hash type before used-ness: an exhausted exact-value-hash
// match falls back to a used exact-value-hash span before ever trying an
// unused stripped or schema-only match, so a trace that issues the same
// call more than twice still prefers the closest-matching recording over
// a weaker unused one.
//
// Grounded on
// other_examples/857aca72_Use-Tusk-tusk-drift-cli__internal-runner-mock_matcher_test.go.go,
// the companion CLI's own test suite for this exact algorithm:
// FindBestMatchInTrace's unused-first / oldest-first tie-break and the
// interleaved value-hash → stripped-value-hash → schema-hash tier order
// come directly from TestFindBestMatchInTrace_InputValueHash_PrefersUnusedOldest
// and its neighbors.
package mock

import (
	"sort"
	"sync"
	"time"
)

// Tier is which of the six match levels a resolved mock satisfied.
type Tier int

const (
	TierNone Tier = iota
	TierUnusedInputValueHash
	TierUsedInputValueHash
	TierUnusedStrippedInputValueHash
	TierUsedStrippedInputValueHash
	TierUnusedInputSchemaHash
	TierUsedInputSchemaHash
)

// isUnusedTier reports whether tier was won by a previously-unused span,
// as opposed to a reused one; only unused wins flip a span's Used flag.
func isUnusedTier(tier Tier) bool {
	switch tier {
	case TierUnusedInputValueHash, TierUnusedStrippedInputValueHash, TierUnusedInputSchemaHash:
		return true
	default:
		return false
	}
}

// StoredSpan is a previously recorded outbound span available to match
// against during replay.
type StoredSpan struct {
	TraceID   string
	SpanID    string
	Timestamp time.Time

	InputValueHash         string
	StrippedInputValueHash string // hash with headers/volatile fields stripped
	InputSchemaHash        string

	OutputValue  string // pre-serialized JSON
	OutputSchema string // pre-serialized JSON

	Used bool
}

// Request is what a replayed outbound call is matched against.
type Request struct {
	PackageName            string
	InputValueHash         string
	StrippedInputValueHash string
	InputSchemaHash        string
}

// Store holds recorded spans grouped by trace, plus a global pool used
// for the cross-trace fallback.
type Store struct {
	mu     sync.RWMutex
	byTrace map[string][]*StoredSpan
	global  []*StoredSpan
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byTrace: make(map[string][]*StoredSpan)}
}

// LoadSpansForTrace replaces the recorded spans available for traceID.
func (s *Store) LoadSpansForTrace(traceID string, spans []*StoredSpan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTrace[traceID] = spans
}

// LoadGlobal replaces the suite-wide fallback pool.
func (s *Store) LoadGlobal(spans []*StoredSpan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = spans
}

// resolveLocked runs the six-tier match against spans and marks the
// winner used, all under the caller's held write lock, so that two
// concurrent resolutions against the same hash can never both pick the
// same unused span.
func resolveLocked(req Request, spans []*StoredSpan) (*StoredSpan, Tier) {
	match, tier := resolveAgainst(req, spans)
	if match != nil && isUnusedTier(tier) {
		match.Used = true
	}
	return match, tier
}

// resolveInTrace matches req against traceID's own recorded spans.
func (s *Store) resolveInTrace(req Request, traceID string) (*StoredSpan, Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resolveLocked(req, s.byTrace[traceID])
}

// resolveGlobal matches req against the suite-wide fallback pool.
func (s *Store) resolveGlobal(req Request) (*StoredSpan, Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resolveLocked(req, s.global)
}

// Resolver runs the six-tier match algorithm over a Store.
type Resolver struct {
	store *Store
}

// NewResolver wraps store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// pick returns the oldest span in candidates, or nil if empty.
func pick(candidates []*StoredSpan) *StoredSpan {
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})
	return candidates[0]
}

func filter(spans []*StoredSpan, used bool, match func(*StoredSpan) bool) []*StoredSpan {
	var out []*StoredSpan
	for _, sp := range spans {
		if sp.Used == used && match(sp) {
			out = append(out, sp)
		}
	}
	return out
}

// resolveAgainst runs the six tiers, in priority order, over candidates.
func resolveAgainst(req Request, candidates []*StoredSpan) (*StoredSpan, Tier) {
	tiers := []struct {
		tier  Tier
		used  bool
		match func(*StoredSpan) bool
	}{
		{TierUnusedInputValueHash, false, func(sp *StoredSpan) bool {
			return req.InputValueHash != "" && sp.InputValueHash == req.InputValueHash
		}},
		{TierUsedInputValueHash, true, func(sp *StoredSpan) bool {
			return req.InputValueHash != "" && sp.InputValueHash == req.InputValueHash
		}},
		{TierUnusedStrippedInputValueHash, false, func(sp *StoredSpan) bool {
			return req.StrippedInputValueHash != "" && sp.StrippedInputValueHash == req.StrippedInputValueHash
		}},
		{TierUsedStrippedInputValueHash, true, func(sp *StoredSpan) bool {
			return req.StrippedInputValueHash != "" && sp.StrippedInputValueHash == req.StrippedInputValueHash
		}},
		{TierUnusedInputSchemaHash, false, func(sp *StoredSpan) bool {
			return req.InputSchemaHash != "" && sp.InputSchemaHash == req.InputSchemaHash
		}},
		{TierUsedInputSchemaHash, true, func(sp *StoredSpan) bool {
			return req.InputSchemaHash != "" && sp.InputSchemaHash == req.InputSchemaHash
		}},
	}
	for _, t := range tiers {
		if match := pick(filter(candidates, t.used, t.match)); match != nil {
			return match, t.tier
		}
	}
	return nil, TierNone
}

// FindBestMatchInTrace runs the six-tier algorithm over traceID's own
// recorded spans, marking the winner used when it came from an unused
// tier, enforcing unused-first consumption. The match-and-mark step runs
// under the store's write lock so concurrent resolutions against the
// same trace can never both claim the same unused span.
func (r *Resolver) FindBestMatchInTrace(req Request, traceID string) (*StoredSpan, Tier) {
	return r.store.resolveInTrace(req, traceID)
}

// FindBestMatchAcrossTraces runs the same algorithm over the suite-wide
// global pool, used when a trace has no recording of its own.
func (r *Resolver) FindBestMatchAcrossTraces(req Request) (*StoredSpan, Tier) {
	return r.store.resolveGlobal(req)
}

// Resolve tries the trace-scoped match first, falling back to the
// global pool only if nothing in the trace matches at any tier.
func (r *Resolver) Resolve(req Request, traceID string) (*StoredSpan, Tier) {
	if match, tier := r.FindBestMatchInTrace(req, traceID); match != nil {
		return match, tier
	}
	return r.FindBestMatchAcrossTraces(req)
}
