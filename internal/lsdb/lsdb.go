// Package lsdb implements spec.md §4.4's LSDB: a keyed-by-origin store of
// the latest LSA per router, with monotonic sequence arbitration and
// change notification. Grounded on the teacher's small mutex-guarded
// keyed-state shape (`internal/manager/state.go`); the graph-construction
// and arbitration rules are new, taken directly from spec.md §4.4.
package lsdb

import (
	"sync"
	"time"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/jonboulle/clockwork"
)

// Link is spec.md §3's LsaRecord link entry.
type Link struct {
	Peer string
	Cost uint32
	Up   bool
}

// Record is spec.md §3's LsaRecord.
type Record struct {
	Origin       string
	Seq          uint64
	Links        []Link
	StubPrefixes []string
	ReceivedAt   time.Time
	RawEncoded   []byte
}

// Outcome is the result of offering a record to the LSDB.
type Outcome uint8

const (
	Installed Outcome = iota
	Duplicate
	Stale
	Rejected // origin is the local router; origination is exclusive to C5
)

// PrefixConflict records a later stub-prefix claim rejected in favor of
// the origin that claimed it first (spec.md §9).
type PrefixConflict struct {
	Prefix       string
	Owner        string
	RejectedFrom string
}

// DB is spec.md §4.4's LSDB.
type DB struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	localRouter string
	records     map[string]*Record

	claims    map[string]string // stub prefix -> owning origin (first-installed wins)
	conflicts []PrefixConflict  // pending rejected claims, drained by DrainPrefixConflicts
}

func New(clock clockwork.Clock, localRouterID string) *DB {
	return &DB{
		clock:       clock,
		localRouter: localRouterID,
		records:     make(map[string]*Record),
		claims:      make(map[string]string),
	}
}

// Offer implements spec.md §4.4's offer operation.
func (db *DB) Offer(rec Record) Outcome {
	db.mu.Lock()
	defer db.mu.Unlock()

	if rec.Origin == db.localRouter {
		return Rejected
	}

	rec.ReceivedAt = db.clock.Now()

	cur, ok := db.records[rec.Origin]
	if !ok {
		r := rec
		db.records[rec.Origin] = &r
		db.registerClaims(rec.Origin, rec.StubPrefixes)
		return Installed
	}
	if rec.Seq > cur.Seq {
		r := rec
		db.records[rec.Origin] = &r
		db.registerClaims(rec.Origin, rec.StubPrefixes)
		return Installed
	}
	if rec.Seq == cur.Seq {
		return Duplicate
	}
	return Stale
}

// registerClaims implements spec.md §9's resolution for duplicate stub-
// prefix claims across routers: the first origin to claim a given prefix
// keeps it for as long as its record exists; every later claim by a
// different origin is recorded in db.conflicts instead of silently
// overwriting the existing owner.
func (db *DB) registerClaims(origin string, prefixes []string) {
	for _, p := range prefixes {
		owner, claimed := db.claims[p]
		if !claimed {
			db.claims[p] = origin
			continue
		}
		if owner != origin {
			db.conflicts = append(db.conflicts, PrefixConflict{Prefix: p, Owner: owner, RejectedFrom: origin})
		}
	}
}

// releaseClaims frees any prefix this origin owned once its record is
// gone, so a departed router cannot permanently squat a stub prefix.
func (db *DB) releaseClaims(origin string, prefixes []string) {
	for _, p := range prefixes {
		if db.claims[p] == origin {
			delete(db.claims, p)
		}
	}
}

// DrainPrefixConflicts returns and clears every rejected stub-prefix claim
// recorded since the last call, for the caller (C5 Flooder) to log.
func (db *DB) DrainPrefixConflicts() []PrefixConflict {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := db.conflicts
	db.conflicts = nil
	return out
}

// InstallLocal implements spec.md §4.4's install_local operation: the
// local router's own record is replaced unconditionally, with seq bumped
// past whatever the process last emitted (LSDB invariant 2).
func (db *DB) InstallLocal(links []Link, stubPrefixes []string) *Record {
	db.mu.Lock()
	defer db.mu.Unlock()

	var nextSeq uint64 = 1
	if cur, ok := db.records[db.localRouter]; ok {
		nextSeq = cur.Seq + 1
	}

	rec := &Record{
		Origin:       db.localRouter,
		Seq:          nextSeq,
		Links:        links,
		StubPrefixes: stubPrefixes,
		ReceivedAt:   db.clock.Now(),
	}
	db.records[db.localRouter] = rec
	db.registerClaims(db.localRouter, stubPrefixes)
	return rec
}

// Get returns the current record for origin, or nil.
func (db *DB) Get(origin string) *Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	if r, ok := db.records[origin]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// Expire implements spec.md §4.4's expire operation. It never expires the
// local router's own record.
func (db *DB) Expire(maxAge time.Duration) (expired []string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.clock.Now()
	for origin, r := range db.records {
		if origin == db.localRouter {
			continue
		}
		if now.Sub(r.ReceivedAt) > maxAge {
			delete(db.records, origin)
			db.releaseClaims(origin, r.StubPrefixes)
			expired = append(expired, origin)
		}
	}
	return expired
}

// StubPrefixesByOrigin returns each record's stub prefixes keyed by
// origin, for C6 SPF to join against the computed distances. A prefix
// claimed by more than one origin is attributed only to whichever origin
// first claimed it (spec.md §9); later claimants' copies are excluded
// here rather than left for SPF to arbitrate.
func (db *DB) StubPrefixesByOrigin() map[string][]string {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make(map[string][]string, len(db.records))
	for origin, rec := range db.records {
		for _, p := range rec.StubPrefixes {
			if db.claims[p] == origin {
				out[origin] = append(out[origin], p)
			}
		}
	}
	return out
}

// Edge is one bidirectional edge in the graph snapshot_graph() returns.
type Edge struct {
	A, B string
	Cost uint32
}

// SnapshotGraph implements spec.md §4.4's snapshot_graph: an undirected
// graph over origins, keeping only links confirmed bidirectional (u→v
// up=true AND v→u up=true). One-sided links are dropped (spec.md
// invariant 4, tested in §8.4).
func (db *DB) SnapshotGraph() (vertices []string, edges []Edge) {
	db.mu.Lock()
	defer db.mu.Unlock()

	seen := make(map[[2]string]bool)
	for u, rec := range db.records {
		vertices = append(vertices, u)
		for _, l := range rec.Links {
			if !l.Up {
				continue
			}
			peerRec, ok := db.records[l.Peer]
			if !ok {
				continue
			}
			if !hasUpLinkTo(peerRec, u) {
				continue
			}
			pair := edgeKey(u, l.Peer)
			if seen[pair] {
				continue
			}
			seen[pair] = true
			edges = append(edges, Edge{A: u, B: l.Peer, Cost: l.Cost})
		}
	}
	return vertices, edges
}

func hasUpLinkTo(rec *Record, target string) bool {
	for _, l := range rec.Links {
		if l.Peer == target && l.Up {
			return true
		}
	}
	return false
}

func edgeKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// LinksFromCodec converts decoded wire links into lsdb.Link values.
func LinksFromCodec(in []codec.Link) []Link {
	out := make([]Link, len(in))
	for i, l := range in {
		out[i] = Link{Peer: l.Peer, Cost: l.Cost, Up: l.Up}
	}
	return out
}
