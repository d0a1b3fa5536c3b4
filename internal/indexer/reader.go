package indexer

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// ReloadPolicy decides when a Reader picks up new generations.
type ReloadPolicy int

const (
	// ReloadOnCommit always serves the latest published generation.
	ReloadOnCommit ReloadPolicy = iota
	// ReloadManual pins a generation until Reload is called.
	ReloadManual
)

func (p ReloadPolicy) String() string {
	if p == ReloadManual {
		return "manual"
	}
	return "on-commit"
}

// ParseReloadPolicy resolves a configured policy name. The empty string
// selects ReloadOnCommit.
func ParseReloadPolicy(name string) (ReloadPolicy, error) {
	switch strings.ToLower(name) {
	case "", "on-commit", "oncommit":
		return ReloadOnCommit, nil
	case "manual":
		return ReloadManual, nil
	default:
		return 0, fmt.Errorf("unknown reload policy %q", name)
	}
}

// Reader hands out snapshots to searches.
type Reader struct {
	idx    *Index
	policy ReloadPolicy
	pinned atomic.Pointer[Snapshot]
}

func (idx *Index) Reader(policy ReloadPolicy) *Reader {
	r := &Reader{idx: idx, policy: policy}
	r.pinned.Store(idx.Snapshot())
	return r
}

// Snapshot returns the generation searches should run against. It never
// blocks.
func (r *Reader) Snapshot() *Snapshot {
	if r.policy == ReloadOnCommit {
		return r.idx.Snapshot()
	}
	return r.pinned.Load()
}

// Reload moves a manual reader to the latest published generation.
func (r *Reader) Reload() *Snapshot {
	snap := r.idx.Snapshot()
	r.pinned.Store(snap)
	return snap
}

func (r *Reader) Policy() ReloadPolicy { return r.policy }
