package bwtree

import (
	"context"

	"github.com/outerbase/bwindex/pidtable"
)

// LeafPIDs returns every leaf PID in ascending key order. It is the
// leader-side partitioning step the exchange package's parallel scan uses
// to carve the leaf chain into worker ranges; it performs its own
// GC-registered walk rather than sharing one with the workers that follow.
func (t *Tree[K, V]) LeafPIDs() []uint32 {
	epoch := t.gc.Register()
	defer t.gc.Deregister(epoch)

	var out []uint32
	pid := t.firstLeaf
	for pid != pidtable.Null {
		head := t.table.Get(pid)
		if head == nil {
			t.fail(newInvariantError("LeafPIDs", "dangling leaf PID %d", pid))
			return out
		}
		out = append(out, uint32(pid))
		view, err := t.materialize(head)
		if err != nil {
			t.fail(err)
			return out
		}
		pid = view.right
	}
	return out
}

// ScanLeafRange returns every value held by the leaves from startPID
// (inclusive) up to stopPID (exclusive, ignored when hasStop is false),
// following each leaf's live right-sibling pointer rather than trusting a
// fixed list of PIDs. startPID and stopPID are leaf identities a leader's
// LeafPIDs call observed; a concurrent split never changes an existing
// leaf's own PID, it only truncates that leaf's chain and chains a freshly
// allocated right sibling after it, so walking sibling-to-sibling from a
// known-good start to a known-good stop picks up any such new PID in
// between instead of silently excluding it. It satisfies exchange.Tree[K, V].
func (t *Tree[K, V]) ScanLeafRange(ctx context.Context, startPID uint32, stopPID uint32, hasStop bool) ([]V, error) {
	epoch := t.gc.Register()
	defer t.gc.Deregister(epoch)

	stop := pidtable.Null
	if hasStop {
		stop = pidtable.PID(stopPID)
	}

	var out []V
	pid := pidtable.PID(startPID)
	for pid != pidtable.Null && pid != stop {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		head := t.table.Get(pid)
		if head == nil {
			err := newInvariantError("ScanLeafRange", "dangling leaf PID %d", pid)
			t.fail(err)
			return out, err
		}
		view, err := t.materialize(head)
		if err != nil {
			t.fail(err)
			return out, err
		}
		for _, e := range view.entries {
			out = append(out, e.values...)
		}
		pid = view.right
	}
	return out, nil
}
