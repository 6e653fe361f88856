package bwtree

import "github.com/outerbase/bwindex/pidtable"

// consolidate materializes pid's chain and installs the result as a fresh
// Base node with a single CAS. On success the old chain is
// retired to the garbage collector rather than freed immediately, so any
// reader already partway through it keeps seeing a consistent view. A lost
// CAS means someone else already changed pid (consolidated, split, or
// mutated it further); that is not an error, just a no-op — the caller's
// own retry loop (or the next structural-modification attempt) will pick
// up the new state.
func (t *Tree[K, V]) consolidate(pid pidtable.PID) bool {
	head := t.table.Get(pid)
	if head == nil || head.chainLen == 0 {
		return true
	}
	view, err := t.materialize(head)
	if err != nil {
		t.fail(err)
		return false
	}
	var base *node[K, V]
	if view.leaf {
		base = newBaseLeaf[K, V](view.entries, view.left, view.right, view.version)
	} else {
		base = newBaseInner[K, V](view.keys, view.kids, view.left, view.right, view.version)
	}
	if t.table.CompareAndSwap(pid, head, base) {
		t.gc.SubmitNode(head)
		t.m.incConsolidations()
		return true
	}
	t.m.incCASRetries()
	return false
}
