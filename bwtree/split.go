package bwtree

import "github.com/outerbase/bwindex/pidtable"

const maxSplitEntryRetries = 8

// splitNode performs step 1 of a two-step split: materialize pid,
// carve off its upper half into a brand-new Base allocated under a fresh
// PID, and CAS a Split delta onto pid recording the median key and the new
// right sibling. It returns the median key and the new PID so the caller
// can attempt step 2 (installing a Split-entry on the parent). If the CAS
// loses the race, the freshly allocated right-sibling PID is freed (it was
// never made reachable) and splitNode reports failure; a later structural
// modification will retry the split from scratch.
func (t *Tree[K, V]) splitNode(pid pidtable.PID) (medianKey K, rightPID pidtable.PID, ok bool) {
	head := t.table.Get(pid)
	if head == nil {
		return medianKey, pidtable.Null, false
	}
	view, err := t.materialize(head)
	if err != nil {
		t.fail(err)
		return medianKey, pidtable.Null, false
	}

	var rightBase *node[K, V]
	var leftCount int // keys left on pid once the split delta is applied
	if view.leaf {
		mid := len(view.entries) / 2
		if mid == 0 {
			return medianKey, pidtable.Null, false // nothing to split
		}
		leftCount = mid
		medianKey = view.entries[mid].key
		right := append([]leafEntry[K, V]{}, view.entries[mid:]...)
		rightBase = newBaseLeaf[K, V](right, pid, view.right, 0)
	} else {
		mid := len(view.keys) / 2
		if mid == 0 {
			return medianKey, pidtable.Null, false
		}
		leftCount = mid
		medianKey = view.keys[mid]
		rightKeys := append([]K{}, view.keys[mid+1:]...)
		rightKids := append([]pidtable.PID{}, view.kids[mid+1:]...)
		rightBase = newBaseInner[K, V](rightKeys, rightKids, pid, view.right, 0)
	}

	rightPID = t.table.Allocate(rightBase)
	delta := &node[K, V]{
		kind: kindSplit, leaf: head.leaf, next: head,
		chainLen: head.chainLen + 1, slotUsage: leftCount, version: head.version + 1,
		splitKey: medianKey, splitRight: rightPID,
	}
	if !t.table.CompareAndSwap(pid, head, delta) {
		t.gc.SubmitPID(rightPID) // never made reachable; still routed through GC so any racing reader of a stale pointer to it is safe
		t.m.incCASRetries()
		return medianKey, pidtable.Null, false
	}
	return medianKey, rightPID, true
}

// installSplitEntry performs step 2 of a two-step split: install a
// Split-entry delta on parentPID recording (lowKey, rightChildPID). If a
// Split-entry for lowKey is already present — another thread finished the
// same split first — this reports success without installing anything.
func (t *Tree[K, V]) installSplitEntry(parentPID pidtable.PID, lowKey K, rightChildPID pidtable.PID) bool {
	for attempt := 0; attempt < maxSplitEntryRetries; attempt++ {
		head := t.table.Get(parentPID)
		if head == nil {
			return false
		}
		view, err := t.materialize(head)
		if err != nil {
			t.fail(err)
			return false
		}
		idx := lowerBoundKeys(view.keys, lowKey, t.cmp)
		if idx < len(view.keys) && t.cmp(view.keys[idx], lowKey) == 0 {
			return true
		}
		var highKey K
		hasHigh := false
		if idx < len(view.keys) {
			highKey, hasHigh = view.keys[idx], true
		}
		delta := &node[K, V]{
			kind: kindSplitEntry, leaf: false, next: head,
			chainLen: head.chainLen + 1, slotUsage: head.slotUsage + 1, version: head.version,
			seLowKey: lowKey, seHighKey: highKey, seHasHigh: hasHigh, seRightKid: rightChildPID,
		}
		if t.table.CompareAndSwap(parentPID, head, delta) {
			return true
		}
		t.m.incCASRetries()
	}
	return false
}

// splitRoot grows the tree's height by one: the
// current root's chain is given a new identity (a fresh PID holding its
// present head), and the root PID itself is CAS'd to a new two-child Base
// Inner separating the (now non-root) old root from the split's new right
// sibling. A loser frees the PID it allocated for the old root's new
// identity and lets a later operation retry.
func (t *Tree[K, V]) splitRoot(rootPID pidtable.PID) {
	rootHead := t.table.Get(rootPID)
	if rootHead == nil {
		return
	}
	medianKey, rightPID, ok := t.splitNode(rootPID)
	if !ok {
		return
	}
	// rootPID's chain now carries the Split delta splitNode installed;
	// give that chain a new PID so the root PID can be replaced wholesale.
	splitHead := t.table.Get(rootPID)
	newChildPID := t.table.Allocate(splitHead)
	newRoot := newBaseInner[K, V]([]K{medianKey}, []pidtable.PID{newChildPID, rightPID}, pidtable.Null, pidtable.Null, 0)
	if !t.table.CompareAndSwap(rootPID, splitHead, newRoot) {
		t.gc.SubmitPID(newChildPID)
		t.m.incCASRetries()
		return
	}
	t.m.incSplits()
}
