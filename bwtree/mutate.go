package bwtree

// Insert adds (key, value) to the tree. In Unique mode it returns false
// without modifying the tree if key already exists; in Duplicate mode it
// returns false only if the exact (key, value) pair already exists.
func (t *Tree[K, V]) Insert(key K, value V) bool {
	epoch := t.gc.Register()
	defer t.gc.Deregister(epoch)
	return t.safely("Insert", func() bool {
		for {
			leafPID, path := t.descend(key)
			head := t.table.Get(leafPID)
			view, err := t.materialize(head)
			if err != nil {
				t.fail(err)
				return false
			}
			if t.keyValuePresent(view, key, value, false) {
				return false
			}
			delta := &node[K, V]{
				kind: kindInsert, leaf: true, next: head,
				chainLen: head.chainLen + 1, slotUsage: t.nextInsertSlotUsage(view, key), version: head.version,
				deltaKey: key, deltaValue: value,
			}
			if t.table.CompareAndSwap(leafPID, head, delta) {
				t.maybeConsolidateAndSplit(path, len(path)-1)
				return true
			}
			t.m.incCASRetries()
		}
	})
}

// Delete removes the exact (key, value) pair from the tree. It returns
// false without modifying the tree if the pair does not exist.
func (t *Tree[K, V]) Delete(key K, value V) bool {
	epoch := t.gc.Register()
	defer t.gc.Deregister(epoch)
	return t.safely("Delete", func() bool {
		for {
			leafPID, path := t.descend(key)
			head := t.table.Get(leafPID)
			view, err := t.materialize(head)
			if err != nil {
				t.fail(err)
				return false
			}
			if !t.keyValuePresent(view, key, value, true) {
				return false
			}
			delta := &node[K, V]{
				kind: kindDelete, leaf: true, next: head,
				chainLen: head.chainLen + 1, slotUsage: t.nextDeleteSlotUsage(view, key), version: head.version,
				deltaKey: key, deltaValue: value,
			}
			if t.table.CompareAndSwap(leafPID, head, delta) {
				t.maybeConsolidateAndSplit(path, len(path)-1)
				return true
			}
			t.m.incCASRetries()
		}
	})
}

// keyValuePresent reports whether (key, value) is in view. With exact false,
// unique mode counts any value bound to key as a match.
func (t *Tree[K, V]) keyValuePresent(view *chainView[K, V], key K, value V, exact bool) bool {
	idx := lowerBoundEntries(view.entries, key, t.cmp)
	if idx >= len(view.entries) || t.cmp(view.entries[idx].key, key) != 0 {
		return false
	}
	if t.mode == Unique && !exact {
		return true
	}
	for _, v := range view.entries[idx].values {
		if t.valEq(v, value) {
			return true
		}
	}
	return false
}

// nextInsertSlotUsage computes the insert delta's post-application slot
// count explicitly: a new key raises the count by one; a
// new value for an already-present key (duplicate mode) does not.
func (t *Tree[K, V]) nextInsertSlotUsage(view *chainView[K, V], key K) int {
	idx := lowerBoundEntries(view.entries, key, t.cmp)
	if idx < len(view.entries) && t.cmp(view.entries[idx].key, key) == 0 {
		return view.count()
	}
	return view.count() + 1
}

// nextDeleteSlotUsage mirrors nextInsertSlotUsage: removing the last value
// bound to a key lowers the count by one; removing one of several values
// in duplicate mode does not.
func (t *Tree[K, V]) nextDeleteSlotUsage(view *chainView[K, V], key K) int {
	idx := lowerBoundEntries(view.entries, key, t.cmp)
	if idx < len(view.entries) && t.cmp(view.entries[idx].key, key) == 0 && len(view.entries[idx].values) == 1 {
		return view.count() - 1
	}
	return view.count()
}

// maybeConsolidateAndSplit is called after every successful delta
// installation at path[idx]. It consolidates the chain once its length
// reaches MaxChainLen, then splits the node once its slot usage exceeds
// MaxNodeSize, installing a split-entry on the parent (or growing the
// tree's height if path[idx] is the root) and recursing upward since that
// installation can itself push the parent over MaxNodeSize.
func (t *Tree[K, V]) maybeConsolidateAndSplit(path []stackEntry[K, V], idx int) {
	pid := path[idx].pid
	head := t.table.Get(pid)
	if head == nil {
		return
	}
	if head.chainLen >= t.cfg.MaxChainLen {
		if t.consolidate(pid) {
			head = t.table.Get(pid)
		}
	}
	if head == nil || head.slotUsage <= t.cfg.MaxNodeSize {
		return
	}
	if idx == 0 {
		t.splitRoot(pid)
		return
	}
	medianKey, rightPID, ok := t.splitNode(pid)
	if !ok {
		return
	}
	parentPID := path[idx-1].pid
	if t.installSplitEntry(parentPID, medianKey, rightPID) {
		t.maybeConsolidateAndSplit(path, idx-1)
	}
}
