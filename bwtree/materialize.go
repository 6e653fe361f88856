package bwtree

import "github.com/outerbase/bwindex/pidtable"

// chainView is the logical content of a node chain, built by applying its
// deltas to the Base in age order (oldest first). It is what consolidation
// installs as the new Base, and what point operations and scans read.
type chainView[K, V any] struct {
	leaf        bool
	version     uint32
	left, right pidtable.PID
	entries     []leafEntry[K, V] // leaf chains only, sorted by key
	keys        []K               // inner chains only, sorted
	kids        []pidtable.PID    // inner chains only, len(kids) == len(keys)+1
}

func (v *chainView[K, V]) count() int {
	if v.leaf {
		return len(v.entries)
	}
	return len(v.keys)
}

// materialize walks head's chain and applies every delta to the
// materialized view in oldest-to-newest order, exactly as consolidation
// does during consolidation. Point operations and scans reuse the same routine rather
// than a cheaper "first delta wins" shortcut because duplicate mode needs
// the full resolved value list for a key, not just the most recent delta
// touching it; node sizes are small enough (MaxNodeSize, MaxChainLen) that
// this costs nothing of consequence.
func (t *Tree[K, V]) materialize(head *node[K, V]) (*chainView[K, V], error) {
	// Collect the chain from head down to the Base, topmost (newest) first.
	var chain []*node[K, V]
	for n := head; n != nil; n = n.next {
		chain = append(chain, n)
		if n.kind == kindBaseInner || n.kind == kindBaseLeaf {
			break
		}
	}
	if len(chain) == 0 || (chain[len(chain)-1].kind != kindBaseInner && chain[len(chain)-1].kind != kindBaseLeaf) {
		return nil, newInvariantError("materialize", "chain has no Base node")
	}
	base := chain[len(chain)-1]

	view := &chainView[K, V]{leaf: base.leaf, version: head.version, left: base.left, right: base.right}
	if base.leaf {
		// Each entry's values slice must get its own backing array: a
		// shallow append of base.leafEntries would copy the leafEntry
		// structs but leave their values fields aliased to the
		// published Base's own memory, so a later append in
		// applyInsert could grow in place into spare capacity and
		// mutate a node that is supposed to be immutable after
		// publication.
		view.entries = make([]leafEntry[K, V], len(base.leafEntries))
		for i, e := range base.leafEntries {
			view.entries[i] = leafEntry[K, V]{key: e.key, values: append([]V(nil), e.values...)}
		}
	} else {
		view.keys = append(view.keys, base.innerKeys...)
		view.kids = append(view.kids, base.innerKids...)
	}

	// Apply the remaining deltas oldest to newest (reverse of chain order).
	for i := len(chain) - 2; i >= 0; i-- {
		if err := t.applyDelta(view, chain[i]); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func (t *Tree[K, V]) applyDelta(view *chainView[K, V], d *node[K, V]) error {
	switch d.kind {
	case kindInsert:
		return t.applyInsert(view, d)
	case kindDelete:
		return t.applyDelete(view, d)
	case kindSplit:
		// Keys >= splitKey no longer belong to this chain; they live at
		// splitRight now, which becomes this view's right sibling.
		if view.leaf {
			idx := lowerBoundEntries(view.entries, d.splitKey, t.cmp)
			view.entries = view.entries[:idx]
		} else {
			idx := lowerBoundKeys(view.keys, d.splitKey, t.cmp)
			view.keys = view.keys[:idx]
			view.kids = view.kids[:idx+1]
		}
		view.right = d.splitRight
		return nil
	case kindSplitEntry:
		idx := lowerBoundKeys(view.keys, d.seLowKey, t.cmp)
		if idx < len(view.keys) && t.cmp(view.keys[idx], d.seLowKey) == 0 {
			return nil // already present; another racing install beat us to it
		}
		view.keys = append(view.keys, d.seLowKey)
		copy(view.keys[idx+1:], view.keys[idx:])
		view.keys[idx] = d.seLowKey
		view.kids = append(view.kids, pidtable.Null)
		copy(view.kids[idx+2:], view.kids[idx+1:])
		view.kids[idx+1] = d.seRightKid
		return nil
	case kindRemove, kindMerge, kindMergeEntry:
		// Design-only; this implementation never installs
		// one, so reaching here means the chain was corrupted by
		// something outside this package.
		return newInvariantError("materialize", "encountered unsupported delta kind %s", d.kind)
	default:
		return newInvariantError("materialize", "encountered unexpected delta kind %s", d.kind)
	}
}

func (t *Tree[K, V]) applyInsert(view *chainView[K, V], d *node[K, V]) error {
	idx := lowerBoundEntries(view.entries, d.deltaKey, t.cmp)
	if idx < len(view.entries) && t.cmp(view.entries[idx].key, d.deltaKey) == 0 {
		if t.mode == Unique {
			return newInvariantError("materialize", "insert delta duplicates unique key")
		}
		for _, v := range view.entries[idx].values {
			if t.valEq(v, d.deltaValue) {
				return newInvariantError("materialize", "insert delta duplicates existing (key, value) pair")
			}
		}
		view.entries[idx].values = append(view.entries[idx].values, d.deltaValue)
		return nil
	}
	entry := leafEntry[K, V]{key: d.deltaKey, values: []V{d.deltaValue}}
	view.entries = append(view.entries, leafEntry[K, V]{})
	copy(view.entries[idx+1:], view.entries[idx:])
	view.entries[idx] = entry
	return nil
}

func (t *Tree[K, V]) applyDelete(view *chainView[K, V], d *node[K, V]) error {
	idx := lowerBoundEntries(view.entries, d.deltaKey, t.cmp)
	if idx >= len(view.entries) || t.cmp(view.entries[idx].key, d.deltaKey) != 0 {
		return newInvariantError("materialize", "delete delta has no matching key")
	}
	values := view.entries[idx].values
	vi := -1
	for i, v := range values {
		if t.valEq(v, d.deltaValue) {
			vi = i
			break
		}
	}
	if vi < 0 {
		return newInvariantError("materialize", "delete delta has no matching (key, value) pair")
	}
	values = append(values[:vi], values[vi+1:]...)
	if len(values) == 0 {
		view.entries = append(view.entries[:idx], view.entries[idx+1:]...)
	} else {
		view.entries[idx].values = values
	}
	return nil
}

func lowerBoundEntries[K, V any](entries []leafEntry[K, V], key K, cmp func(K, K) int) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(entries[mid].key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func lowerBoundKeys[K any](keys []K, key K, cmp func(K, K) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(keys[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
