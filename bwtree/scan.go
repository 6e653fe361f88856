package bwtree

import "github.com/outerbase/bwindex/pidtable"

// ScanKey returns every value currently bound to key, in insertion order
// within the duplicate list (empty in unique mode's absent case, a single
// element when present in unique mode). Reads never retry: materializing a
// single consistent head snapshot under GC registration is always
// self-consistent, unlike a mutation which must retry on a lost CAS.
func (t *Tree[K, V]) ScanKey(key K) []V {
	epoch := t.gc.Register()
	defer t.gc.Deregister(epoch)

	var out []V
	t.safely("ScanKey", func() bool {
		leafPID, _ := t.descend(key)
		head, _ := t.resolveRedirect(leafPID, key)
		view, err := t.materialize(head)
		if err != nil {
			t.fail(err)
			return false
		}
		idx := lowerBoundEntries(view.entries, key, t.cmp)
		if idx < len(view.entries) && t.cmp(view.entries[idx].key, key) == 0 {
			out = append(out, view.entries[idx].values...)
		}
		return true
	})
	return out
}

// ScanAll returns every value in the tree in ascending key order (within a
// key, duplicate mode preserves insertion order). It walks the leaf chain
// left to right starting from the tree's first leaf; materializing each
// leaf naturally truncates at any pending split and reports the correct
// next sibling via chainView.right, so no special-casing of in-flight
// splits is needed beyond what materialize already does.
func (t *Tree[K, V]) ScanAll() []V {
	epoch := t.gc.Register()
	defer t.gc.Deregister(epoch)

	var out []V
	t.safely("ScanAll", func() bool {
		pid := t.firstLeaf
		for pid != pidtable.Null {
			head := t.table.Get(pid)
			if head == nil {
				t.fail(newInvariantError("ScanAll", "dangling leaf PID %d", pid))
				return false
			}
			view, err := t.materialize(head)
			if err != nil {
				t.fail(err)
				return false
			}
			for _, e := range view.entries {
				out = append(out, e.values...)
			}
			pid = view.right
		}
		return true
	})
	return out
}
