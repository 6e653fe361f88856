package bwtree

import "github.com/outerbase/bwindex/pidtable"

// resolveRedirect resolves pid to its current chain head, following any
// Split delta whose splitKey is at or below key: a pending split reroutes
// to the right sibling once the target key reaches or passes the split
// key. It keeps following redirects until it lands on a PID whose chain
// has no applicable split, which may require more than one hop if a chain
// has more than one uninstalled split delta stacked on it (rare, since
// MaxChainLen forces frequent consolidation).
func (t *Tree[K, V]) resolveRedirect(pid pidtable.PID, key K) (*node[K, V], pidtable.PID) {
	for {
		head := t.table.Get(pid)
		if head == nil {
			panic(newInvariantError("resolveRedirect", "dangling PID %d", pid))
		}
		if sp := findSplit(head); sp != nil && t.cmp(key, sp.splitKey) >= 0 {
			pid = sp.splitRight
			continue
		}
		return head, pid
	}
}

// findSplit returns the first (newest) Split delta in head's chain, or nil
// if the chain has no pending split.
func findSplit[K, V any](head *node[K, V]) *node[K, V] {
	for n := head; n != nil; n = n.next {
		if n.kind == kindSplit {
			return n
		}
		if n.kind == kindBaseInner || n.kind == kindBaseLeaf {
			return nil
		}
	}
	return nil
}

// childFor scans an inner chain top-down for the child PID that owns key:
// the first applicable Split-entry delta, or the Base's sorted children if
// none applies.
func (t *Tree[K, V]) childFor(head *node[K, V], key K) pidtable.PID {
	for n := head; n != nil; n = n.next {
		switch n.kind {
		case kindSplitEntry:
			if t.cmp(key, n.seLowKey) >= 0 && (!n.seHasHigh || t.cmp(key, n.seHighKey) < 0) {
				return n.seRightKid
			}
		case kindBaseInner:
			idx := upperBoundKeys(n.innerKeys, key, t.cmp)
			return n.innerKids[idx]
		}
	}
	panic(newInvariantError("childFor", "inner chain has no Base"))
}

func upperBoundKeys[K any](keys []K, key K, cmp func(K, K) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(key, keys[mid]) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// stackEntry records one level of a root-to-leaf descent, used to find the
// immediate parent of a node that needs a split entry installed.
type stackEntry[K, V any] struct {
	pid  pidtable.PID
	head *node[K, V]
}

// descend walks from the root to the leaf that should own key, following
// split redirects at every level. It returns the leaf PID and the full
// root-to-leaf path (parent before child), so a caller that triggers a
// split on the returned leaf knows which PID to install the split-entry
// delta on.
func (t *Tree[K, V]) descend(key K) (leafPID pidtable.PID, path []stackEntry[K, V]) {
	pid := t.loadRoot()
	for {
		head, resolved := t.resolveRedirect(pid, key)
		pid = resolved
		path = append(path, stackEntry[K, V]{pid: pid, head: head})
		if head.leaf {
			return pid, path
		}
		pid = t.childFor(head, key)
	}
}

func (t *Tree[K, V]) loadRoot() pidtable.PID {
	return t.root
}
