package bwtree

import "github.com/outerbase/bwindex/pidtable"

// kind tags the variant a node value carries. The BW-tree's node chain is a
// tagged union rather than an interface hierarchy: one struct type with a
// kind field and only the fields relevant to that kind populated, so a
// chain walk is one exhaustive switch instead of a type assertion per hop.
type kind uint8

const (
	kindBaseInner kind = iota
	kindBaseLeaf
	kindInsert
	kindDelete
	kindSplit
	kindSplitEntry
	kindRemove      // design-only; never installed by this implementation
	kindMerge       // design-only; never installed by this implementation
	kindMergeEntry  // design-only; never installed by this implementation
)

func (k kind) String() string {
	switch k {
	case kindBaseInner:
		return "base-inner"
	case kindBaseLeaf:
		return "base-leaf"
	case kindInsert:
		return "insert"
	case kindDelete:
		return "delete"
	case kindSplit:
		return "split"
	case kindSplitEntry:
		return "split-entry"
	case kindRemove:
		return "remove"
	case kindMerge:
		return "merge"
	case kindMergeEntry:
		return "merge-entry"
	default:
		return "unknown"
	}
}

// leafEntry is one logical key in a leaf's materialized view. values holds
// exactly one element in unique mode; duplicate mode keeps an ordered list
// of every value currently bound to key.
type leafEntry[K, V any] struct {
	key    K
	values []V
}

// node is a single link in a node chain: either a self-contained Base
// (Inner or Leaf), installed once at allocation or consolidation time, or a
// delta prepended on top of an existing chain by a single CAS. Only the
// fields relevant to kind are meaningful; the rest are zero.
type node[K, V any] struct {
	kind      kind
	leaf      bool
	chainLen  int         // 0 for a Base; otherwise next's chainLen + 1
	slotUsage int         // logical key count after this node is applied
	version   uint32      // bumped when a split delta is installed on this chain
	next      *node[K, V] // nil for a Base

	// Base Inner / Base Leaf.
	left, right pidtable.PID
	innerKeys   []K
	innerKids   []pidtable.PID // len(innerKids) == len(innerKeys)+1
	leafEntries []leafEntry[K, V]

	// Insert / Delete delta: one (key, value) pair.
	deltaKey   K
	deltaValue V

	// Split delta: installed on the node that split. Keys >= splitKey
	// logically belong to splitRight now.
	splitKey   K
	splitRight pidtable.PID

	// Split-entry delta: installed on the parent once splitRight exists.
	// seHighKey/seHasHigh record the next-higher separator key the parent
	// held at delta-construction time; childFor routes a key to seRightKid
	// only when it is below seHighKey. Materialization positions the delta
	// by seLowKey alone.
	seLowKey   K
	seHighKey  K
	seHasHigh  bool
	seRightKid pidtable.PID

	// Remove / Merge / Merge-entry: carried for completeness per the
	// node taxonomy; this implementation never constructs one, see
	// Tree's handling of kindMerge in materialize for why it is safe to
	// encounter one anyway (it isn't reachable, but fails closed rather
	// than silently misbehaving if it ever is).
	mergeSibling pidtable.PID
}

func newBaseLeaf[K, V any](entries []leafEntry[K, V], left, right pidtable.PID, version uint32) *node[K, V] {
	return &node[K, V]{
		kind: kindBaseLeaf, leaf: true,
		slotUsage: len(entries), version: version,
		left: left, right: right, leafEntries: entries,
	}
}

func newBaseInner[K, V any](keys []K, kids []pidtable.PID, left, right pidtable.PID, version uint32) *node[K, V] {
	return &node[K, V]{
		kind: kindBaseInner, leaf: false,
		slotUsage: len(keys), version: version,
		left: left, right: right, innerKeys: keys, innerKids: kids,
	}
}
