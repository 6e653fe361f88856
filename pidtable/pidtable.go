// Package pidtable implements the indirection layer the BW-tree uses in
// place of raw pointers: every inter-node reference is a logical PID, and
// the physical address it currently maps to is changed with a single CAS on
// the table slot rather than by mutating the referring node.
//
// The directory is a two-level sparse array: a 14-bit first-level index
// selects a lazily-allocated 1024-slot second-level slab, and a 10-bit
// second-level index selects the slot within it. Both levels are accessed
// through atomic.Pointer fields, so a reader never takes a lock to resolve a
// PID, and a writer never takes a lock to install a new mapping.
package pidtable

import (
	"sync/atomic"

	"github.com/outerbase/bwindex/gatomic"
)

const (
	firstLevelBits  = 14
	secondLevelBits = 10

	dirSize  = 1 << firstLevelBits
	slabSize = 1 << secondLevelBits
	slabMask = slabSize - 1
)

// PID is an opaque logical identifier for a node chain. The zero value is a
// valid, allocatable PID; use Null to test for "no node".
type PID uint32

// Null is the sentinel PID meaning "no node here", mirroring the maximum
// value used as PID_NULL in the original C++ implementation.
const Null PID = ^PID(0)

// slab is one second-level block of directly addressable slots.
type slab[T any] struct {
	slots [slabSize]atomic.Pointer[T]
}

// freeNode is one entry of the retired-PID stack: a latch-free singly
// linked Treiber stack, CAS-pushed and CAS-popped exactly like the garbage
// collector's epoch list.
type freeNode struct {
	next *freeNode
	pid  PID
}

type freeStack struct {
	head gatomic.Ptr[freeNode]
}

func (s *freeStack) push(pid PID) {
	n := &freeNode{pid: pid}
	for {
		head := s.head.Load()
		n.next = head
		if s.head.CompareAndSwap(head, n) {
			return
		}
	}
}

func (s *freeStack) pop() (PID, bool) {
	for {
		head := s.head.Load()
		if head == nil {
			return 0, false
		}
		if s.head.CompareAndSwap(head, head.next) {
			return head.pid, true
		}
	}
}

// Table is a two-level sparse PID directory mapping PID to *T.
//
// T is whatever the caller's node representation is; the BW-tree
// instantiates Table[node[K, V]].
type Table[T any] struct {
	dir     [dirSize]atomic.Pointer[slab[T]]
	counter atomic.Uint32
	free    freeStack
}

// New returns an empty table with its first slab pre-allocated, so PID 0 is
// immediately resolvable the way the original constructor eagerly allocates
// the first first-level entry.
func New[T any]() *Table[T] {
	t := &Table[T]{}
	t.dir[0].Store(&slab[T]{})
	return t
}

func split(pid PID) (dirIdx, slotIdx uint32) {
	return uint32(pid) >> secondLevelBits, uint32(pid) & slabMask
}

// ensureSlab returns the slab for dirIdx, allocating and publishing it with
// a single CAS if this is the first PID to land in that range. Two threads
// racing to allocate the same slab resolve to whichever CAS wins; the loser
// observes the winner's slab via the failed CAS's implicit acquire and uses
// that one instead — this is the only place slab allocation can contend,
// and it is lock-free rather than serialized.
func (t *Table[T]) ensureSlab(dirIdx uint32) *slab[T] {
	if sl := t.dir[dirIdx].Load(); sl != nil {
		return sl
	}
	newSlab := &slab[T]{}
	if t.dir[dirIdx].CompareAndSwap(nil, newSlab) {
		return newSlab
	}
	return t.dir[dirIdx].Load()
}

func (t *Table[T]) slot(pid PID) *atomic.Pointer[T] {
	dirIdx, slotIdx := split(pid)
	sl := t.ensureSlab(dirIdx)
	return &sl.slots[slotIdx]
}

// Get resolves pid to its current physical address, or nil if pid was never
// allocated.
func (t *Table[T]) Get(pid PID) *T {
	dirIdx, slotIdx := split(pid)
	sl := t.dir[dirIdx].Load()
	if sl == nil {
		return nil
	}
	return sl.slots[slotIdx].Load()
}

// Allocate reserves a fresh PID bound to initial and returns it, preferring
// a retired PID from the free stack over growing the counter so that PID
// reuse happens as soon as the garbage collector allows it.
func (t *Table[T]) Allocate(initial *T) PID {
	if pid, ok := t.free.pop(); ok {
		t.slot(pid).Store(initial)
		return pid
	}
	pid := PID(t.counter.Add(1) - 1)
	t.slot(pid).Store(initial)
	return pid
}

// CompareAndSwap installs new as pid's physical address if and only if the
// current address is old.
func (t *Table[T]) CompareAndSwap(pid PID, old, new *T) bool {
	return t.slot(pid).CompareAndSwap(old, new)
}

// Free pushes pid onto the retired-PID stack. It does not clear pid's
// mapping — that is the caller's job (install a tombstone or let the table
// entry be overwritten by the next Allocate to reuse pid) — Free only makes
// pid eligible for reuse. Callers must only call Free once the garbage
// collector has confirmed no in-flight reader can still resolve pid.
func (t *Table[T]) Free(pid PID) {
	t.free.push(pid)
}
