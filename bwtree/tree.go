// Package bwtree implements a latch-free ordered index over a pidtable-
// indirected node chain, with epoch-based reclamation of retired chains and
// PIDs: every structural change to a node is a single CAS that either
// prepends a delta onto the node's chain or installs a freshly consolidated
// Base, and no operation ever blocks on another's progress — a losing CAS
// just retries.
package bwtree

import (
	"go.uber.org/zap"

	"github.com/outerbase/bwindex/gc"
	"github.com/outerbase/bwindex/pidtable"
)

// Tree is a concurrent ordered index from K to V. All methods are safe to
// call from multiple goroutines concurrently.
type Tree[K, V any] struct {
	cmp   func(K, K) int
	keyEq func(K, K) bool
	valEq func(V, V) bool
	mode  Mode
	cfg   Config

	table *pidtable.Table[node[K, V]]
	gc    *gc.Collector[*node[K, V]]
	m     *metrics

	root      pidtable.PID
	firstLeaf pidtable.PID
}

// New constructs an empty tree. cmp must impose a total order on K; keyEq
// and valEq test equality for keys and values respectively (in unique mode
// valEq is only used by Delete to match the exact pair).
func New[K, V any](cmp func(K, K) int, keyEq func(K, K) bool, valEq func(V, V) bool, mode Mode, cfg Config) *Tree[K, V] {
	cfg = cfg.withDefaults()
	t := &Tree[K, V]{
		cmp: cmp, keyEq: keyEq, valEq: valEq, mode: mode, cfg: cfg,
		table: pidtable.New[node[K, V]](),
		m:     newMetrics(cfg.Registerer),
	}
	t.gc = gc.New[*node[K, V]](gc.Config{
		EpochInterval: cfg.EpochInterval,
		Logger:        cfg.Logger,
		Metrics:       gc.NewMetrics(cfg.Registerer, "bwtree"),
	}, freeChain[K, V], t.table.Free)

	leaf := newBaseLeaf[K, V](nil, pidtable.Null, pidtable.Null, 0)
	t.firstLeaf = t.table.Allocate(leaf)
	root := newBaseInner[K, V]([]K{}, []pidtable.PID{t.firstLeaf}, pidtable.Null, pidtable.Null, 0)
	t.root = t.table.Allocate(root)
	return t
}

// freeChain is the GC's advisory free callback for a retired node chain:
// Go's own runtime GC governs the memory, so this just breaks the chain's
// internal links early and leaves actual collection to the runtime.
func freeChain[K, V any](head *node[K, V]) {
	for n := head; n != nil; {
		next := n.next
		n.next = nil
		n = next
	}
}

// Close stops the tree's garbage-collection daemon. A tree that is never
// closed simply leaks its daemon goroutine like any other unstopped
// background worker.
func (t *Tree[K, V]) Close() {
	t.gc.Stop()
}

func (t *Tree[K, V]) logger() *zap.Logger {
	return t.cfg.Logger
}

// fail reports an invariant violation: in strict mode it panics with
// the wrapped error so tests pinpoint the failure; otherwise it logs and
// returns, letting the caller report a release-mode "false".
func (t *Tree[K, V]) fail(err error) {
	t.m.incInvariantFails()
	if t.cfg.StrictInvariants {
		panic(err)
	}
	t.logger().Error("bwtree: invariant violation", zap.Error(err))
}

// safely recovers a panic raised by an internal defensive assertion (e.g.
// childFor falling off the end of a chain) and converts it to the same
// fail() handling invariant errors get, so a corrupt chain degrades to a
// logged failure in release builds instead of taking down the process.
func (t *Tree[K, V]) safely(op string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if ierr, isInvariant := r.(*InvariantError); isInvariant {
				t.fail(ierr)
			} else {
				t.fail(newInvariantError(op, "panic: %v", r))
			}
			ok = false
		}
	}()
	return fn()
}
