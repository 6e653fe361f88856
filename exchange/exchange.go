// Package exchange provides a thin parallel wrapper over a full-key scan:
// it partitions the tree's leaf chain across a worker pool and merges the
// ordered partial results back into the same order a sequential ScanAll
// would produce. It is an optimization over Tree.ScanAll, not a new
// consistency model, and is deliberately small — no plan tree, no hash
// join, no operator graph — matching the "exchange-parallel wrappers" the
// purpose statement calls out as present but thin.
package exchange

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Tree is the subset of *bwtree.Tree[K, V] the scanner needs, named here
// rather than imported directly so this package never depends on bwtree's
// internal node representation — only on its public scan surface.
type Tree[K, V any] interface {
	// LeafPIDs returns every leaf's identifier in ascending key order,
	// used to partition the scan into roughly-equal worker ranges.
	LeafPIDs() []uint32
	// ScanLeafRange returns every value held by the live leaf chain from
	// startPID up to (but excluding) stopPID, following each leaf's
	// current right-sibling pointer rather than a fixed PID list —
	// startPID and stopPID are leaf identities from a prior LeafPIDs
	// call, and remain valid boundaries even if a leaf between them
	// splits before the scan reaches it. stopPID is ignored when
	// hasStop is false, meaning "run to the end of the chain".
	ScanLeafRange(ctx context.Context, startPID, stopPID uint32, hasStop bool) ([]V, error)
}

// Scanner fans a full scan of a Tree out across a bounded worker pool.
type Scanner[K, V any] struct {
	tree       Tree[K, V]
	maxWorkers int64
}

// NewScanner wraps tree. maxWorkers bounds how many leaf-range workers may
// run at once; zero or negative means unbounded (limited only by
// numWorkers passed to Scan).
func NewScanner[K, V any](tree Tree[K, V], maxWorkers int) *Scanner[K, V] {
	if maxWorkers <= 0 {
		maxWorkers = 1 << 30
	}
	return &Scanner[K, V]{tree: tree, maxWorkers: int64(maxWorkers)}
}

// Scan partitions the leftmost-to-rightmost leaf chain into numWorkers
// roughly-equal ranges (a single leader call to LeafPIDs first walks the
// chain to find the boundaries, mirroring the partition-then-join shape of
// a parallel sequential scan), runs one worker goroutine per range, and
// concatenates their ordered partial results back into a single ordered
// slice. Each worker's range is a pair of leaf-identity boundaries, not a
// fixed list of PIDs to visit: a worker walks the live sibling chain from
// its start boundary up to its stop boundary, so a split that lands inside
// a worker's range between the leader's snapshot and the worker's walk is
// still observed exactly once rather than silently dropped. Each worker
// registers with the GC on its own goroutine rather than the leader
// hoisting one shared registration, matching the rule that every traversal
// registers for itself.
func (s *Scanner[K, V]) Scan(ctx context.Context, numWorkers int) ([]V, error) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	leaves := s.tree.LeafPIDs()
	if len(leaves) == 0 {
		return nil, nil
	}
	if numWorkers > len(leaves) {
		numWorkers = len(leaves)
	}

	ranges := partition(len(leaves), numWorkers)
	results := make([][]V, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(s.maxWorkers)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			startPID := leaves[r.start]
			stopPID, hasStop := uint32(0), false
			if r.end < len(leaves) {
				stopPID, hasStop = leaves[r.end], true
			}
			vs, err := s.tree.ScanLeafRange(gctx, startPID, stopPID, hasStop)
			if err != nil {
				return err
			}
			results[i] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []V
	for _, vs := range results {
		out = append(out, vs...)
	}
	return out, nil
}

type rangeBounds struct{ start, end int }

// partition splits [0, n) into at most numWorkers contiguous, roughly
// equal-sized ranges in ascending order, matching the order contract
// ScanAll guarantees for the concatenated result.
func partition(n, numWorkers int) []rangeBounds {
	if numWorkers > n {
		numWorkers = n
	}
	base := n / numWorkers
	rem := n % numWorkers
	ranges := make([]rangeBounds, 0, numWorkers)
	start := 0
	for i := 0; i < numWorkers; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		ranges = append(ranges, rangeBounds{start: start, end: start + size})
		start += size
	}
	return ranges
}
