package bwtree_test

import (
	"context"
	"sort"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"

	"github.com/outerbase/bwindex/bwtree"
	"github.com/outerbase/bwindex/internal/bwtreetest"
)

func newTree[K, V any](c *qt.C, cmp func(K, K) int, eqK func(K, K) bool, eqV func(V, V) bool, mode bwtree.Mode, tweak func(*bwtree.Config)) *bwtree.Tree[K, V] {
	cfg := bwtree.DefaultConfig()
	cfg.StrictInvariants = true
	if tweak != nil {
		tweak(&cfg)
	}
	tr := bwtree.New[K, V](cmp, eqK, eqV, mode, cfg)
	c.Cleanup(tr.Close)
	return tr
}

func intTree(c *qt.C, mode bwtree.Mode, tweak func(*bwtree.Config)) *bwtree.Tree[int, int] {
	return newTree[int, int](c, bwtreetest.Cmp[int](), bwtreetest.Eq[int](), bwtreetest.Eq[int](), mode, tweak)
}

func TestInsertScanKeyUniqueMode(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, nil)

	c.Assert(tr.Insert(5, 50), qt.IsTrue)
	c.Assert(tr.Insert(5, 999), qt.IsFalse, qt.Commentf("unique mode rejects a second value for an existing key"))
	c.Assert(tr.ScanKey(5), qt.DeepEquals, []int{50})
	c.Assert(tr.ScanKey(6), qt.HasLen, 0)
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, nil)

	c.Assert(tr.Insert(1, 10), qt.IsTrue)
	c.Assert(tr.Delete(1, 10), qt.IsTrue)
	c.Assert(tr.ScanKey(1), qt.HasLen, 0)
	c.Assert(tr.Delete(1, 10), qt.IsFalse, qt.Commentf("deleting an absent pair reports false"))
}

func TestDuplicateModeAccumulatesValues(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Duplicate, nil)

	c.Assert(tr.Insert(1, 100), qt.IsTrue)
	c.Assert(tr.Insert(1, 200), qt.IsTrue)
	c.Assert(tr.Insert(1, 100), qt.IsFalse, qt.Commentf("duplicate mode still rejects the exact same pair twice"))
	c.Assert(tr.ScanKey(1), qt.DeepEquals, []int{100, 200})

	c.Assert(tr.Delete(1, 100), qt.IsTrue)
	c.Assert(tr.ScanKey(1), qt.DeepEquals, []int{200})
}

func TestScanAllOrderedAcrossSplits(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, func(cfg *bwtree.Config) {
		cfg.MaxNodeSize = 4
		cfg.MaxChainLen = 3
	})

	const n = 500
	for _, k := range bwtreetest.IntKeys(n, 42) {
		c.Assert(tr.Insert(k, k), qt.IsTrue)
	}

	got := tr.ScanAll()
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	sort.Ints(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scan mismatch after many splits (-want +got):\n%s", diff)
	}

	for _, k := range want {
		c.Assert(tr.ScanKey(k), qt.DeepEquals, []int{k})
	}
}

func TestDeleteAfterManySplitsKeepsTreeConsistent(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, func(cfg *bwtree.Config) {
		cfg.MaxNodeSize = 4
		cfg.MaxChainLen = 2
	})

	const n = 300
	keys := bwtreetest.IntKeys(n, 99)
	for _, k := range keys {
		c.Assert(tr.Insert(k, k), qt.IsTrue)
	}
	for i, k := range keys {
		if i%2 == 0 {
			c.Assert(tr.Delete(k, k), qt.IsTrue)
		}
	}

	var want []int
	for i, k := range keys {
		if i%2 != 0 {
			want = append(want, k)
		}
	}
	sort.Ints(want)
	got := tr.ScanAll()
	sort.Ints(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scan mismatch after interleaved delete (-want +got):\n%s", diff)
	}
}

func TestConcurrentInsertsConverge(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, func(cfg *bwtree.Config) {
		cfg.MaxNodeSize = 8
		cfg.MaxChainLen = 4
	})

	const n = 1000
	const workers = 16
	keys := bwtreetest.IntKeys(n, 1234)
	results := make([]bool, n)
	bwtreetest.Concurrently(workers, func(worker int) {
		for i := worker; i < n; i += workers {
			k := keys[i]
			results[i] = tr.Insert(k, k)
		}
	})
	for i, ok := range results {
		c.Assert(ok, qt.IsTrue, qt.Commentf("insert of key %d reported false", keys[i]))
	}

	got := tr.ScanAll()
	sort.Ints(got)
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("concurrent inserts produced an inconsistent tree (-want +got):\n%s", diff)
	}
}

func TestConcurrentInsertOfSameKeyOnlyOneWins(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, nil)

	const workers = 32
	wins := make([]bool, workers)
	bwtreetest.Concurrently(workers, func(worker int) {
		wins[worker] = tr.Insert(7, worker)
	})

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	c.Assert(winners, qt.Equals, 1)
	c.Assert(tr.ScanKey(7), qt.HasLen, 1)
}

func TestStringKeys(t *testing.T) {
	c := qt.New(t)
	tr := newTree[string, int](c, bwtreetest.Cmp[string](), bwtreetest.Eq[string](), bwtreetest.Eq[int](), bwtree.Unique, func(cfg *bwtree.Config) {
		cfg.MaxNodeSize = 4
	})

	words := []string{"pear", "apple", "mango", "kiwi", "banana", "fig", "date", "grape"}
	for i, w := range words {
		c.Assert(tr.Insert(w, i), qt.IsTrue)
	}
	// Values are each word's insertion index, so the expected scan is those
	// indices listed in the words' ascending order.
	sorted := append([]string{}, words...)
	sort.Strings(sorted)
	want := make([]int, 0, len(sorted))
	for _, w := range sorted {
		for i, orig := range words {
			if orig == w {
				want = append(want, i)
			}
		}
	}
	got := tr.ScanAll()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("string-keyed scan is not in ascending key order (-want +got):\n%s", diff)
	}
}

// TestScanLeafRangeFollowsSplitAfterSnapshot reproduces the sequence
// exchange.Scanner.Scan relies on: a leader snapshots leaf boundaries with
// LeafPIDs, then a split lands inside one worker's range before that
// worker's ScanLeafRange call runs. The split's new right-sibling PID was
// never in the snapshot, so the worker must reach it by following the
// split leaf's live sibling pointer rather than trusting only the PIDs it
// was handed.
func TestScanLeafRangeFollowsSplitAfterSnapshot(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, func(cfg *bwtree.Config) {
		cfg.MaxNodeSize = 4
		cfg.MaxChainLen = 1
	})

	for _, k := range []int{0, 10, 20, 30, 40, 50, 60, 70, 80} {
		c.Assert(tr.Insert(k, k), qt.IsTrue)
	}

	leaves := tr.LeafPIDs()
	c.Assert(len(leaves) >= 3, qt.IsTrue, qt.Commentf("expected at least 3 leaves, got %d", len(leaves)))

	// leaves[1] holds [20, 30] at snapshot time; leaves[2] is an
	// unaffected boundary further right.
	startPID, stopPID := leaves[1], leaves[2]

	// Force leaves[1] to split before the range is actually scanned. The
	// new right half lands between startPID and stopPID in the live
	// chain but was never part of the leaves snapshot above.
	for _, k := range []int{21, 22, 23} {
		c.Assert(tr.Insert(k, k), qt.IsTrue)
	}

	got, err := tr.ScanLeafRange(context.Background(), startPID, stopPID, true)
	c.Assert(err, qt.IsNil)
	sort.Ints(got)
	c.Assert(got, qt.DeepEquals, []int{20, 21, 22, 23, 30})
}

func TestEmptyTreeScan(t *testing.T) {
	c := qt.New(t)
	tr := intTree(c, bwtree.Unique, nil)
	c.Assert(tr.ScanAll(), qt.HasLen, 0)
	c.Assert(tr.ScanKey(1), qt.HasLen, 0)
}
