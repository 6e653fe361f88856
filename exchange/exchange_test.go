package exchange_test

import (
	"context"
	"sort"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"

	"github.com/outerbase/bwindex/bwtree"
	"github.com/outerbase/bwindex/exchange"
	"github.com/outerbase/bwindex/internal/bwtreetest"
)

func newTestTree(c *qt.C, n int) *bwtree.Tree[int, int] {
	cfg := bwtree.DefaultConfig()
	cfg.StrictInvariants = true
	cfg.MaxNodeSize = 4
	cfg.MaxChainLen = 3
	tr := bwtree.New[int, int](bwtreetest.Cmp[int](), bwtreetest.Eq[int](), bwtreetest.Eq[int](), bwtree.Unique, cfg)
	c.Cleanup(tr.Close)
	for _, k := range bwtreetest.IntKeys(n, 7) {
		c.Assert(tr.Insert(k, k*10), qt.IsTrue)
	}
	return tr
}

func TestScanMatchesScanAll(t *testing.T) {
	c := qt.New(t)
	tr := newTestTree(c, 200)

	want := tr.ScanAll()
	sort.Ints(want)

	s := exchange.NewScanner[int, int](tr, 0)
	got, err := s.Scan(context.Background(), 8)
	c.Assert(err, qt.IsNil)
	sort.Ints(got)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("exchange scan mismatch (-want +got):\n%s", diff)
	}
}

func TestScanWithMoreWorkersThanLeaves(t *testing.T) {
	c := qt.New(t)
	tr := newTestTree(c, 3)

	s := exchange.NewScanner[int, int](tr, 0)
	got, err := s.Scan(context.Background(), 1000)
	c.Assert(err, qt.IsNil)
	c.Assert(len(got), qt.Equals, 3)
}

func TestScanEmptyTree(t *testing.T) {
	c := qt.New(t)
	cfg := bwtree.DefaultConfig()
	cfg.StrictInvariants = true
	tr := bwtree.New[int, int](bwtreetest.Cmp[int](), bwtreetest.Eq[int](), bwtreetest.Eq[int](), bwtree.Unique, cfg)
	c.Cleanup(tr.Close)

	s := exchange.NewScanner[int, int](tr, 0)
	got, err := s.Scan(context.Background(), 4)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 0)
}

// fakeTree is a minimal exchange.Tree that lets a ScanLeafRange call be
// driven directly: sibling maps a leaf PID to whatever the "live" chain
// currently links after it (0 means no further sibling), independently of
// what LeafPIDs returned earlier. It stands in for a bwtree.Tree whose
// chain has mutated since the leader's LeafPIDs snapshot.
type fakeTree struct {
	leaves  []uint32
	sibling map[uint32]uint32
	values  map[uint32][]int
}

func (f *fakeTree) LeafPIDs() []uint32 { return f.leaves }

func (f *fakeTree) ScanLeafRange(_ context.Context, startPID, stopPID uint32, hasStop bool) ([]int, error) {
	var out []int
	for pid := startPID; pid != 0 && (!hasStop || pid != stopPID); pid = f.sibling[pid] {
		out = append(out, f.values[pid]...)
	}
	return out, nil
}

// TestScanFollowsLiveSiblingAcrossStaleBoundary exercises exactly the
// snapshot-then-mutate sequence: leaves[1] (PID 20) is handed to a worker
// as [20, 30), but by the time that worker scans, PID 20 has split and
// its live sibling chain routes through a new PID 25 the leader's
// LeafPIDs call never saw. Scan must still surface PID 25's values,
// proving it dispatches (start, stop) boundaries for the worker to walk
// live rather than a fixed list of pre-snapshotted PIDs.
func TestScanFollowsLiveSiblingAcrossStaleBoundary(t *testing.T) {
	c := qt.New(t)
	ft := &fakeTree{
		leaves:  []uint32{10, 20, 30, 40},
		sibling: map[uint32]uint32{10: 20, 20: 25, 25: 30, 30: 40, 40: 0},
		values:  map[uint32][]int{10: {1}, 20: {2}, 25: {25}, 30: {3}, 40: {4}},
	}

	s := exchange.NewScanner[int, int](ft, 0)
	got, err := s.Scan(context.Background(), 4)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []int{1, 2, 25, 3, 4})
}
