// Package gc implements epoch-based reclamation for the BW-tree: a
// latch-free singly-linked list of epochs, each carrying its own
// CAS-prepended list of retired node chains and retired PIDs. A background
// daemon advances the epoch list on a fixed interval and reclaims epochs
// oldest first, for as long as each one's registered-thread count has
// dropped to zero.
//
// Go's own garbage collector already owns memory safety for retired node
// chains — nothing here can dangle or double-free. What this package
// still has to get right is PID reuse: a PID
// freed back to the pidtable before every in-flight reader that might
// resolve it has departed would let two unrelated node chains alias the
// same logical identity. Reclaim's job is therefore really "don't call
// pidtable.Free too early"; walking and freeing the node-chain list is kept
// anyway as a hook tests and metrics can observe.
package gc

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/outerbase/bwindex/gatomic"
	"github.com/outerbase/bwindex/pidtable"
)

// EpochTime identifies an epoch in registration order.
type EpochTime = uint64

type garbageEntry[T any] struct {
	next  *garbageEntry[T]
	chain T
}

type pidEntry struct {
	next *pidEntry
	pid  pidtable.PID
}

type epoch[T any] struct {
	next       *epoch[T] // immutable once linked; set before publication, never written again
	time       EpochTime
	registered atomic.Int32
	garbage    gatomic.Ptr[garbageEntry[T]]
	pids       gatomic.Ptr[pidEntry]
}

func (e *epoch[T]) submitGarbage(g *garbageEntry[T]) bool {
	head := e.garbage.Load()
	g.next = head
	return e.garbage.CompareAndSwap(head, g)
}

func (e *epoch[T]) submitPID(p *pidEntry) bool {
	head := e.pids.Load()
	p.next = head
	return e.pids.CompareAndSwap(head, p)
}

func (e *epoch[T]) safeToReclaim() bool {
	return e.registered.Load() == 0
}

// Config tunes the collector's daemon cadence and diagnostics.
type Config struct {
	// EpochInterval is how often the daemon mints a new epoch and sweeps
	// for reclaimable ones. Defaults to 10ms if zero.
	EpochInterval time.Duration
	Logger        *zap.Logger
	Metrics       *Metrics
}

func (c Config) withDefaults() Config {
	if c.EpochInterval <= 0 {
		c.EpochInterval = 10 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Collector is a generic epoch-based garbage collector. T is the type of
// garbage payload submitted through SubmitNode — for the BW-tree this is
// the head of a retired node-chain.
type Collector[T any] struct {
	cfg     Config
	free    func(T)
	release func(pidtable.PID)

	head     gatomic.Ptr[epoch[T]] // mutated only by the daemon
	timerSeq atomic.Uint64

	stopC chan struct{}
	doneC chan struct{}
}

// New starts a collector and its background daemon. free is called once per
// retired chain once it is safe to reclaim (advisory — see the package
// doc); release returns a retired PID to the PID table's free stack and is
// the operation that is actually safety-critical.
func New[T any](cfg Config, free func(T), release func(pidtable.PID)) *Collector[T] {
	cfg = cfg.withDefaults()
	c := &Collector[T]{
		cfg:     cfg,
		free:    free,
		release: release,
		stopC:   make(chan struct{}),
		doneC:   make(chan struct{}),
	}
	first := &epoch[T]{time: c.timerSeq.Add(1) - 1}
	c.head.Store(first)
	go c.daemon()
	return c
}

// Register joins the current epoch and returns its time, to be passed back
// to Deregister once the caller is done traversing.
func (c *Collector[T]) Register() EpochTime {
	for {
		head := c.head.Load()
		head.registered.Add(1)
		if c.head.Load() == head {
			return head.time
		}
		// The daemon moved past head before the increment landed and may
		// already have reclaimed it; join the new head instead.
		head.registered.Add(-1)
	}
}

// Deregister leaves the epoch identified by time, which must have come from
// a prior Register call on this collector.
func (c *Collector[T]) Deregister(t EpochTime) {
	for e := c.head.Load(); e != nil; e = e.next {
		if e.time == t {
			e.registered.Add(-1)
			return
		}
	}
	panic("gc: Deregister called with an epoch time that is no longer in the list")
}

// SubmitNode retires a node chain into the current epoch's garbage list.
// It will be freed once every registrant of that epoch has departed.
func (c *Collector[T]) SubmitNode(chain T) {
	g := &garbageEntry[T]{chain: chain}
	for {
		head := c.head.Load()
		if head.submitGarbage(g) {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.pendingGarbage.Inc()
			}
			return
		}
	}
}

// SubmitPID retires a PID into the current epoch's PID list. It is returned
// to the PID table's free stack once every registrant of that epoch has
// departed.
func (c *Collector[T]) SubmitPID(pid pidtable.PID) {
	p := &pidEntry{pid: pid}
	for {
		head := c.head.Load()
		if head.submitPID(p) {
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.pendingPIDs.Inc()
			}
			return
		}
	}
}

func (c *Collector[T]) daemon() {
	defer close(c.doneC)
	ticker := time.NewTicker(c.cfg.EpochInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopC:
			c.reclaim() // one last sweep; anything still pending just leaks until process exit
			return
		case <-ticker.C:
			c.advanceEpoch()
			c.reclaim()
		}
	}
}

func (c *Collector[T]) advanceEpoch() {
	old := c.head.Load()
	next := &epoch[T]{next: old, time: c.timerSeq.Add(1) - 1}
	if !c.head.CompareAndSwap(old, next) {
		// The daemon is the only writer of c.head, so this branch is
		// unreachable in practice; tolerate it defensively rather than
		// assume it.
		return
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.epoch.Set(float64(next.time))
	}
	c.cfg.Logger.Debug("gc: advanced epoch", zap.Uint64("epoch", next.time))
}

// reclaim scans the epoch list past the current head (which is still
// accepting registrations and garbage and is never reclaimed here). The list
// runs newest to oldest, so the reclaimable part is its tail: every epoch
// older than the newest one that still has registrants. An epoch is thus
// reclaimed only once it and every older epoch have zero registrants. Once
// an epoch drops to zero registrants it can never gain one again — Register
// only keeps an increment on the current head, which has already moved past
// it — so the reclaimed tail is unlinked from the list entirely rather than
// merely marked, keeping the list from growing for the life of the process.
func (c *Collector[T]) reclaim() {
	head := c.head.Load()
	keep := head
	for e := head.next; e != nil; e = e.next {
		if !e.safeToReclaim() {
			keep = e
		}
	}
	reclaimed := 0
	for cur := keep.next; cur != nil; cur = cur.next {
		c.reclaimEpoch(cur)
		reclaimed++
	}
	keep.next = nil
	c.logReclaimed(reclaimed)
}

func (c *Collector[T]) logReclaimed(n int) {
	if n > 0 {
		c.cfg.Logger.Debug("gc: reclaimed epochs", zap.Int("count", n))
	}
}

func (c *Collector[T]) reclaimEpoch(e *epoch[T]) {
	for g := e.garbage.Load(); g != nil; {
		next := g.next
		c.free(g.chain)
		g.next = nil
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.pendingGarbage.Dec()
			c.cfg.Metrics.reclaimedGarbage.Inc()
		}
		g = next
	}
	for p := e.pids.Load(); p != nil; {
		next := p.next
		c.release(p.pid)
		p.next = nil
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.pendingPIDs.Dec()
			c.cfg.Metrics.reclaimedPIDs.Inc()
		}
		p = next
	}
	e.garbage.Store(nil)
	e.pids.Store(nil)
}

// Stop halts the daemon and performs a final reclamation sweep. Anything
// still registered at the time Stop is called will not be reclaimed by
// this call; callers should ensure every caller of Register has called
// Deregister before calling Stop in tests that assert full reclamation.
func (c *Collector[T]) Stop() {
	close(c.stopC)
	<-c.doneC
}

// PendingEpoch reports the current epoch time, mostly useful for tests
// polling for epoch advancement with the poller package.
func (c *Collector[T]) PendingEpoch() EpochTime {
	return c.head.Load().time
}
