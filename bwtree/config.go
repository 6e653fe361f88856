package bwtree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Mode selects whether a key may be bound to more than one value.
type Mode int

const (
	// Unique rejects an Insert whose key already exists.
	Unique Mode = iota
	// Duplicate allows a key to carry a list of values and rejects only
	// an Insert of a (key, value) pair already present.
	Duplicate
)

// Config holds the BW-tree's construction-time tunables. There is no
// on-disk or environment-variable configuration surface — everything here
// is supplied by the embedding caller at construction.
type Config struct {
	// MaxChainLen is the delta-chain length at which the next structural
	// modification triggers a consolidation attempt.
	MaxChainLen int
	// MaxNodeSize is the key count above which a consolidated node
	// triggers a split attempt.
	MaxNodeSize int
	// MinNodeSize is carried for the (design-only) merge
	// threshold; the tree never triggers a merge itself and does not
	// check MinNodeSize against MaxNodeSize.
	MinNodeSize int
	// EpochInterval is passed through to the garbage collector.
	EpochInterval time.Duration
	// StrictInvariants turns a fatal invariant violation into a
	// panic carrying the wrapped *InvariantError instead of a logged
	// error and a false return. Tests in this module set this to true.
	StrictInvariants bool

	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// DefaultConfig returns the tunables used throughout this package's own
// tests unless a test overrides one: an 8-entry chain-length ceiling and a
// 20-key node-size ceiling.
func DefaultConfig() Config {
	return Config{
		MaxChainLen:   8,
		MaxNodeSize:   20,
		MinNodeSize:   5,
		EpochInterval: 10 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxChainLen <= 0 {
		c.MaxChainLen = 8
	}
	if c.MaxNodeSize <= 0 {
		c.MaxNodeSize = 20
	}
	if c.MinNodeSize <= 0 {
		c.MinNodeSize = c.MaxNodeSize / 4
	}
	if c.EpochInterval <= 0 {
		c.EpochInterval = 10 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
