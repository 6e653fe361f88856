package bwtree

import "github.com/pkg/errors"

// InvariantError reports a structural invariant violation: a
// materialized chain that duplicates a unique key, a delete delta with no
// matching prior insert, or a chain walk that falls off the end without
// reaching a Base. These "can't happen" in a correct run; when
// Config.StrictInvariants is set (as it is in this module's own tests),
// they panic with a wrapped stack instead of being swallowed.
type InvariantError struct {
	Op  string
	err error
}

func (e *InvariantError) Error() string {
	return "bwtree: invariant violation in " + e.Op + ": " + e.err.Error()
}

func (e *InvariantError) Unwrap() error { return e.err }

func newInvariantError(op, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, err: errors.Errorf(format, args...)}
}
