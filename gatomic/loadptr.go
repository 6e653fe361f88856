// Package gatomic provides a generic CAS-able pointer field for plain struct
// fields, the way a hand-written atomic.Pointer[T] would look before that
// type existed. Every CAS-based linked structure in this module (the PID
// table's retired-PID stack, the garbage collector's epoch list) stores its
// CAS-updated head fields as a Ptr[T] instead of guarding a raw pointer with
// a lock.
package gatomic

import (
	"sync/atomic"
	"unsafe"
)

// Ptr is an atomically-accessed pointer to a T. The zero value holds a nil
// pointer and is ready to use; callers never touch the underlying
// unsafe.Pointer directly.
type Ptr[T any] struct {
	p unsafe.Pointer
}

// Load returns the pointer currently held.
func (a *Ptr[T]) Load() *T {
	return (*T)(atomic.LoadPointer(&a.p))
}

// Store unconditionally replaces the held pointer.
func (a *Ptr[T]) Store(val *T) {
	atomic.StorePointer(&a.p, unsafe.Pointer(val))
}

// CompareAndSwap replaces the held pointer with new only if it is currently
// old, reporting whether the swap happened. This is the linearisation point
// for every Treiber-stack push/pop and epoch-list advance in this module.
func (a *Ptr[T]) CompareAndSwap(old, new *T) bool {
	return atomic.CompareAndSwapPointer(&a.p, unsafe.Pointer(old), unsafe.Pointer(new))
}
