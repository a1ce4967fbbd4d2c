// Package coderef replaces raw code addresses with checked handles.
//
// Tables that live in protected memory cannot hold Go func values (the
// collector does not scan that memory), so they hold a Ref instead. A Ref is
// an index into a Registry that startup code fills and then seals.
package coderef

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Ref identifies a registered callable. The zero Ref is unset.
type Ref uint32

// IsSet reports whether r refers to anything.
func (r Ref) IsSet() bool {
	return r != 0
}

var (
	ErrSealed   = errors.New("code registry is sealed")
	ErrConflict = errors.New("name is registered to a different callable")
)

type entry[T any] struct {
	name string
	fn   T
	pc   uintptr
}

// Registry maps Refs to callables of one signature. Once sealed the entries
// never change and Lookup takes no lock.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries []entry[T]
	byName  map[string]Ref
	sealed  atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{byName: make(map[string]Ref)}
}

// Register adds fn under name and returns its Ref. Registering the same
// name again with the same function returns the existing Ref; a different
// function is an ErrConflict.
func (r *Registry[T]) Register(name string, fn T) (Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc := entryPC(fn)
	if ref, ok := r.byName[name]; ok {
		if r.entries[ref-1].pc != pc {
			return 0, fmt.Errorf("register %q: %w", name, ErrConflict)
		}
		return ref, nil
	}
	return r.add(name, fn, pc)
}

// Add always appends a new entry for fn, so two closures built from the
// same literal get distinct Refs. Ref(name) then resolves to the newest.
func (r *Registry[T]) Add(name string, fn T) (Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(name, fn, entryPC(fn))
}

func (r *Registry[T]) add(name string, fn T, pc uintptr) (Ref, error) {
	if r.sealed.Load() {
		return 0, fmt.Errorf("register %q: %w", name, ErrSealed)
	}
	r.entries = append(r.entries, entry[T]{name: name, fn: fn, pc: pc})
	ref := Ref(len(r.entries))
	r.byName[name] = ref
	return ref, nil
}

func entryPC(fn any) uintptr {
	if v := reflect.ValueOf(fn); v.Kind() == reflect.Func && !v.IsNil() {
		return v.Pointer()
	}
	return 0
}

// MustRegister is Register for static startup tables.
func (r *Registry[T]) MustRegister(name string, fn T) Ref {
	ref, err := r.Register(name, fn)
	if err != nil {
		panic(err)
	}
	return ref
}

// Lookup returns the callable for ref.
func (r *Registry[T]) Lookup(ref Ref) (T, bool) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	var zero T
	if ref == 0 || int(ref) > len(r.entries) {
		return zero, false
	}
	return r.entries[ref-1].fn, true
}

// Name returns the registered name of ref, or "" when unset.
func (r *Registry[T]) Name(ref Ref) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref == 0 || int(ref) > len(r.entries) {
		return ""
	}
	return r.entries[ref-1].name
}

// Address returns the entry PC of the callable behind ref, for diagnostics.
func (r *Registry[T]) Address(ref Ref) uintptr {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref == 0 || int(ref) > len(r.entries) {
		return 0
	}
	return r.entries[ref-1].pc
}

// Ref returns the Ref registered under name.
func (r *Registry[T]) Ref(name string) (Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byName[name]
	return ref, ok
}

// Seal forbids further registration.
func (r *Registry[T]) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry[T]) Sealed() bool {
	return r.sealed.Load()
}

// Len returns the number of registered callables.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
