// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitm defines a bitmap type useful for tracking
// ownership of small pools of resources (e.g., which
// presentation images are held by whom).
package bitm

import (
	"math/bits"
	"unsafe"
)

// Uint represents the granularity of a bitmap.
type Uint interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Bitm is a growable bitmap with custom granularity.
// The zero value is an empty bitmap.
type Bitm[T Uint] struct {
	m   []T
	rem int
}

// nbit returns the number of bits in T.
func (m *Bitm[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// Len returns the number of bits set in the map.
func (m *Bitm[_]) Len() int { return len(m.m)*m.nbit() - m.rem }

// Cap returns the number of bits in the map.
func (m *Bitm[_]) Cap() int { return len(m.m) * m.nbit() }

// Rem returns the number of unset bits in the map.
func (m *Bitm[_]) Rem() int { return m.rem }

// Grow appends n unset Uints to the map.
// It returns the value of m.Cap prior to growing.
func (m *Bitm[T]) Grow(n int) (index int) {
	index = m.Cap()
	if n > 0 {
		m.rem += n * m.nbit()
		m.m = append(m.m, make([]T, n)...)
	}
	return
}

// Set sets a given bit.
func (m *Bitm[T]) Set(index int) {
	n := m.nbit()
	i := index / n
	b := T(1) << (index % n)
	if m.m[i]&b == 0 {
		m.m[i] |= b
		m.rem--
	}
}

// Unset unsets a given bit.
func (m *Bitm[T]) Unset(index int) {
	n := m.nbit()
	i := index / n
	b := T(1) << (index % n)
	if m.m[i]&b != 0 {
		m.m[i] &^= b
		m.rem++
	}
}

// IsSet checks whether a given bit is set.
func (m *Bitm[T]) IsSet(index int) bool {
	n := m.nbit()
	return m.m[index/n]&(T(1)<<(index%n)) != 0
}

// Search locates the first unset bit whose index is
// less than limit.
// A negative limit means the whole map.
func (m *Bitm[T]) Search(limit int) (index int, ok bool) {
	if m.rem == 0 {
		return
	}
	if limit < 0 || limit > m.Cap() {
		limit = m.Cap()
	}
	n := m.nbit()
	for i, x := range m.m {
		if x == ^T(0) {
			continue
		}
		index = i*n + bits.TrailingZeros64(uint64(^x))
		ok = index < limit
		return
	}
	return
}

// Clear unsets every bit in the map.
func (m *Bitm[T]) Clear() {
	clear(m.m)
	m.rem = m.Cap()
}
