// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package bitm

import (
	"testing"
	"unsafe"
)

func TestNbit(t *testing.T) {
	for _, x := range [...][2]int{
		{int(unsafe.Sizeof(uint(0))) * 8, (&Bitm[uint]{}).nbit()},
		{int(unsafe.Sizeof(uint8(0))) * 8, (&Bitm[uint8]{}).nbit()},
		{int(unsafe.Sizeof(uint16(0))) * 8, (&Bitm[uint16]{}).nbit()},
		{int(unsafe.Sizeof(uint32(0))) * 8, (&Bitm[uint32]{}).nbit()},
		{int(unsafe.Sizeof(uint64(0))) * 8, (&Bitm[uint64]{}).nbit()},
		{int(unsafe.Sizeof(uintptr(0))) * 8, (&Bitm[uintptr]{}).nbit()},
	} {
		if x[0] != x[1] {
			t.Fatalf("Bitm[T].nbit:\nhave %v\nwant %v", x[0], x[1])
		}
	}
}

func TestZero(t *testing.T) {
	var bitm16 Bitm[uint16]
	if bitm16.m != nil {
		t.Fatalf("bitm16.m:\nhave %v\nwant nil", bitm16.m)
	}
	if n := bitm16.Len(); n != 0 {
		t.Fatalf("bitm16.Len:\nhave %v\nwant 0", n)
	}
	if n := bitm16.Cap(); n != 0 {
		t.Fatalf("bitm16.Cap:\nhave %v\nwant 0", n)
	}
	if _, ok := bitm16.Search(-1); ok {
		t.Fatal("bitm16.Search: unexpected success on empty map")
	}
}

func TestSetUnset(t *testing.T) {
	var m Bitm[uint8]
	if idx := m.Grow(2); idx != 0 {
		t.Fatalf("m.Grow:\nhave %v\nwant 0", idx)
	}
	if n := m.Rem(); n != 16 {
		t.Fatalf("m.Rem:\nhave %v\nwant 16", n)
	}
	for _, i := range [...]int{0, 3, 8, 15} {
		m.Set(i)
		if !m.IsSet(i) {
			t.Fatalf("m.IsSet(%d): have false\nwant true", i)
		}
	}
	// Setting twice has no effect.
	m.Set(3)
	if n := m.Len(); n != 4 {
		t.Fatalf("m.Len:\nhave %v\nwant 4", n)
	}
	m.Unset(3)
	m.Unset(3)
	if m.IsSet(3) {
		t.Fatal("m.IsSet(3): have true\nwant false")
	}
	if n := m.Len(); n != 3 {
		t.Fatalf("m.Len:\nhave %v\nwant 3", n)
	}
	m.Clear()
	if n := m.Len(); n != 0 {
		t.Fatalf("m.Len after Clear:\nhave %v\nwant 0", n)
	}
}

func TestSearch(t *testing.T) {
	var m Bitm[uint8]
	m.Grow(2)
	for i := 0; i < 10; i++ {
		idx, ok := m.Search(-1)
		if !ok || idx != i {
			t.Fatalf("m.Search:\nhave %v, %t\nwant %v, true", idx, ok, i)
		}
		m.Set(idx)
	}
	if _, ok := m.Search(10); ok {
		t.Fatal("m.Search(10): unexpected success")
	}
	m.Unset(4)
	if idx, ok := m.Search(10); !ok || idx != 4 {
		t.Fatalf("m.Search(10):\nhave %v, %t\nwant 4, true", idx, ok)
	}
	for i, n := 0, m.Cap(); i < n; i++ {
		m.Set(i)
	}
	if _, ok := m.Search(-1); ok {
		t.Fatal("m.Search: unexpected success on full map")
	}
}
