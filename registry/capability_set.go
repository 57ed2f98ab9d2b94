package registry

import (
	"hash/fnv"

	"github.com/bits-and-blooms/bitset"
)

// CapabilitySet is a compact bitset of declared algorithm/model support:
// a job requiring a set of algorithms is only eligible for providers whose
// declared support is a superset of it.
type CapabilitySet struct {
	bits *bitset.BitSet
}

// algoBit deterministically maps an algorithm/model name onto a bit index,
// so operators never need to coordinate a shared id table.
func algoBit(name string) uint {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return uint(h.Sum32() % 4096)
}

// NewCapabilitySet builds a set from algorithm/model names.
func NewCapabilitySet(names ...string) CapabilitySet {
	b := bitset.New(4096)
	for _, n := range names {
		b.Set(algoBit(n))
	}
	return CapabilitySet{bits: b}
}

// Contains reports whether name's bit is set.
func (s CapabilitySet) Contains(name string) bool {
	if s.bits == nil {
		return false
	}
	return s.bits.Test(algoBit(name))
}

// IsSubsetOf reports whether every bit in s is also set in other — i.e.
// whether this (required) set is satisfied by other's (declared) support.
func (s CapabilitySet) IsSubsetOf(other CapabilitySet) bool {
	if s.bits == nil {
		return true
	}
	if other.bits == nil {
		return s.bits.None()
	}
	return other.bits.IsSuperSet(s.bits)
}
