package model

import (
	"encoding/hex"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// SeatSet is a fixed-size bitmap over seats 1..capacity. Bit i-1 is seat
// i. The zero value is an empty set of capacity 0.
type SeatSet struct {
	capacity int
	bits     *bitset.BitSet
}

func NewSeatSet(capacity int) SeatSet {
	if capacity < 0 {
		capacity = 0
	}
	return SeatSet{capacity: capacity, bits: bitset.New(uint(capacity))}
}

func (s SeatSet) Capacity() int { return s.capacity }

func (s SeatSet) inBounds(seat int) bool { return seat >= 1 && seat <= s.capacity }

// set never hands out nil, so the zero value behaves as an empty set.
func (s SeatSet) set() *bitset.BitSet {
	if s.bits == nil {
		return bitset.New(0)
	}
	return s.bits
}

// Has reports membership; out-of-range seats are never members.
func (s SeatSet) Has(seat int) bool {
	return s.inBounds(seat) && s.bits.Test(uint(seat-1))
}

// Add returns true when the seat was not already present.
func (s *SeatSet) Add(seat int) bool {
	if !s.inBounds(seat) || s.Has(seat) {
		return false
	}
	s.bits.Set(uint(seat - 1))
	return true
}

// Remove returns true when the seat was present.
func (s *SeatSet) Remove(seat int) bool {
	if !s.Has(seat) {
		return false
	}
	s.bits.Clear(uint(seat - 1))
	return true
}

func (s *SeatSet) Clear() {
	if s.bits != nil {
		s.bits.ClearAll()
	}
}

func (s SeatSet) Len() int { return int(s.set().Count()) }

// Intersects reports whether the two sets share a seat.
func (s SeatSet) Intersects(other SeatSet) bool {
	return s.set().IntersectionCardinality(other.set()) > 0
}

// Union returns a new set sized to the larger capacity.
func (s SeatSet) Union(other SeatSet) SeatSet {
	return SeatSet{capacity: max(s.capacity, other.capacity), bits: s.set().Union(other.set())}
}

// Members lists seats in ascending order.
func (s SeatSet) Members() []int {
	b := s.set()
	out := make([]int, 0, b.Count())
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, int(i)+1)
	}
	return out
}

func (s SeatSet) Clone() SeatSet {
	return SeatSet{capacity: s.capacity, bits: s.set().Clone()}
}

// Encode serializes the bitmap as hex, one byte per eight seats, seat 1
// in the low bit of the first byte.
func (s SeatSet) Encode() string {
	buf := make([]byte, (s.capacity+7)/8)
	for _, seat := range s.Members() {
		i := seat - 1
		buf[i/8] |= 1 << (uint(i) % 8)
	}
	return hex.EncodeToString(buf)
}

// DecodeSeatSet is the inverse of Encode. Bits beyond capacity are rejected.
func DecodeSeatSet(capacity int, encoded string) (SeatSet, error) {
	s := NewSeatSet(capacity)
	if encoded == "" {
		return s, nil
	}
	buf, err := hex.DecodeString(encoded)
	if err != nil {
		return SeatSet{}, fmt.Errorf("decode seat set: %w", err)
	}
	if len(buf) > (capacity+7)/8 {
		return SeatSet{}, fmt.Errorf("decode seat set: %d bytes exceed capacity %d", len(buf), capacity)
	}
	for i, b := range buf {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			if !s.Add(i*8 + bit + 1) {
				return SeatSet{}, fmt.Errorf("decode seat set: seat beyond capacity %d", capacity)
			}
		}
	}
	return s, nil
}

// SeatSetOf builds a set from explicit members, rejecting out-of-range seats.
func SeatSetOf(capacity int, seats ...int) (SeatSet, error) {
	s := NewSeatSet(capacity)
	for _, n := range seats {
		if !s.inBounds(n) {
			return SeatSet{}, SeatNotAvailableError{Seat: n}
		}
		s.Add(n)
	}
	return s, nil
}

// MarshalText implements encoding.TextMarshaler with the Encode format.
func (s SeatSet) MarshalText() ([]byte, error) { return []byte(s.Encode()), nil }

// UnmarshalText decodes into the receiver's current capacity, so the set
// must be sized with NewSeatSet first.
func (s *SeatSet) UnmarshalText(text []byte) error {
	decoded, err := DecodeSeatSet(s.capacity, string(text))
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
