package gather

import (
	"fmt"
	"sync"

	"github.com/c360/gatherd/errors"
)

// Mode selects which telemetry buffer set to read. Servo and phase captures
// are sampled at different control-loop rates and sized independently.
type Mode int

// Buffer set selectors.
const (
	Servo Mode = iota
	Phase
)

// String returns the lowercase set name, matching the protocol commands.
func (m Mode) String() string {
	if m == Phase {
		return "phase"
	}
	return "servo"
}

// Source is a read-only handle on the two gather buffer sets. The two
// methods mirror the two response frames: TypeInfo reads exactly the fields
// a type frame needs and Data exactly the fields a data frame needs, so a
// frame built from one call observes each field once.
//
// Returned slices must not be mutated by callers. Implementations backed by
// live memory may return views that a concurrent writer is still updating.
type Source interface {
	// TypeInfo returns the captured channel count and the per-channel
	// type codes of the selected set.
	TypeInfo(m Mode) (items uint8, types []TypeCode)

	// Data returns the captured row count, machine words per row (multiply
	// by 4 for bytes), and the raw row-major sample bytes of the selected
	// set.
	Data(m Mode) (samples, lineWords uint32, buf []byte)
}

// MemSet holds one in-memory buffer set. Updates swap the whole set under a
// lock, so a MemSet never tears; it stands in for the live region in tests
// and anywhere captures are staged locally.
type MemSet struct {
	mu        sync.RWMutex
	types     []TypeCode
	samples   uint32
	lineWords uint32
	buf       []byte
}

// NewMemSet builds a set after checking the buffer-set invariants: at most
// 255 channels and a buffer of exactly lineWords*4*samples bytes.
func NewMemSet(types []TypeCode, lineWords, samples uint32, buf []byte) (*MemSet, error) {
	s := &MemSet{}
	if err := s.Update(types, lineWords, samples, buf); err != nil {
		return nil, err
	}
	return s, nil
}

// Update atomically replaces the set's contents, enforcing the same
// invariants as NewMemSet.
func (s *MemSet) Update(types []TypeCode, lineWords, samples uint32, buf []byte) error {
	if len(types) > 255 {
		return errors.WrapInvalid(fmt.Errorf("%d channels exceeds uint8 item count", len(types)),
			"MemSet", "Update", "channel count validation")
	}
	if want := int(lineWords) * 4 * int(samples); len(buf) != want {
		return errors.WrapInvalid(
			fmt.Errorf("buffer is %d bytes, want lineWords*4*samples = %d", len(buf), want),
			"MemSet", "Update", "buffer length validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append([]TypeCode(nil), types...)
	s.samples = samples
	s.lineWords = lineWords
	s.buf = append([]byte(nil), buf...)
	return nil
}

func (s *MemSet) typeInfo() (uint8, []TypeCode) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint8(len(s.types)), append([]TypeCode(nil), s.types...)
}

func (s *MemSet) data() (uint32, uint32, []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples, s.lineWords, s.buf
}

// MemSource is a process-local Source backed by two MemSets.
type MemSource struct {
	servo *MemSet
	phase *MemSet
}

// NewMemSource builds a source from two sets. Nil sets are replaced with
// empty ones, so a source for a single-set test stays valid for both modes.
func NewMemSource(servo, phase *MemSet) *MemSource {
	if servo == nil {
		servo = &MemSet{}
	}
	if phase == nil {
		phase = &MemSet{}
	}
	return &MemSource{servo: servo, phase: phase}
}

func (s *MemSource) set(m Mode) *MemSet {
	if m == Phase {
		return s.phase
	}
	return s.servo
}

// TypeInfo implements Source.
func (s *MemSource) TypeInfo(m Mode) (uint8, []TypeCode) {
	return s.set(m).typeInfo()
}

// Data implements Source.
func (s *MemSource) Data(m Mode) (uint32, uint32, []byte) {
	return s.set(m).data()
}
