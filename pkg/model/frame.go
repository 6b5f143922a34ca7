// Package model holds the value types symbolication produces: frames,
// traces and the definition descriptors frames may reference.
package model

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Frame is one reconstructed level of a call chain. Frames describing the
// same logical source location compare equal regardless of the address they
// were derived from or the resolution path that produced their definition
// reference; see Equal.
type Frame struct {
	// Func is the reported function name. Empty means the frame could not
	// be symbolicated at all; it then renders as its raw address.
	Func string
	// File is the reported source path. Empty means unknown or native
	// origin.
	File string
	// Line is the reported source line. -1 means unknown.
	Line int
	// Ref optionally associates the frame with provider-owned definition
	// metadata. It is a borrowed handle, never mutated through the frame.
	Ref FuncRef
	// Native marks frames originating outside the runtime's own compiled
	// code.
	Native bool
	// Inlined marks frames that were inlined into their caller rather than
	// called.
	Inlined bool
	// Address is the raw return address the frame was derived from.
	Address uint64
}

// NewFrame builds a frame from a source location, with the remaining fields
// at their unknown defaults.
func NewFrame(function, file string, line int) Frame {
	return Frame{Func: function, File: file, Line: line}
}

// UnknownFrame is the sentinel for an address the provider cannot resolve
// at all.
func UnknownFrame(addr uint64) Frame {
	return Frame{Line: -1, Native: true, Address: addr}
}

// Equal reports whether two frames describe the same logical source
// location. Ref and Address are resolution artifacts and do not take part.
func (f Frame) Equal(other Frame) bool {
	return f.Line == other.Line &&
		f.Native == other.Native &&
		f.Func == other.Func &&
		f.File == other.File &&
		f.Inlined == other.Inlined
}

// frameHashSalt keeps frame hashes apart from plain digests of the same
// tokens.
const frameHashSalt = 0x965b425fd9386a21

// Hash digests exactly the fields that take part in Equal, so equal frames
// hash identically even when resolved through different code paths.
func (f Frame) Hash() uint64 {
	var buf [8]byte
	d := xxhash.New()
	binary.LittleEndian.PutUint64(buf[:], frameHashSalt)
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(f.Line)))
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(f.File)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(f.Func)
	_, _ = d.Write([]byte{0, flagByte(f.Native), flagByte(f.Inlined)})
	return d.Sum64()
}

func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Label is the function label used for display: the reported name, or the
// raw address token for unresolved frames.
func (f Frame) Label() string {
	if f.Func != "" {
		return f.Func
	}
	return fmt.Sprintf("ip:0x%x", f.Address)
}

// String renders the frame as "<label> at <file>:<line>", with an
// " [inlined]" suffix on inlined frames. A frame without a file renders
// without the "at" clause.
func (f Frame) String() string {
	s := f.Label()
	if f.File != "" {
		s = fmt.Sprintf("%s at %s:%d", s, f.File, f.Line)
	}
	if f.Inlined {
		s += " [inlined]"
	}
	return s
}
