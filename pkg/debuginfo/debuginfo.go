// Package debuginfo defines the contracts between the symbolication engine
// and the process being symbolicated: backtrace capture, per-address
// lookup, and the compiled-code metadata the runtime publishes alongside
// its definitions. It also ships an in-memory reference store that serves
// recorded metadata, loadable from snapshot files.
package debuginfo

import (
	"github.com/grafana/symtrace/pkg/model"
)

// AddrInfo is one raw tuple of a per-address lookup: the flattened record
// of one frame collapsed at that address.
type AddrInfo struct {
	Func string
	File string
	Line int
	// Ref is the provider's own association for this tuple. It is
	// authoritative only for the outermost tuple of a lookup; the engine
	// re-derives the rest.
	Ref     model.FuncRef
	Native  bool
	Inlined bool
}

// Provider is the per-address debug-info source. Implementations own the
// returned metadata and must keep published tables immutable while lookups
// are in flight.
type Provider interface {
	// LookupAddress returns the frames collapsed at addr, outermost first,
	// or nil when the address cannot be resolved at all.
	LookupAddress(addr uint64) []AddrInfo
	// InlineTable returns the inline line-table recorded for the compiled
	// definition ref points to.
	InlineTable(ref model.FuncRef) (LineTable, bool)
	// RootSet returns the fallback candidate set recorded for the
	// declaration enclosing ref.
	RootSet(ref model.FuncRef) (RootSet, bool)
}

// Backtracer captures raw return addresses from the running process,
// capture site first.
type Backtracer interface {
	Backtrace() []uint64
}

// InlineRecord is one entry of an inline line-table: where a call site
// collapsed by inlining reports to. Ref may be a definition descriptor or
// nil when the record only carried a bare name token.
type InlineRecord struct {
	Func string
	File string
	Line int
	Ref  model.FuncRef
	// InlinedAt is the 1-based index of the record this one was inlined
	// into; 0 means it reports directly to the enclosing definition.
	InlinedAt int
}

// LineTable is the ordered inline line-table of one compiled definition,
// produced once at specialization time and immutable afterwards.
type LineTable []InlineRecord

// RootSet is the candidate-definition fallback for one declaration, used
// when no line-table was recorded.
type RootSet []*model.CompiledFunc
