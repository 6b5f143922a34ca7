package model

import (
	"strings"

	"github.com/samber/lo"
)

// Trace is an ordered sequence of frames, innermost call first. It is
// mutable during assembly; once handed to a caller it is treated as a
// snapshot of the stack at capture time.
type Trace []Frame

// Trim removes the last frame whose function name matches one of the
// markers, together with every frame before it. It cuts the symbolication
// machinery out of a captured trace so the result starts at the caller's
// own first frame. Without a matching marker the trace is returned
// unchanged.
func (t Trace) Trim(markers ...string) Trace {
	last := -1
	for i, f := range t {
		for _, m := range markers {
			if f.Func == m {
				last = i
				break
			}
		}
	}
	return t[last+1:]
}

// FilterModule removes every frame whose resolved enclosing module is m,
// preserving the order of the rest. Filtering twice with the same module
// changes nothing.
func (t Trace) FilterModule(m *Module) Trace {
	if m == nil {
		return t
	}
	out := t[:0]
	for _, f := range t {
		if EnclosingModule(f.Ref) != m {
			out = append(out, f)
		}
	}
	return out
}

// Strings renders one display line per frame, innermost first.
func (t Trace) Strings() []string {
	return lo.Map(t, func(f Frame, _ int) string { return f.String() })
}

// String renders the trace with one frame per line.
func (t Trace) String() string {
	return strings.Join(t.Strings(), "\n")
}
