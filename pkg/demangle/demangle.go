// Package demangle maps user-facing demangling mode names to filter
// options for native symbol names.
package demangle

import (
	"github.com/ianlancetaylor/demangle"
)

// Option selects how much of a mangled symbol is reconstructed.
type Option = demangle.Option

var (
	// Simplified keeps only the bare function name.
	Simplified = []Option{demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams}
	// Templates keeps template arguments but drops parameters.
	Templates = []Option{demangle.NoParams, demangle.NoEnclosingParams}
	// Full reconstructs everything except clone suffixes.
	Full = []Option{demangle.NoClones}
)

// Convert maps a mode name to filter options. Unknown modes and "none"
// disable demangling.
func Convert(mode string) []Option {
	switch mode {
	case "simplified":
		return Simplified
	case "templates":
		return Templates
	case "full":
		return Full
	}
	return nil
}

// Filter demangles name if it is a mangled symbol and returns it unchanged
// otherwise.
func Filter(name string, options ...Option) string {
	return demangle.Filter(name, options...)
}
