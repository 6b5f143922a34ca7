package symbolizer

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// Function and file names repeat heavily across addresses of the same
// trace. Interning keeps one canonical copy per process so resolved frames
// share backing storage instead of pinning per-lookup buffers.
var interned = xsync.NewMapOf[string, string]()

func intern(s string) string {
	if s == "" {
		return ""
	}
	v, _ := interned.LoadOrCompute(s, func() string {
		return strings.Clone(s)
	})
	return v
}
