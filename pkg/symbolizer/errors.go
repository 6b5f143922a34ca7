package symbolizer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/grafana/symtrace/pkg/model"
)

// ErrNoBacktracer is returned by CaptureTrace when the symbolizer was built
// without a backtrace source.
var ErrNoBacktracer = errors.New("symbolizer: no backtracer configured")

// badRecordIndexError reports an inlining record whose parent index points
// outside its own table.
type badRecordIndexError struct {
	index int
	size  int
}

func (e *badRecordIndexError) Error() string {
	return fmt.Sprintf("inline record parent %d out of range (table size %d)", e.index, e.size)
}

// badRefError reports a definition reference of a dynamic type the resolver
// does not recognize.
type badRefError struct {
	ref model.FuncRef
}

func (e *badRefError) Error() string {
	return fmt.Sprintf("unrecognized definition reference %T", e.ref)
}

// isCorruptMetadata tells transient per-address failures apart from
// programming errors: corrupt metadata degrades a single address to an
// unknown frame instead of failing the whole lookup.
func isCorruptMetadata(err error) bool {
	var badIndex *badRecordIndexError
	if errors.As(err, &badIndex) {
		return true
	}
	var badRef *badRefError
	return errors.As(err, &badRef)
}
