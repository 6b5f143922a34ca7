package symbolizer

import (
	"strings"

	"github.com/grafana/symtrace/pkg/debuginfo"
	"github.com/grafana/symtrace/pkg/model"
)

// matchLineTable assigns a flattened inlined frame back to the definition
// it came from. The table lists where every call site collapsed into the
// enclosing compiled definition reports to; a record matches when it
// reports the target function, file and line.
//
// A matching record that carries a compiled specialization settles the
// frame. A record carrying only a declaration or a bare name token is
// upgraded by backtracking, and failing that kept as a fallback while the
// scan continues: a later match that does carry a specialization wins.
func matchLineTable(table debuginfo.LineTable, funcName, file string, line int) (model.FuncRef, error) {
	var (
		best         model.FuncRef
		haveBest     bool
		haveConcrete bool
	)
	for i := range table {
		rec := &table[i]
		if rec.InlinedAt < 0 || rec.InlinedAt > len(table) {
			return nil, &badRecordIndexError{index: rec.InlinedAt, size: len(table)}
		}
		if rec.Line != line || rec.Func != funcName || !sameFile(rec.File, file) {
			continue
		}
		if model.Kind(rec.Ref) == model.RefConcrete {
			best = rec.Ref
			haveBest, haveConcrete = true, true
			continue
		}
		if haveConcrete {
			continue
		}
		if up, ok := backtrack(table, i); ok {
			best = up
			haveBest, haveConcrete = true, true
			continue
		}
		if !haveBest {
			best = rec.Ref
			haveBest = true
		}
	}
	return best, nil
}

// backtrack walks the records preceding table[i] in reverse. Records that
// report the same function and file and share the same inlining target
// form one expansion chain, and an earlier chain member may carry the
// compiled specialization the matched record lost. The walk stops at the
// first record outside the chain.
func backtrack(table debuginfo.LineTable, i int) (model.FuncRef, bool) {
	rec := &table[i]
	for j := i - 1; j >= 0; j-- {
		prev := &table[j]
		if prev.InlinedAt != rec.InlinedAt || prev.Func != rec.Func || !sameFile(prev.File, rec.File) {
			break
		}
		if model.Kind(prev.Ref) == model.RefConcrete {
			return prev.Ref, true
		}
	}
	return nil, false
}

// Producers are inconsistent about leading path separators, so files also
// compare equal modulo a stripped prefix.
func sameFile(a, b string) bool {
	if a == b {
		return true
	}
	return strings.TrimLeft(a, `/\`) == strings.TrimLeft(b, `/\`)
}
