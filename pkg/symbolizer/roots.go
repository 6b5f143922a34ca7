package symbolizer

import (
	"github.com/grafana/symtrace/pkg/debuginfo"
	"github.com/grafana/symtrace/pkg/model"
)

// matchRootSet is the fallback when the enclosing definition recorded no
// line table: it searches the declaration's candidate specializations for
// ones declared under the target name and file.
//
// One match settles the frame. Multiple matches collapse to any one when
// they are redundant specializations of the same declaration site, degrade
// to the shared enclosing module when only the scope agrees, and resolve
// to nothing when genuinely distinct same-named definitions remain. The
// matcher never guesses among those.
func matchRootSet(roots debuginfo.RootSet, funcName, file string) model.FuncRef {
	var matched []*model.CompiledFunc
	for _, fn := range roots {
		decl := fn.Decl
		if decl == nil {
			continue
		}
		if decl.Name == funcName && sameFile(decl.File, file) {
			matched = append(matched, fn)
		}
	}
	switch len(matched) {
	case 0:
		return nil
	case 1:
		return matched[0]
	}

	first := matched[0].Decl
	sameLine, sameModule := true, true
	for _, fn := range matched[1:] {
		if fn.Decl.Line != first.Line {
			sameLine = false
		}
		if fn.Decl.Module != first.Module {
			sameModule = false
		}
	}
	switch {
	case sameLine && sameModule:
		return matched[0]
	case sameModule && first.Module != nil:
		return first.Module
	}
	return nil
}
