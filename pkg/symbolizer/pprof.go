package symbolizer

import (
	"context"

	"github.com/google/pprof/profile"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/symtrace/pkg/model"
)

type funcKey struct {
	name string
	file string
}

// SymbolizePprof fills in function and line information for every location
// of the profile that has none. Addresses are resolved concurrently with a
// concurrency limit; the profile itself is only mutated after all
// resolutions finished.
func (s *Symbolizer) SymbolizePprof(ctx context.Context, p *profile.Profile) error {
	var todo []*profile.Location
	for _, loc := range p.Location {
		if loc == nil || len(loc.Line) > 0 {
			continue
		}
		todo = append(todo, loc)
	}
	if len(todo) == 0 {
		return nil
	}

	resolved := make([][]model.Frame, len(todo))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency())
	for i, loc := range todo {
		i, loc := i, loc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resolved[i] = s.Lookup(loc.Address)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	functions := make(map[funcKey]*profile.Function, len(p.Function))
	var maxFuncID uint64
	for _, fn := range p.Function {
		if fn.ID > maxFuncID {
			maxFuncID = fn.ID
		}
		functions[funcKey{name: fn.Name, file: fn.Filename}] = fn
	}

	for i, loc := range todo {
		frames := resolved[i]
		// Lookup returns frames innermost first, which is also the pprof
		// line order within a location.
		loc.Line = make([]profile.Line, len(frames))
		for j, frame := range frames {
			key := funcKey{name: frame.Label(), file: frame.File}
			fn, ok := functions[key]
			if !ok {
				maxFuncID++
				fn = &profile.Function{
					ID:         maxFuncID,
					Name:       key.name,
					SystemName: frame.Func,
					Filename:   frame.File,
					StartLine:  declStartLine(frame.Ref),
				}
				p.Function = append(p.Function, fn)
				functions[key] = fn
			}
			line := int64(frame.Line)
			if line < 0 {
				line = 0
			}
			loc.Line[j] = profile.Line{Function: fn, Line: line}
		}
		if loc.Mapping != nil {
			loc.Mapping.HasFunctions = true
		}
	}
	return nil
}

func (s *Symbolizer) maxConcurrency() int {
	if s.cfg.MaxConcurrency > 0 {
		return s.cfg.MaxConcurrency
	}
	return 8
}

func declStartLine(ref model.FuncRef) int64 {
	switch v := ref.(type) {
	case *model.FuncDecl:
		return int64(v.Line)
	case *model.CompiledFunc:
		if v.Decl != nil {
			return int64(v.Decl.Line)
		}
	}
	return 0
}
