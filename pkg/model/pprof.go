package model

import (
	"github.com/google/pprof/profile"
)

// TraceProfile converts a symbolized trace into a pprof profile with a
// single sample, so standard pprof tooling can consume captured stacks. A
// run of inlined frames folds into the location of the real frame that
// terminates it, innermost line first, matching how pprof encodes inlining.
func TraceProfile(t Trace) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "stack", Unit: "count"}},
	}
	if len(t) == 0 {
		return p
	}

	mapping := &profile.Mapping{
		ID:              1,
		HasFunctions:    true,
		HasFilenames:    true,
		HasLineNumbers:  true,
		HasInlineFrames: true,
	}
	p.Mapping = []*profile.Mapping{mapping}

	functions := make(map[string]*profile.Function)
	functionFor := func(f Frame) *profile.Function {
		key := f.Label() + "\x00" + f.File
		if fn, ok := functions[key]; ok {
			return fn
		}
		fn := &profile.Function{
			ID:       uint64(len(p.Function) + 1),
			Name:     f.Label(),
			Filename: f.File,
		}
		switch ref := f.Ref.(type) {
		case *FuncDecl:
			fn.StartLine = int64(ref.Line)
		case *CompiledFunc:
			if ref.Decl != nil {
				fn.StartLine = int64(ref.Decl.Line)
			}
		}
		p.Function = append(p.Function, fn)
		functions[key] = fn
		return fn
	}

	sample := &profile.Sample{Value: []int64{1}}
	flush := func(frames []Frame) {
		if len(frames) == 0 {
			return
		}
		lines := make([]profile.Line, len(frames))
		for i, f := range frames {
			line := int64(f.Line)
			if line < 0 {
				line = 0
			}
			lines[i] = profile.Line{Function: functionFor(f), Line: line}
		}
		loc := &profile.Location{
			ID:      uint64(len(p.Location) + 1),
			Mapping: mapping,
			Address: frames[len(frames)-1].Address,
			Line:    lines,
		}
		p.Location = append(p.Location, loc)
		sample.Location = append(sample.Location, loc)
	}

	start := 0
	for i, f := range t {
		if f.Inlined {
			continue
		}
		flush(t[start : i+1])
		start = i + 1
	}
	// A trailing run of inlined frames, possible after native filtering
	// removed their real frame, still becomes a location.
	flush(t[start:])

	p.Sample = []*profile.Sample{sample}
	return p
}
