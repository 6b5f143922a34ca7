package symbolizer

import (
	"context"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"
)

func newTestProfile(addrs ...uint64) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
	}
	mapping := &profile.Mapping{ID: 1, HasFilenames: true, HasLineNumbers: true}
	p.Mapping = []*profile.Mapping{mapping}
	sample := &profile.Sample{Value: []int64{1}}
	for i, addr := range addrs {
		loc := &profile.Location{ID: uint64(i + 1), Mapping: mapping, Address: addr}
		p.Location = append(p.Location, loc)
		sample.Location = append(sample.Location, loc)
	}
	p.Sample = []*profile.Sample{sample}
	return p
}

func TestSymbolizePprof(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	p := newTestProfile(addrInlined, addrPlain, addrPlain)
	require.NoError(t, s.SymbolizePprof(context.Background(), p))

	// The collapsed address expands to three lines, innermost first.
	require.Len(t, p.Location[0].Line, 3)
	require.Equal(t, "expand", p.Location[0].Line[0].Function.Name)
	require.Equal(t, "helper", p.Location[0].Line[1].Function.Name)
	require.Equal(t, "process", p.Location[0].Line[2].Function.Name)
	require.Equal(t, int64(4), p.Location[0].Line[0].Line)

	require.Len(t, p.Location[1].Line, 1)
	require.Equal(t, "main", p.Location[1].Line[0].Function.Name)

	// Functions are shared between locations resolving to the same frame.
	require.Equal(t, p.Location[1].Line[0].Function, p.Location[2].Line[0].Function)
	require.Len(t, p.Function, 4)

	// The declaration line of the compiled definition becomes StartLine.
	require.Equal(t, int64(5), p.Location[0].Line[2].Function.StartLine)

	require.True(t, p.Mapping[0].HasFunctions)
	require.NoError(t, p.CheckValid())
}

func TestSymbolizePprofKeepsExistingLines(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	p := newTestProfile(addrPlain)
	fn := &profile.Function{ID: 1, Name: "already", Filename: "done.go"}
	p.Function = []*profile.Function{fn}
	p.Location[0].Line = []profile.Line{{Function: fn, Line: 1}}

	require.NoError(t, s.SymbolizePprof(context.Background(), p))
	require.Len(t, p.Location[0].Line, 1)
	require.Equal(t, "already", p.Location[0].Line[0].Function.Name)
}

func TestSymbolizePprofUnknownAddress(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	p := newTestProfile(addrUnmapped)
	require.NoError(t, s.SymbolizePprof(context.Background(), p))

	require.Len(t, p.Location[0].Line, 1)
	require.Equal(t, "ip:0xdead", p.Location[0].Line[0].Function.Name)
	require.Equal(t, int64(0), p.Location[0].Line[0].Line)
}

func TestSymbolizePprofCanceled(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProfile(addrPlain)
	require.Error(t, s.SymbolizePprof(ctx, p))
}
