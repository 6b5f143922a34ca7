package symbolizer

import (
	"flag"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/grafana/symtrace/pkg/debuginfo"
	"github.com/grafana/symtrace/pkg/model"
)

const (
	addrInlined  = 0x100 // process with two frames inlined into it
	addrNative   = 0x200 // native library frame
	addrPlain    = 0x300 // single frame, no inlining
	addrRoots    = 0x400 // enclosing definition without a line table
	addrCorrupt  = 0x500 // line table with an out-of-range parent index
	addrBadRef   = 0x600 // tuple carrying a reference of a foreign type
	addrMangled  = 0x700 // native frame with a mangled symbol
	addrUnmapped = 0xdead
)

type foreignRef struct{ model.FuncRef }

type fixture struct {
	store *debuginfo.Store

	app       *model.Module
	processFn *model.CompiledFunc
	helperFn  *model.CompiledFunc
	mainFn    *model.CompiledFunc
	runFn     *model.CompiledFunc
	stepFn    *model.CompiledFunc
}

func newFixture() *fixture {
	store := debuginfo.NewStore()
	app := store.Module("app")

	f := &fixture{store: store, app: app}

	processDecl := &model.FuncDecl{Name: "process", Module: app, File: "src/process.go", Line: 5}
	helperDecl := &model.FuncDecl{Name: "helper", Module: app, File: "src/process.go", Line: 30}
	f.processFn = &model.CompiledFunc{Decl: processDecl}
	f.helperFn = &model.CompiledFunc{Decl: helperDecl}

	// Two call sites were collapsed into process: helper, and a macro
	// expansion inlined into helper's record that kept only its name.
	store.SetLineTable(f.processFn, debuginfo.LineTable{
		{Func: "helper", File: "src/process.go", Line: 32, Ref: f.helperFn, InlinedAt: 0},
		{Func: "expand", File: "src/macros.go", Line: 4, Ref: nil, InlinedAt: 1},
	})
	store.MapAddress(addrInlined,
		debuginfo.AddrInfo{Func: "process", File: "src/process.go", Line: 8, Ref: f.processFn},
		debuginfo.AddrInfo{Func: "helper", File: "src/process.go", Line: 32, Inlined: true},
		debuginfo.AddrInfo{Func: "expand", File: "src/macros.go", Line: 4, Inlined: true},
	)

	store.MapAddress(addrNative,
		debuginfo.AddrInfo{Func: "memcpy", File: "string.c", Line: 120, Native: true},
	)

	mainDecl := &model.FuncDecl{Name: "main", Module: app, File: "src/main.go", Line: 3}
	f.mainFn = &model.CompiledFunc{Decl: mainDecl}
	store.MapAddress(addrPlain,
		debuginfo.AddrInfo{Func: "main", File: "src/main.go", Line: 10, Ref: f.mainFn},
	)

	// run recorded no line table; step is found through run's root set.
	runDecl := &model.FuncDecl{Name: "run", Module: app, File: "src/run.go", Line: 2}
	stepDecl := &model.FuncDecl{Name: "step", Module: app, File: "src/run.go", Line: 14}
	f.runFn = &model.CompiledFunc{Decl: runDecl}
	f.stepFn = &model.CompiledFunc{Decl: stepDecl}
	store.SetRootSet(runDecl, debuginfo.RootSet{f.stepFn})
	store.MapAddress(addrRoots,
		debuginfo.AddrInfo{Func: "run", File: "src/run.go", Line: 6, Ref: f.runFn},
		debuginfo.AddrInfo{Func: "step", File: "src/run.go", Line: 15, Inlined: true},
	)

	brokenDecl := &model.FuncDecl{Name: "broken", Module: app, File: "src/broken.go", Line: 1}
	brokenFn := &model.CompiledFunc{Decl: brokenDecl}
	store.SetLineTable(brokenFn, debuginfo.LineTable{
		{Func: "x", File: "src/broken.go", Line: 2, Ref: nil, InlinedAt: 9},
	})
	store.MapAddress(addrCorrupt,
		debuginfo.AddrInfo{Func: "broken", File: "src/broken.go", Line: 3, Ref: brokenFn},
		debuginfo.AddrInfo{Func: "x", File: "src/broken.go", Line: 2, Inlined: true},
	)

	store.MapAddress(addrBadRef,
		debuginfo.AddrInfo{Func: "weird", File: "w.go", Line: 1, Ref: foreignRef{}},
	)

	store.MapAddress(addrMangled,
		debuginfo.AddrInfo{Func: "_ZN3foo3barEv", File: "foo.cc", Line: 7, Native: true},
	)

	return f
}

func newTestSymbolizer(t *testing.T, provider debuginfo.Provider, cfg Config, opts ...Option) *Symbolizer {
	t.Helper()
	s, err := New(log.NewNopLogger(), cfg, nil, provider, opts...)
	require.NoError(t, err)
	return s
}

type countingProvider struct {
	debuginfo.Provider
	lookups int
}

func (p *countingProvider) LookupAddress(addr uint64) []debuginfo.AddrInfo {
	p.lookups++
	return p.Provider.LookupAddress(addr)
}

type staticBacktracer struct {
	addrs []uint64
}

func (b *staticBacktracer) Backtrace() []uint64 { return b.addrs }

func TestLookupInlineChain(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	frames := s.Lookup(addrInlined)
	require.Len(t, frames, 3)

	// Innermost first. The macro expansion has no definition of its own
	// and borrows the module of the frame it was inlined into.
	require.Equal(t, "expand", frames[0].Func)
	require.Equal(t, "src/macros.go", frames[0].File)
	require.Equal(t, 4, frames[0].Line)
	require.True(t, frames[0].Inlined)
	require.Same(t, f.app, frames[0].Ref)
	require.Equal(t, model.RefScope, model.Kind(frames[0].Ref))

	// helper was re-derived through the line table.
	require.Equal(t, "helper", frames[1].Func)
	require.True(t, frames[1].Inlined)
	require.Same(t, f.helperFn, frames[1].Ref)

	// The outermost frame keeps the provider's own reference untouched.
	require.Equal(t, "process", frames[2].Func)
	require.False(t, frames[2].Inlined)
	require.Same(t, f.processFn, frames[2].Ref)

	for _, frame := range frames {
		require.Equal(t, uint64(addrInlined), frame.Address)
		require.False(t, frame.Native)
	}
}

func TestLookupUnknownAddress(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	frames := s.Lookup(addrUnmapped)
	require.Len(t, frames, 1)
	require.Equal(t, model.UnknownFrame(addrUnmapped), frames[0])
}

func TestLookupRootSetFallback(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	frames := s.Lookup(addrRoots)
	require.Len(t, frames, 2)
	require.Equal(t, "step", frames[0].Func)
	require.Same(t, f.stepFn, frames[0].Ref)
	require.Equal(t, "run", frames[1].Func)
	require.Same(t, f.runFn, frames[1].Ref)
}

func TestLookupCorruptMetadata(t *testing.T) {
	f := newFixture()
	s, err := New(log.NewNopLogger(), Config{}, prometheus.NewRegistry(), f.store)
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		addr uint64
	}{
		{name: "out of range parent index", addr: addrCorrupt},
		{name: "foreign reference type", addr: addrBadRef},
	} {
		t.Run(tc.name, func(t *testing.T) {
			frames := s.Lookup(tc.addr)
			require.Len(t, frames, 1)
			require.Equal(t, model.UnknownFrame(tc.addr), frames[0])
		})
	}
	require.Equal(t, float64(2), testutil.ToFloat64(s.metrics.corruptTotal))

	// Corruption degrades single addresses, never the rest of the trace.
	trace := s.Symbolize([]uint64{addrCorrupt, addrPlain}, true)
	require.Len(t, trace, 2)
	require.Equal(t, "main", trace[1].Func)
}

func TestSymbolizeNativeFiltering(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})
	addrs := []uint64{addrNative, addrPlain}

	trace := s.Symbolize(addrs, false)
	require.Len(t, trace, 1)
	require.Equal(t, "main", trace[0].Func)

	trace = s.Symbolize(addrs, true)
	require.Len(t, trace, 2)
	require.Equal(t, "memcpy", trace[0].Func)
	require.True(t, trace[0].Native)
}

func TestSymbolizeEmpty(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})
	require.Empty(t, s.Symbolize(nil, true))
}

func TestCaptureTrace(t *testing.T) {
	f := newFixture()
	bt := &staticBacktracer{addrs: []uint64{addrInlined, addrPlain}}
	s := newTestSymbolizer(t, f.store, Config{}, WithBacktracer(bt))

	trace, err := s.CaptureTrace(false)
	require.NoError(t, err)
	require.Len(t, trace, 4)
	require.Equal(t, "expand", trace[0].Func)
	require.Equal(t, "main", trace[3].Func)
}

func TestCaptureTraceWithoutBacktracer(t *testing.T) {
	f := newFixture()
	s := newTestSymbolizer(t, f.store, Config{})

	trace, err := s.CaptureTrace(false)
	require.ErrorIs(t, err, ErrNoBacktracer)
	require.Nil(t, trace)
}

func TestLookupCache(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		provider := &countingProvider{Provider: newFixture().store}
		s := newTestSymbolizer(t, provider, Config{CacheSize: 8})

		first := s.Lookup(addrInlined)
		second := s.Lookup(addrInlined)
		require.Equal(t, 1, provider.lookups)
		require.Equal(t, first, second)
		require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.cacheHitsTotal))
		require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.cacheMissesTotal))

		// Cached frames are copies; callers may mutate their trace.
		first[0].Func = "clobbered"
		require.Equal(t, "expand", s.Lookup(addrInlined)[0].Func)
	})

	t.Run("disabled", func(t *testing.T) {
		provider := &countingProvider{Provider: newFixture().store}
		s := newTestSymbolizer(t, provider, Config{CacheSize: 0})

		s.Lookup(addrInlined)
		s.Lookup(addrInlined)
		require.Equal(t, 2, provider.lookups)
		require.Equal(t, float64(0), testutil.ToFloat64(s.metrics.cacheHitsTotal))
		require.Equal(t, float64(0), testutil.ToFloat64(s.metrics.cacheMissesTotal))
	})
}

func TestLookupDemanglesNativeFrames(t *testing.T) {
	f := newFixture()

	s := newTestSymbolizer(t, f.store, Config{Demangle: "simplified"})
	frames := s.Lookup(addrMangled)
	require.Len(t, frames, 1)
	require.Equal(t, "foo::bar", frames[0].Func)

	s = newTestSymbolizer(t, f.store, Config{Demangle: "none"})
	require.Equal(t, "_ZN3foo3barEv", s.Lookup(addrMangled)[0].Func)

	// Non-native frames keep their names even when demangling is on.
	s = newTestSymbolizer(t, f.store, Config{Demangle: "simplified"})
	require.Equal(t, "main", s.Lookup(addrPlain)[0].Func)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero value", cfg: Config{}},
		{name: "defaults", cfg: Config{CacheSize: 4096, Demangle: "none", MaxConcurrency: 8}},
		{name: "full demangle", cfg: Config{Demangle: "full"}},
		{name: "templates demangle", cfg: Config{Demangle: "templates"}},
		{name: "negative cache size", cfg: Config{CacheSize: -1}, wantErr: true},
		{name: "negative concurrency", cfg: Config{MaxConcurrency: -1}, wantErr: true},
		{name: "unknown demangle mode", cfg: Config{Demangle: "bogus"}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	f := newFixture()
	_, err := New(nil, Config{CacheSize: -1}, nil, f.store)
	require.Error(t, err)
}

func TestRegisterFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.PanicOnError)
	var cfg Config
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))
	require.Equal(t, 4096, cfg.CacheSize)
	require.Equal(t, "none", cfg.Demangle)
	require.Equal(t, 8, cfg.MaxConcurrency)
	require.NoError(t, cfg.Validate())
}
