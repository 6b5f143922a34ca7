// Package symbolizer reconstructs call chains from raw return addresses.
// Each address resolves to one or more frames, innermost first: the
// provider reports every frame collapsed at the address by inlining, and
// the symbolizer re-derives which definition each collapsed frame came
// from, backtracking through the enclosing definition's metadata when the
// association was lost.
package symbolizer

import (
	"flag"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/symtrace/pkg/debuginfo"
	"github.com/grafana/symtrace/pkg/demangle"
	"github.com/grafana/symtrace/pkg/model"
)

type Config struct {
	CacheSize      int    `yaml:"cache_size"`
	Demangle       string `yaml:"demangle" category:"advanced"`
	MaxConcurrency int    `yaml:"max_concurrency" category:"advanced"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.CacheSize, prefix+"symbolizer.cache-size", 4096, "Maximum number of addresses whose resolved frames are kept in memory. 0 disables the cache.")
	f.StringVar(&cfg.Demangle, prefix+"symbolizer.demangle", "none", "Demangling mode for native symbols. One of: none, simplified, templates, full.")
	f.IntVar(&cfg.MaxConcurrency, prefix+"symbolizer.max-concurrency", 8, "Maximum number of concurrently resolved locations during profile symbolization.")
}

func (cfg *Config) Validate() error {
	if cfg.CacheSize < 0 {
		return fmt.Errorf("invalid cache-size value, must not be negative")
	}
	if cfg.MaxConcurrency < 0 {
		return fmt.Errorf("invalid max-concurrency value, must not be negative")
	}
	switch cfg.Demangle {
	case "", "none", "simplified", "templates", "full":
		return nil
	}
	return fmt.Errorf("invalid demangle mode %q", cfg.Demangle)
}

type Symbolizer struct {
	logger   log.Logger
	cfg      Config
	provider debuginfo.Provider

	backtracer      debuginfo.Backtracer
	demangleOptions []demangle.Option
	cache           *frameCache
	metrics         *metrics
}

type Option func(*Symbolizer)

// WithBacktracer makes CaptureTrace available.
func WithBacktracer(bt debuginfo.Backtracer) Option {
	return func(s *Symbolizer) { s.backtracer = bt }
}

func New(logger log.Logger, cfg Config, reg prometheus.Registerer, provider debuginfo.Provider, opts ...Option) (*Symbolizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Symbolizer{
		logger:          logger,
		cfg:             cfg,
		provider:        provider,
		demangleOptions: demangle.Convert(cfg.Demangle),
		cache:           newFrameCache(cfg.CacheSize),
		metrics:         newMetrics(reg),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Lookup resolves one raw return address into its frames, innermost first.
// An address the provider cannot resolve, and an address whose metadata
// turns out corrupt, both yield a single unknown frame carrying the
// address. Lookup never fails.
func (s *Symbolizer) Lookup(addr uint64) []model.Frame {
	if frames, ok := s.cache.get(addr); ok {
		s.metrics.cacheHitsTotal.Inc()
		return frames
	}
	if s.cache.enabled() {
		s.metrics.cacheMissesTotal.Inc()
	}
	frames, err := s.resolveAddress(addr)
	if err != nil {
		level.Warn(s.logger).Log(
			"msg", "corrupt metadata, address degraded to unknown frame",
			"addr", fmt.Sprintf("0x%x", addr),
			"err", err,
		)
		s.metrics.corruptTotal.Inc()
		frames = []model.Frame{model.UnknownFrame(addr)}
	}
	s.cache.add(addr, frames)
	return frames
}

// resolveAddress turns the provider's flat tuple list for one address into
// resolved frames. Tuples arrive outermost first; the outermost tuple's
// own reference is the precise source of truth and selects the metadata
// the inner tuples are re-derived against. Output order is reversed to
// innermost first.
func (s *Symbolizer) resolveAddress(addr uint64) ([]model.Frame, error) {
	infos := s.provider.LookupAddress(addr)
	if len(infos) == 0 {
		return []model.Frame{model.UnknownFrame(addr)}, nil
	}
	for i := range infos {
		if err := checkRef(infos[i].Ref); err != nil {
			return nil, err
		}
	}

	outer := infos[0].Ref
	table, haveTable := s.provider.InlineTable(outer)
	var (
		roots     debuginfo.RootSet
		haveRoots bool
	)
	if !haveTable {
		roots, haveRoots = s.provider.RootSet(outer)
	}

	frames := make([]model.Frame, len(infos))
	prev := outer
	for i := range infos {
		info := &infos[i]
		ref := info.Ref
		if i == 0 {
			s.metrics.strategiesTotal.WithLabelValues(strategyProvider).Inc()
		} else {
			var err error
			ref, err = s.rederive(info, table, haveTable, roots, haveRoots)
			if err != nil {
				return nil, err
			}
			if ref == nil {
				// Nothing associates this frame with a definition; borrow
				// the module of the frame it was inlined into so the
				// label still carries a scope.
				if mod := model.EnclosingModule(prev); mod != nil {
					ref = mod
					s.metrics.strategiesTotal.WithLabelValues(strategyModule).Inc()
				}
			}
		}
		s.metrics.resolutionsTotal.WithLabelValues(model.Kind(ref).String()).Inc()
		frames[len(infos)-1-i] = s.newFrame(info, ref, addr)
		prev = ref
	}
	return frames, nil
}

func (s *Symbolizer) rederive(info *debuginfo.AddrInfo, table debuginfo.LineTable, haveTable bool, roots debuginfo.RootSet, haveRoots bool) (model.FuncRef, error) {
	switch {
	case haveTable:
		ref, err := matchLineTable(table, info.Func, info.File, info.Line)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			s.metrics.strategiesTotal.WithLabelValues(strategyLineTable).Inc()
		}
		return ref, nil
	case haveRoots:
		if ref := matchRootSet(roots, info.Func, info.File); ref != nil {
			s.metrics.strategiesTotal.WithLabelValues(strategyRootSet).Inc()
			return ref, nil
		}
	}
	return nil, nil
}

// checkRef rejects definition references of a dynamic type the resolver
// does not know. A nil reference is a valid bare tuple; an unrecognized
// type means the provider handed over a corrupted tuple.
func checkRef(ref model.FuncRef) error {
	if ref == nil {
		return nil
	}
	if model.Kind(ref) == model.RefUnknown {
		return &badRefError{ref: ref}
	}
	return nil
}

func (s *Symbolizer) newFrame(info *debuginfo.AddrInfo, ref model.FuncRef, addr uint64) model.Frame {
	funcName := info.Func
	if info.Native && len(s.demangleOptions) > 0 {
		funcName = demangle.Filter(funcName, s.demangleOptions...)
	}
	return model.Frame{
		Func:    intern(funcName),
		File:    intern(info.File),
		Line:    info.Line,
		Ref:     ref,
		Native:  info.Native,
		Inlined: info.Inlined,
		Address: addr,
	}
}

// Symbolize resolves a captured address sequence into one combined trace,
// innermost frame first. Native frames are dropped unless includeNative
// is set.
func (s *Symbolizer) Symbolize(addrs []uint64, includeNative bool) model.Trace {
	start := time.Now()
	defer func() {
		s.metrics.symbolizeDuration.Observe(time.Since(start).Seconds())
	}()
	trace := make(model.Trace, 0, len(addrs))
	for _, addr := range addrs {
		for _, frame := range s.Lookup(addr) {
			if frame.Native && !includeNative {
				continue
			}
			trace = append(trace, frame)
		}
	}
	return trace
}

// CaptureTrace captures the current backtrace through the configured
// backtracer and symbolicates it.
func (s *Symbolizer) CaptureTrace(includeNative bool) (model.Trace, error) {
	if s.backtracer == nil {
		return nil, ErrNoBacktracer
	}
	return s.Symbolize(s.backtracer.Backtrace(), includeNative), nil
}
