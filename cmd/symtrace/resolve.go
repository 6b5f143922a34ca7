package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/grafana/symtrace/pkg/debuginfo"
	"github.com/grafana/symtrace/pkg/model"
	"github.com/grafana/symtrace/pkg/symbolizer"
)

type resolveParams struct {
	snapshot      string
	addrs         []string
	includeNative bool
	trimMarkers   []string
	excludeModule string
	demangle      string
	output        string
}

func addResolveParams(cmd commander) *resolveParams {
	params := &resolveParams{}
	cmd.Arg("snapshot", "Path to the debug-info snapshot (JSON, optionally gzip or zstd compressed).").Required().StringVar(&params.snapshot)
	cmd.Arg("address", "Raw return addresses, innermost call site first (hex 0x... or decimal).").Required().StringsVar(&params.addrs)
	cmd.Flag("include-native", "Keep native frames in the output.").Default("false").BoolVar(&params.includeNative)
	cmd.Flag("trim", "Drop every frame up to and including the last one matching this function name. Repeatable.").StringsVar(&params.trimMarkers)
	cmd.Flag("exclude-module", "Drop frames belonging to this module.").StringVar(&params.excludeModule)
	cmd.Flag("demangle", "Demangling mode for native symbols: none, simplified, templates, full.").Default("none").StringVar(&params.demangle)
	cmd.Flag("output", "How to output the result, examples: console, pprof=./trace.pprof").Default("console").StringVar(&params.output)
	return params
}

func resolve(ctx context.Context, params *resolveParams) error {
	store, err := debuginfo.OpenSnapshot(params.snapshot)
	if err != nil {
		return errors.Wrap(err, "opening snapshot")
	}

	addrs := make([]uint64, len(params.addrs))
	for i, raw := range params.addrs {
		addr, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing address %q", raw)
		}
		addrs[i] = addr
	}

	s, err := newSymbolizer(store, params.demangle)
	if err != nil {
		return err
	}

	trace := s.Symbolize(addrs, params.includeNative)
	trace = trace.Trim(params.trimMarkers...)
	if params.excludeModule != "" {
		if mod, ok := store.FindModule(params.excludeModule); ok {
			trace = trace.FilterModule(mod)
		} else {
			level.Warn(logger).Log("msg", "module not found in snapshot", "module", params.excludeModule)
		}
	}
	return writeTrace(ctx, trace, params.output)
}

func newSymbolizer(provider debuginfo.Provider, demangleMode string, opts ...symbolizer.Option) (*symbolizer.Symbolizer, error) {
	return symbolizer.New(logger, symbolizer.Config{
		CacheSize:      4096,
		Demangle:       demangleMode,
		MaxConcurrency: 8,
	}, nil, provider, opts...)
}

func writeTrace(ctx context.Context, trace model.Trace, outputFlag string) error {
	switch {
	case outputFlag == "console":
		if len(trace) == 0 {
			level.Warn(logger).Log("msg", "no frames resolved")
			return nil
		}
		fmt.Fprintln(output(ctx), trace.String())
		return nil
	case strings.HasPrefix(outputFlag, "pprof="):
		path := strings.TrimPrefix(outputFlag, "pprof=")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := model.TraceProfile(trace).Write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "trace written", "path", path, "frames", len(trace))
		return nil
	}
	return errors.Errorf("unknown output %q", outputFlag)
}
