package main

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/grafana/symtrace/pkg/goruntime"
	"github.com/grafana/symtrace/pkg/symbolizer"
)

const captureMarker = "github.com/grafana/symtrace/pkg/symbolizer.(*Symbolizer).CaptureTrace"

type selfParams struct {
	includeNative bool
	excludeModule string
}

func addSelfParams(cmd commander) *selfParams {
	params := &selfParams{}
	cmd.Flag("include-native", "Keep native frames in the output.").Default("false").BoolVar(&params.includeNative)
	cmd.Flag("exclude-module", "Drop frames belonging to this Go package path.").StringVar(&params.excludeModule)
	return params
}

func self(ctx context.Context, params *selfParams) error {
	provider := goruntime.NewProvider()
	s, err := newSymbolizer(provider, "none", symbolizer.WithBacktracer(&goruntime.Backtracer{}))
	if err != nil {
		return err
	}

	trace, err := s.CaptureTrace(params.includeNative)
	if err != nil {
		return err
	}
	trace = trace.Trim(captureMarker)
	if params.excludeModule != "" {
		if mod, ok := provider.Module(params.excludeModule); ok {
			trace = trace.FilterModule(mod)
		} else {
			level.Warn(logger).Log("msg", "module not seen in trace", "module", params.excludeModule)
		}
	}
	fmt.Fprintln(output(ctx), trace.String())
	return nil
}
