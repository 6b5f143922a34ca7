package main

import (
	"context"
	"os"

	"github.com/go-kit/log/level"
	"github.com/google/pprof/profile"
	"github.com/pkg/errors"

	"github.com/grafana/symtrace/pkg/debuginfo"
)

type symbolizePprofParams struct {
	snapshot string
	input    string
	output   string
	demangle string
}

func addSymbolizePprofParams(cmd commander) *symbolizePprofParams {
	params := &symbolizePprofParams{}
	cmd.Arg("snapshot", "Path to the debug-info snapshot (JSON, optionally gzip or zstd compressed).").Required().StringVar(&params.snapshot)
	cmd.Arg("profile", "Path to the pprof profile to symbolize.").Required().StringVar(&params.input)
	cmd.Flag("output", "Where to write the symbolized profile.").Default("symbolized.pprof").StringVar(&params.output)
	cmd.Flag("demangle", "Demangling mode for native symbols: none, simplified, templates, full.").Default("none").StringVar(&params.demangle)
	return params
}

func symbolizePprof(ctx context.Context, params *symbolizePprofParams) error {
	store, err := debuginfo.OpenSnapshot(params.snapshot)
	if err != nil {
		return errors.Wrap(err, "opening snapshot")
	}

	f, err := os.Open(params.input)
	if err != nil {
		return err
	}
	p, err := profile.Parse(f)
	f.Close()
	if err != nil {
		return errors.Wrap(err, "parsing profile")
	}

	s, err := newSymbolizer(store, params.demangle)
	if err != nil {
		return err
	}
	if err := s.SymbolizePprof(ctx, p); err != nil {
		return errors.Wrap(err, "symbolizing profile")
	}

	out, err := os.Create(params.output)
	if err != nil {
		return err
	}
	if err := p.Write(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "profile symbolized", "path", params.output, "locations", len(p.Location))
	return nil
}
