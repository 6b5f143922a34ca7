package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Tooling for symtrace, the stack-trace symbolication engine.").UsageWriter(os.Stdout)
	app.Version(version.Print("symtrace"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)

	resolveCmd := app.Command("resolve", "Symbolicate raw addresses against a debug-info snapshot.")
	resolveParams := addResolveParams(resolveCmd)

	symbolizePprofCmd := app.Command("symbolize-pprof", "Fill in missing symbols of a pprof profile using a snapshot.")
	symbolizePprofParams := addSymbolizePprofParams(symbolizePprofCmd)

	selfCmd := app.Command("self", "Capture and symbolicate this process's own stack.")
	selfParams := addSelfParams(selfCmd)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case resolveCmd.FullCommand():
		os.Exit(checkError(resolve(ctx, resolveParams)))
	case symbolizePprofCmd.FullCommand():
		os.Exit(checkError(symbolizePprof(ctx, symbolizePprofParams)))
	case selfCmd.FullCommand():
		os.Exit(checkError(self(ctx, selfParams)))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
