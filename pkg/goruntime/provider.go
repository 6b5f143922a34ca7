// Package goruntime adapts the running Go process to the debuginfo
// contracts: return addresses are captured with runtime.Callers and
// resolved through runtime.CallersFrames. It exists so the engine can
// symbolicate its own host process without any recorded metadata.
package goruntime

import (
	"runtime"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/grafana/symtrace/pkg/debuginfo"
	"github.com/grafana/symtrace/pkg/model"
)

// Provider resolves addresses of the current process. Descriptors are
// cached per function so repeated lookups hand out identical pointers;
// module identity in particular must be stable for filtering.
type Provider struct {
	modules *xsync.MapOf[string, *model.Module]
	fns     *xsync.MapOf[string, *model.CompiledFunc]
}

func NewProvider() *Provider {
	return &Provider{
		modules: xsync.NewMapOf[string, *model.Module](),
		fns:     xsync.NewMapOf[string, *model.CompiledFunc](),
	}
}

// Module returns the descriptor of a package path previously seen in a
// lookup.
func (p *Provider) Module(path string) (*model.Module, bool) {
	return p.modules.Load(path)
}

func (p *Provider) LookupAddress(addr uint64) []debuginfo.AddrInfo {
	if addr == 0 {
		return nil
	}
	frames := runtime.CallersFrames([]uintptr{uintptr(addr)})
	var infos []debuginfo.AddrInfo
	for {
		fr, more := frames.Next()
		if fr.Function != "" {
			infos = append(infos, debuginfo.AddrInfo{
				Func: fr.Function,
				File: fr.File,
				Line: fr.Line,
				Ref:  p.funcRef(fr),
				// Fully inlined calls carry no Func value.
				Inlined: fr.Func == nil,
			})
		}
		if !more {
			break
		}
	}
	// CallersFrames yields innermost first, the provider contract wants
	// outermost first.
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		infos[i], infos[j] = infos[j], infos[i]
	}
	return infos
}

// InlineTable always reports no table: CallersFrames already expands
// inlining, so there is nothing left to re-derive.
func (p *Provider) InlineTable(model.FuncRef) (debuginfo.LineTable, bool) {
	return nil, false
}

func (p *Provider) RootSet(model.FuncRef) (debuginfo.RootSet, bool) {
	return nil, false
}

func (p *Provider) funcRef(fr runtime.Frame) model.FuncRef {
	fn, _ := p.fns.LoadOrCompute(fr.Function, func() *model.CompiledFunc {
		return p.newCompiledFunc(fr)
	})
	return fn
}

func (p *Provider) newCompiledFunc(fr runtime.Frame) *model.CompiledFunc {
	path := packagePath(fr.Function)
	mod, _ := p.modules.LoadOrCompute(path, func() *model.Module {
		return &model.Module{Name: path}
	})
	decl := &model.FuncDecl{
		Name:   shortFuncName(fr.Function),
		Module: mod,
		File:   fr.File,
	}
	if fr.Func != nil {
		decl.File, decl.Line = fr.Func.FileLine(fr.Func.Entry())
	}
	return &model.CompiledFunc{Decl: decl}
}

// packagePath extracts the import path from a fully qualified function
// name, e.g. "net/http.(*Server).Serve" yields "net/http".
func packagePath(name string) string {
	slash := strings.LastIndexByte(name, '/')
	dot := strings.IndexByte(name[slash+1:], '.')
	if dot < 0 {
		return name
	}
	return name[:slash+1+dot]
}

func shortFuncName(name string) string {
	pkg := packagePath(name)
	if len(pkg) < len(name) && name[len(pkg)] == '.' {
		return name[len(pkg)+1:]
	}
	return name
}

// Backtracer captures the calling goroutine's raw return addresses,
// capture site first. Skip omits that many additional frames closest to
// the capture point.
type Backtracer struct {
	Skip int
}

func (b *Backtracer) Backtrace() []uint64 {
	pcs := make([]uintptr, 64)
	for {
		// 2 skips runtime.Callers and Backtrace itself.
		n := runtime.Callers(2+b.Skip, pcs)
		if n < len(pcs) {
			pcs = pcs[:n]
			break
		}
		pcs = make([]uintptr, 2*len(pcs))
	}
	addrs := make([]uint64, len(pcs))
	for i, pc := range pcs {
		addrs[i] = uint64(pc)
	}
	return addrs
}
