package debuginfo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/symtrace/pkg/model"
)

func TestStoreModuleCanonical(t *testing.T) {
	store := NewStore()
	a := store.Module("app")
	b := store.Module("app")
	require.Same(t, a, b)

	found, ok := store.FindModule("app")
	require.True(t, ok)
	require.Same(t, a, found)

	_, ok = store.FindModule("missing")
	require.False(t, ok)
}

func TestStoreLookupAddress(t *testing.T) {
	store := NewStore()
	store.MapAddress(0x1000,
		AddrInfo{Func: "outer", File: "a.go", Line: 20},
		AddrInfo{Func: "inner", File: "a.go", Line: 10, Inlined: true},
	)

	infos := store.LookupAddress(0x1000)
	require.Len(t, infos, 2)
	require.Equal(t, "outer", infos[0].Func)
	require.Equal(t, "inner", infos[1].Func)

	require.Empty(t, store.LookupAddress(0x2000))
}

func TestStoreInlineTable(t *testing.T) {
	store := NewStore()
	mod := store.Module("app")
	decl := &model.FuncDecl{Name: "process", Module: mod, File: "process.go", Line: 5}
	fn := &model.CompiledFunc{Decl: decl}

	table := LineTable{
		{Func: "helper", File: "process.go", Line: 9, InlinedAt: 0},
	}
	store.SetLineTable(fn, table)

	got, ok := store.InlineTable(fn)
	require.True(t, ok)
	require.Equal(t, table, got)

	_, ok = store.InlineTable(&model.CompiledFunc{Decl: decl})
	require.False(t, ok)
	_, ok = store.InlineTable(decl)
	require.False(t, ok)
	_, ok = store.InlineTable(nil)
	require.False(t, ok)
}

func TestStoreRootSet(t *testing.T) {
	store := NewStore()
	mod := store.Module("app")
	decl := &model.FuncDecl{Name: "process", Module: mod, File: "process.go", Line: 5}
	fn := &model.CompiledFunc{Decl: decl}
	store.SetRootSet(decl, RootSet{fn})

	got, ok := store.RootSet(decl)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Same(t, fn, got[0])

	// A compiled function reaches the set through its declaration.
	got, ok = store.RootSet(fn)
	require.True(t, ok)
	require.Len(t, got, 1)

	_, ok = store.RootSet(&model.CompiledFunc{Module: mod, Name: "thunk"})
	require.False(t, ok)
	_, ok = store.RootSet(mod)
	require.False(t, ok)
}
