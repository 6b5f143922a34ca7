package debuginfo

import (
	"sync"

	"github.com/grafana/symtrace/pkg/model"
)

// Store is the in-memory reference Provider. Publication and lookup may
// run concurrently; published entries are never mutated, only replaced.
type Store struct {
	mtx        sync.RWMutex
	modules    map[string]*model.Module
	addrs      map[uint64][]AddrInfo
	lineTables map[*model.CompiledFunc]LineTable
	rootSets   map[*model.FuncDecl]RootSet
}

func NewStore() *Store {
	return &Store{
		modules:    make(map[string]*model.Module),
		addrs:      make(map[uint64][]AddrInfo),
		lineTables: make(map[*model.CompiledFunc]LineTable),
		rootSets:   make(map[*model.FuncDecl]RootSet),
	}
}

// Module returns the canonical descriptor for the named module, creating
// it on first use. Canonical pointers make module filtering an identity
// comparison.
func (s *Store) Module(name string) *model.Module {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if m, ok := s.modules[name]; ok {
		return m
	}
	m := &model.Module{Name: name}
	s.modules[name] = m
	return m
}

// FindModule looks up a module descriptor without creating it.
func (s *Store) FindModule(name string) (*model.Module, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	m, ok := s.modules[name]
	return m, ok
}

// MapAddress publishes the lookup result for one address, outermost frame
// first. Mapping an address with no frames records it as unresolvable.
func (s *Store) MapAddress(addr uint64, frames ...AddrInfo) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.addrs[addr] = frames
}

// SetLineTable publishes the inline line-table of a compiled definition.
func (s *Store) SetLineTable(fn *model.CompiledFunc, table LineTable) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.lineTables[fn] = table
}

// SetRootSet publishes the candidate set of a declaration.
func (s *Store) SetRootSet(decl *model.FuncDecl, roots RootSet) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.rootSets[decl] = roots
}

func (s *Store) LookupAddress(addr uint64) []AddrInfo {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.addrs[addr]
}

func (s *Store) InlineTable(ref model.FuncRef) (LineTable, bool) {
	fn, ok := ref.(*model.CompiledFunc)
	if !ok {
		return nil, false
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	table, ok := s.lineTables[fn]
	return table, ok
}

func (s *Store) RootSet(ref model.FuncRef) (RootSet, bool) {
	var decl *model.FuncDecl
	switch r := ref.(type) {
	case *model.CompiledFunc:
		decl = r.Decl
	case *model.FuncDecl:
		decl = r
	}
	if decl == nil {
		return nil, false
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	roots, ok := s.rootSets[decl]
	return roots, ok
}
