package model

// FuncRef is a non-owning reference from a resolved frame to the
// compiled-code metadata it originated from. The referenced descriptors are
// owned by the debug-info provider; frames borrow them for display and
// follow-up lookups only. A nil FuncRef means the frame has no known
// definition.
//
// The descriptor kinds are Module, FuncDecl, CompiledFunc and CodeBlob.
// The resolver treats any other dynamic type as corrupted provider
// metadata.
type FuncRef interface {
	funcRef()
}

// Module identifies an enclosing namespace of definitions. It is the
// coarsest association a frame can carry.
type Module struct {
	Name string
}

func (*Module) funcRef() {}

func (m *Module) String() string { return m.Name }

// FuncDecl is the abstract definition of a function: the declaration
// shared by all of its compiled specializations.
type FuncDecl struct {
	Name   string
	Module *Module
	File   string
	// Line is the declaration line, not a call site.
	Line int
}

func (*FuncDecl) funcRef() {}

func (d *FuncDecl) String() string {
	if d.Module != nil {
		return d.Module.Name + "." + d.Name
	}
	return d.Name
}

// CompiledFunc is one compiled specialization of a declaration. Decl is nil
// for code compiled straight at module top level; Module is set instead in
// that case.
type CompiledFunc struct {
	Decl   *FuncDecl
	Module *Module
	// Name optionally carries a specialized display label. Empty means the
	// declaration's name applies.
	Name string
}

func (*CompiledFunc) funcRef() {}

func (c *CompiledFunc) String() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Decl != nil {
		return c.Decl.String()
	}
	if c.Module != nil {
		return c.Module.Name + ".<toplevel>"
	}
	return "<compiled>"
}

// CodeBlob stands for a raw lowered-code object not attached to any
// declaration, such as an interpreted thunk.
type CodeBlob struct {
	ID uint64
}

func (*CodeBlob) funcRef() {}

// RefKind classifies a resolution outcome. RefUnknown means no definition
// was found; RefScope means a definition was found at module granularity
// only.
type RefKind uint8

const (
	RefUnknown RefKind = iota
	RefBlob
	RefScope
	RefAbstract
	RefConcrete
)

func (k RefKind) String() string {
	switch k {
	case RefBlob:
		return "blob"
	case RefScope:
		return "scope"
	case RefAbstract:
		return "abstract"
	case RefConcrete:
		return "concrete"
	default:
		return "unknown"
	}
}

// Kind reports the classification of ref. A nil ref and a ref of an
// unrecognized dynamic type both classify as RefUnknown.
func Kind(ref FuncRef) RefKind {
	switch ref.(type) {
	case *CompiledFunc:
		return RefConcrete
	case *FuncDecl:
		return RefAbstract
	case *Module:
		return RefScope
	case *CodeBlob:
		return RefBlob
	default:
		return RefUnknown
	}
}

// EnclosingModule derives the module a definition belongs to, for any
// descriptor kind that has one.
func EnclosingModule(ref FuncRef) *Module {
	switch r := ref.(type) {
	case *CompiledFunc:
		if r.Decl != nil {
			return r.Decl.Module
		}
		return r.Module
	case *FuncDecl:
		return r.Module
	case *Module:
		return r
	default:
		return nil
	}
}
