package debuginfo

import (
	"bufio"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/grafana/symtrace/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrSnapshotUnknownRef  = errors.New("snapshot references an undefined id")
	ErrSnapshotDuplicateID = errors.New("snapshot defines an id twice")
	ErrSnapshotBadAddress  = errors.New("snapshot address key is not a number")
)

// Snapshot files persist a store as JSON so the CLI and tests can
// symbolicate recorded address sets without a live runtime. Definition
// descriptors are declared once under an id and referenced by it; a ref of
// "blob:<n>" denotes a raw-code object, an empty ref a bare name token.
type snapshotFile struct {
	Modules    []string                    `json:"modules,omitempty"`
	Decls      []snapshotDecl              `json:"decls,omitempty"`
	Compiled   []snapshotCompiled          `json:"compiled,omitempty"`
	LineTables map[string][]snapshotRecord `json:"line_tables,omitempty"`
	RootSets   map[string][]string         `json:"root_sets,omitempty"`
	Addresses  map[string][]snapshotFrame  `json:"addresses,omitempty"`
}

type snapshotDecl struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Module string `json:"module"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

type snapshotCompiled struct {
	ID     string `json:"id"`
	Decl   string `json:"decl,omitempty"`
	Module string `json:"module,omitempty"`
	Name   string `json:"name,omitempty"`
}

type snapshotRecord struct {
	Func      string `json:"func"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Ref       string `json:"ref,omitempty"`
	InlinedAt int    `json:"inlined_at,omitempty"`
}

type snapshotFrame struct {
	Func    string `json:"func"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line"`
	Ref     string `json:"ref,omitempty"`
	Native  bool   `json:"native,omitempty"`
	Inlined bool   `json:"inlined,omitempty"`
}

// OpenSnapshot loads a store from a snapshot file. The file may be plain
// JSON or gzip/zstd compressed; compression is sniffed from magic bytes.
func OpenSnapshot(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReadSnapshot loads a store from snapshot data.
func ReadSnapshot(r io.Reader) (*Store, error) {
	src, closeSrc, err := decompress(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	var file snapshotFile
	if err := json.NewDecoder(src).Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	return file.build()
}

func decompress(br *bufio.Reader) (io.Reader, func(), error) {
	nop := func() {}
	magic, err := br.Peek(4)
	if err != nil {
		// Too short for any compression header; let the JSON decoder
		// report the real problem.
		return br, nop, nil
	}
	switch {
	case magic[0] == 0x1f && magic[1] == 0x8b:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nop, err
		}
		return gz, func() { _ = gz.Close() }, nil
	case magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nop, err
		}
		return zr, zr.Close, nil
	}
	return br, nop, nil
}

func (f *snapshotFile) build() (*Store, error) {
	store := NewStore()
	for _, name := range f.Modules {
		store.Module(name)
	}

	decls := make(map[string]*model.FuncDecl, len(f.Decls))
	for _, d := range f.Decls {
		if _, ok := decls[d.ID]; ok {
			return nil, errors.Wrapf(ErrSnapshotDuplicateID, "decl %q", d.ID)
		}
		decls[d.ID] = &model.FuncDecl{
			Name:   d.Name,
			Module: store.Module(d.Module),
			File:   d.File,
			Line:   d.Line,
		}
	}

	compiled := make(map[string]*model.CompiledFunc, len(f.Compiled))
	for _, c := range f.Compiled {
		if _, ok := compiled[c.ID]; ok {
			return nil, errors.Wrapf(ErrSnapshotDuplicateID, "compiled %q", c.ID)
		}
		fn := &model.CompiledFunc{Name: c.Name}
		if c.Decl != "" {
			decl, ok := decls[c.Decl]
			if !ok {
				return nil, errors.Wrapf(ErrSnapshotUnknownRef, "compiled %q decl %q", c.ID, c.Decl)
			}
			fn.Decl = decl
		} else if c.Module != "" {
			fn.Module = store.Module(c.Module)
		}
		compiled[c.ID] = fn
	}

	blobs := make(map[uint64]*model.CodeBlob)
	resolveRef := func(ref string) (model.FuncRef, error) {
		if ref == "" {
			return nil, nil
		}
		if fn, ok := compiled[ref]; ok {
			return fn, nil
		}
		if decl, ok := decls[ref]; ok {
			return decl, nil
		}
		if id, ok := blobID(ref); ok {
			blob, ok := blobs[id]
			if !ok {
				blob = &model.CodeBlob{ID: id}
				blobs[id] = blob
			}
			return blob, nil
		}
		if mod, ok := store.FindModule(ref); ok {
			return mod, nil
		}
		return nil, errors.Wrapf(ErrSnapshotUnknownRef, "ref %q", ref)
	}

	for id, records := range f.LineTables {
		fn, ok := compiled[id]
		if !ok {
			return nil, errors.Wrapf(ErrSnapshotUnknownRef, "line table %q", id)
		}
		table := make(LineTable, len(records))
		for i, rec := range records {
			ref, err := resolveRef(rec.Ref)
			if err != nil {
				return nil, errors.Wrapf(err, "line table %q record %d", id, i)
			}
			table[i] = InlineRecord{
				Func:      rec.Func,
				File:      rec.File,
				Line:      rec.Line,
				Ref:       ref,
				InlinedAt: rec.InlinedAt,
			}
		}
		store.SetLineTable(fn, table)
	}

	for id, candidates := range f.RootSets {
		decl, ok := decls[id]
		if !ok {
			return nil, errors.Wrapf(ErrSnapshotUnknownRef, "root set %q", id)
		}
		roots := make(RootSet, 0, len(candidates))
		for _, cid := range candidates {
			fn, ok := compiled[cid]
			if !ok {
				return nil, errors.Wrapf(ErrSnapshotUnknownRef, "root set %q candidate %q", id, cid)
			}
			roots = append(roots, fn)
		}
		store.SetRootSet(decl, roots)
	}

	for key, frames := range f.Addresses {
		addr, err := strconv.ParseUint(key, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrSnapshotBadAddress, "%q", key)
		}
		infos := make([]AddrInfo, len(frames))
		for i, fr := range frames {
			ref, err := resolveRef(fr.Ref)
			if err != nil {
				return nil, errors.Wrapf(err, "address %q frame %d", key, i)
			}
			infos[i] = AddrInfo{
				Func:    fr.Func,
				File:    fr.File,
				Line:    fr.Line,
				Ref:     ref,
				Native:  fr.Native,
				Inlined: fr.Inlined,
			}
		}
		store.MapAddress(addr, infos...)
	}
	return store, nil
}

func blobID(ref string) (uint64, bool) {
	const prefix = "blob:"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return 0, false
	}
	id, err := strconv.ParseUint(ref[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
